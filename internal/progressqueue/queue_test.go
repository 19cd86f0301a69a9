package progressqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/eventbus"
)

var _ suture.Service = (*Worker)(nil)

type fakePushBackend struct {
	sourceID string

	mu               sync.Mutex
	calls            []pushCall
	markWatchedIDs   []string
	markUnwatchedIDs []string
	fail             error
}

type pushCall struct {
	mediaID    string
	positionMs int64
	durMs      int64
	watched    bool
}

func (f *fakePushBackend) SourceID() string { return f.sourceID }
func (f *fakePushBackend) HealthCheck(context.Context) (backend.HealthStatus, error) {
	return backend.HealthStatus{Reachable: true}, nil
}
func (f *fakePushBackend) FetchLibraries(context.Context) ([]catalog.Library, error) { return nil, nil }
func (f *fakePushBackend) FetchLibraryItems(context.Context, string) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePushBackend) FetchEpisodes(context.Context, string) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePushBackend) FetchStreamInfo(context.Context, string, string) (backend.StreamInfo, error) {
	return backend.StreamInfo{}, nil
}
func (f *fakePushBackend) PushProgress(_ context.Context, mediaID string, positionMs, durationMs int64, watched bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{mediaID, positionMs, durationMs, watched})
	return f.fail
}
func (f *fakePushBackend) CreatePlayQueue(context.Context, []string, int) (backend.PlayQueue, error) {
	return backend.PlayQueue{}, nil
}
func (f *fakePushBackend) UpdatePlayQueueProgress(context.Context, backend.PlayQueueProgress) error {
	return nil
}
func (f *fakePushBackend) MarkWatched(_ context.Context, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markWatchedIDs = append(f.markWatchedIDs, mediaID)
	return f.fail
}
func (f *fakePushBackend) MarkUnwatched(_ context.Context, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markUnwatchedIDs = append(f.markUnwatchedIDs, mediaID)
	return f.fail
}
func (f *fakePushBackend) FindNextEpisode(context.Context, string) (catalog.MediaItem, bool, error) {
	return catalog.MediaItem{}, false, nil
}
func (f *fakePushBackend) FetchMediaMarkers(context.Context, string) (backend.MediaMarkers, error) {
	return backend.MediaMarkers{}, nil
}
func (f *fakePushBackend) Search(context.Context, string) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePushBackend) GetContinueWatching(context.Context) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePushBackend) GetRecentlyAdded(context.Context, int) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePushBackend) GetSeasons(context.Context, string) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePushBackend) Close() error { return nil }

var _ backend.Backend = (*fakePushBackend)(nil)

type fakeResolver struct {
	backends map[string]backend.Backend
}

func (r *fakeResolver) Backend(sourceID string) (backend.Backend, bool) {
	b, ok := r.backends[sourceID]
	return b, ok
}

func newTestWorker(t *testing.T, drv backend.Backend, cfg Config) (*Worker, *catalog.Catalog) {
	t.Helper()
	ctx := context.Background()
	bus := eventbus.New()
	cat, err := catalog.Open(ctx, ":memory:", bus)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	sources := catalog.NewSourceRepository(cat)
	if err := sources.Insert(ctx, catalog.Source{ID: drv.SourceID(), Name: "test", SourceType: catalog.SourceTypePlex}); err != nil {
		t.Fatalf("insert source: %v", err)
	}

	resolver := &fakeResolver{backends: map[string]backend.Backend{drv.SourceID(): drv}}
	w := New(catalog.NewProgressRepository(cat), sources, resolver, cfg)
	return w, cat
}

func TestDrainPendingPushesAndMarksSynced(t *testing.T) {
	drv := &fakePushBackend{sourceID: "src-1"}
	w, cat := newTestWorker(t, drv, Config{})
	ctx := context.Background()
	progress := catalog.NewProgressRepository(cat)

	srcID := "src-1"
	if err := progress.UpsertAndEnqueue(ctx, catalog.PlaybackProgress{
		MediaID: "m1", PositionMs: 1000, DurationMs: 10000, SourceID: &srcID,
	}, catalog.ChangeProgressUpdate); err != nil {
		t.Fatalf("UpsertAndEnqueue: %v", err)
	}

	w.drainPending(ctx)

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.calls) != 1 {
		t.Fatalf("expected 1 push call, got %d", len(drv.calls))
	}
	if drv.calls[0].mediaID != "m1" || drv.calls[0].durMs != 10000 {
		t.Fatalf("unexpected push call: %+v", drv.calls[0])
	}
}

func TestDrainPendingDedupesKeepingLatest(t *testing.T) {
	drv := &fakePushBackend{sourceID: "src-1"}
	w, cat := newTestWorker(t, drv, Config{})
	ctx := context.Background()
	progress := catalog.NewProgressRepository(cat)

	srcID := "src-1"
	for _, pos := range []int64{1000, 5000, 9000} {
		if err := progress.UpsertAndEnqueue(ctx, catalog.PlaybackProgress{
			MediaID: "m1", PositionMs: pos, DurationMs: 20000, SourceID: &srcID,
		}, catalog.ChangeProgressUpdate); err != nil {
			t.Fatalf("UpsertAndEnqueue: %v", err)
		}
	}

	w.drainPending(ctx)

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.calls) != 1 {
		t.Fatalf("expected exactly 1 delivered push after dedup, got %d: %+v", len(drv.calls), drv.calls)
	}
	if drv.calls[0].positionMs != 9000 {
		t.Fatalf("expected latest position 9000 delivered, got %d", drv.calls[0].positionMs)
	}
}

func TestPushChangeRoutesMarkWatchedChangeType(t *testing.T) {
	drv := &fakePushBackend{sourceID: "src-1"}
	w, cat := newTestWorker(t, drv, Config{})
	ctx := context.Background()
	progress := catalog.NewProgressRepository(cat)

	srcID := "src-1"
	if err := progress.UpsertAndEnqueue(ctx, catalog.PlaybackProgress{
		MediaID: "m1", PositionMs: 1000, DurationMs: 20000, SourceID: &srcID,
	}, catalog.ChangeMarkWatched); err != nil {
		t.Fatalf("UpsertAndEnqueue: %v", err)
	}

	w.drainPending(ctx)

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.calls) != 0 {
		t.Fatalf("expected no plain PushProgress call, got %d", len(drv.calls))
	}
	if len(drv.markWatchedIDs) != 1 || drv.markWatchedIDs[0] != "m1" {
		t.Fatalf("expected MarkWatched(m1), got %+v", drv.markWatchedIDs)
	}
}

func TestPushChangePromotesCrossedThresholdToMarkWatched(t *testing.T) {
	drv := &fakePushBackend{sourceID: "src-1"}
	w, cat := newTestWorker(t, drv, Config{})
	ctx := context.Background()
	progress := catalog.NewProgressRepository(cat)

	srcID := "src-1"
	if err := progress.UpsertAndEnqueue(ctx, catalog.PlaybackProgress{
		MediaID: "m1", PositionMs: 9500, DurationMs: 10000, SourceID: &srcID,
	}, catalog.ChangeProgressUpdate); err != nil {
		t.Fatalf("UpsertAndEnqueue: %v", err)
	}

	w.drainPending(ctx)

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.calls) != 0 {
		t.Fatalf("expected no plain PushProgress call once past the watched threshold, got %d", len(drv.calls))
	}
	if len(drv.markWatchedIDs) != 1 || drv.markWatchedIDs[0] != "m1" {
		t.Fatalf("expected MarkWatched(m1), got %+v", drv.markWatchedIDs)
	}
}

func TestDrainPendingMarksFailedOnPushError(t *testing.T) {
	drv := &fakePushBackend{sourceID: "src-1", fail: errors.New("upstream unreachable")}
	w, cat := newTestWorker(t, drv, Config{})
	ctx := context.Background()
	progress := catalog.NewProgressRepository(cat)

	srcID := "src-1"
	if err := progress.UpsertAndEnqueue(ctx, catalog.PlaybackProgress{
		MediaID: "m1", PositionMs: 1000, DurationMs: 10000, SourceID: &srcID,
	}, catalog.ChangeProgressUpdate); err != nil {
		t.Fatalf("UpsertAndEnqueue: %v", err)
	}

	w.drainPending(ctx)

	rows, err := progress.GetFailedRetryable(ctx, 5)
	if err != nil {
		t.Fatalf("GetFailedRetryable: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 failed row, got %d", len(rows))
	}
	if rows[0].AttemptCount != 1 {
		t.Fatalf("expected attempt_count=1, got %d", rows[0].AttemptCount)
	}
}

func TestRetryFailedSkipsRowsStillInBackoff(t *testing.T) {
	drv := &fakePushBackend{sourceID: "src-1", fail: errors.New("still down")}
	w, cat := newTestWorker(t, drv, Config{BaseBackoff: time.Minute, MaxBackoff: time.Hour})
	ctx := context.Background()
	progress := catalog.NewProgressRepository(cat)

	srcID := "src-1"
	if err := progress.UpsertAndEnqueue(ctx, catalog.PlaybackProgress{
		MediaID: "m1", PositionMs: 1000, DurationMs: 10000, SourceID: &srcID,
	}, catalog.ChangeProgressUpdate); err != nil {
		t.Fatalf("UpsertAndEnqueue: %v", err)
	}
	w.drainPending(ctx) // one failed attempt, last_attempt_at = now

	drv.mu.Lock()
	callsBefore := len(drv.calls)
	drv.mu.Unlock()

	w.retryFailed(ctx) // backoff of 1 minute hasn't elapsed yet

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.calls) != callsBefore {
		t.Fatalf("expected retryFailed to skip a row still within backoff, calls went from %d to %d", callsBefore, len(drv.calls))
	}
}

func TestPauseSyncStopsTicks(t *testing.T) {
	drv := &fakePushBackend{sourceID: "src-1"}
	w, cat := newTestWorker(t, drv, Config{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progress := catalog.NewProgressRepository(cat)
	srcID := "src-1"
	if err := progress.UpsertAndEnqueue(ctx, catalog.PlaybackProgress{
		MediaID: "m1", PositionMs: 1000, DurationMs: 10000, SourceID: &srcID,
	}, catalog.ChangeProgressUpdate); err != nil {
		t.Fatalf("UpsertAndEnqueue: %v", err)
	}

	w.PauseSync()

	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.calls) != 0 {
		t.Fatalf("expected no pushes while paused, got %d", len(drv.calls))
	}
}
