package playlist

import (
	"context"
	"fmt"
	"testing"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/eventbus"
)

type fakePlayQueueBackend struct {
	sourceID string
	queue    backend.PlayQueue
	fail     error
}

func (f *fakePlayQueueBackend) SourceID() string { return f.sourceID }
func (f *fakePlayQueueBackend) HealthCheck(context.Context) (backend.HealthStatus, error) {
	return backend.HealthStatus{Reachable: true}, nil
}
func (f *fakePlayQueueBackend) FetchLibraries(context.Context) ([]catalog.Library, error) {
	return nil, nil
}
func (f *fakePlayQueueBackend) FetchLibraryItems(context.Context, string) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePlayQueueBackend) FetchEpisodes(context.Context, string) ([]catalog.MediaItem, error) {
	return nil, nil
}
func (f *fakePlayQueueBackend) FetchStreamInfo(context.Context, string, string) (backend.StreamInfo, error) {
	return backend.StreamInfo{}, nil
}
func (f *fakePlayQueueBackend) PushProgress(context.Context, string, int64, int64, bool) error {
	return nil
}
func (f *fakePlayQueueBackend) CreatePlayQueue(context.Context, []string, int) (backend.PlayQueue, error) {
	if f.fail != nil {
		return backend.PlayQueue{}, f.fail
	}
	return f.queue, nil
}
func (f *fakePlayQueueBackend) Close() error { return nil }

var _ backend.Backend = (*fakePlayQueueBackend)(nil)

type fakeResolver struct {
	backends map[string]backend.Backend
}

func (r *fakeResolver) Backend(sourceID string) (backend.Backend, bool) {
	b, ok := r.backends[sourceID]
	return b, ok
}

func seedShow(t *testing.T, cat *catalog.Catalog, sourceID string, sourceType catalog.SourceType) (showID string, episodeIDs []string) {
	t.Helper()
	ctx := context.Background()

	if err := catalog.NewSourceRepository(cat).Insert(ctx, catalog.Source{ID: sourceID, Name: "test", SourceType: sourceType}); err != nil {
		t.Fatalf("insert source: %v", err)
	}
	libs := catalog.NewLibraryRepository(cat)
	if err := libs.Upsert(ctx, catalog.Library{ID: "lib-1", SourceID: sourceID, Title: "Shows", LibraryType: catalog.LibraryShows}); err != nil {
		t.Fatalf("upsert library: %v", err)
	}

	media := catalog.NewMediaRepository(cat)
	show := catalog.MediaItem{ID: "show-1", LibraryID: "lib-1", SourceID: sourceID, MediaType: catalog.MediaShow, Title: "A Show"}
	if _, _, err := media.UpsertBatch(ctx, "lib-1", []catalog.MediaItem{show}); err != nil {
		t.Fatalf("seed show: %v", err)
	}

	episodes := make([]catalog.MediaItem, 3)
	ids := make([]string, 3)
	for i := 0; i < 3; i++ {
		season, number := 1, i+1
		id := fmt.Sprintf("ep-%d", i+1)
		ids[i] = id
		episodes[i] = catalog.MediaItem{
			ID: id, LibraryID: "lib-1", SourceID: sourceID, MediaType: catalog.MediaEpisode,
			Title: fmt.Sprintf("Episode %d", i+1), ParentID: strPtr("show-1"),
			SeasonNumber: &season, EpisodeNumber: &number,
		}
		number++
	}
	if _, _, err := media.UpsertBatch(ctx, "lib-1", episodes); err != nil {
		t.Fatalf("seed episodes: %v", err)
	}
	return "show-1", ids
}

func strPtr(s string) *string { return &s }

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	ctx := context.Background()
	bus := eventbus.New()
	cat, err := catalog.Open(ctx, ":memory:", bus)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestBuildShowContextUsesPlexPlayQueue(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	_, episodeIDs := seedShow(t, cat, "src-1", catalog.SourceTypePlex)

	drv := &fakePlayQueueBackend{
		sourceID: "src-1",
		queue: backend.PlayQueue{
			ID: "42", Version: 1,
			Items: []backend.PlayQueueItem{
				{ID: "6", MediaID: episodeIDs[0]},
				{ID: "7", MediaID: episodeIDs[1]},
				{ID: "8", MediaID: episodeIDs[2]},
			},
			SelectedItem: "7",
		},
	}
	svc := NewService(catalog.NewMediaRepository(cat), catalog.NewProgressRepository(cat), catalog.NewSourceRepository(cat),
		&fakeResolver{backends: map[string]backend.Backend{"src-1": drv}})

	result, err := svc.BuildShowContext(ctx, episodeIDs[1])
	if err != nil {
		t.Fatalf("BuildShowContext: %v", err)
	}
	if result.Kind != KindTvShow {
		t.Fatalf("expected TvShow context, got %q", result.Kind)
	}
	if result.CurrentIndex != 1 {
		t.Fatalf("expected current_index=1, got %d", result.CurrentIndex)
	}
	if len(result.Episodes) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(result.Episodes))
	}
	if result.PlayQueueInfo == nil || result.PlayQueueInfo.PlayQueueID != "42" {
		t.Fatalf("expected play_queue_id=42, got %+v", result.PlayQueueInfo)
	}

	progress, err := catalog.NewProgressRepository(cat).FindByMedia(ctx, episodeIDs[1], "")
	if err != nil {
		t.Fatalf("FindByMedia: %v", err)
	}
	if progress.PlayQueueID == nil || *progress.PlayQueueID != "42" {
		t.Fatalf("expected resume state persisted with play_queue_id=42, got %+v", progress.PlayQueueID)
	}
}

func TestBuildShowContextFallsBackOnPlayQueueFailure(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	_, episodeIDs := seedShow(t, cat, "src-1", catalog.SourceTypePlex)

	drv := &fakePlayQueueBackend{sourceID: "src-1", fail: fmt.Errorf("server unavailable")}
	svc := NewService(catalog.NewMediaRepository(cat), catalog.NewProgressRepository(cat), catalog.NewSourceRepository(cat),
		&fakeResolver{backends: map[string]backend.Backend{"src-1": drv}})

	result, err := svc.BuildShowContext(ctx, episodeIDs[0])
	if err != nil {
		t.Fatalf("BuildShowContext: %v", err)
	}
	if result.Kind != KindTvShow {
		t.Fatalf("expected local TvShow fallback, got %q", result.Kind)
	}
	if result.PlayQueueInfo != nil {
		t.Fatalf("expected no PlayQueueInfo on fallback, got %+v", result.PlayQueueInfo)
	}
	if len(result.Episodes) != 3 {
		t.Fatalf("expected 3 episodes from local playlist, got %d", len(result.Episodes))
	}
}

func TestBuildShowContextUsesLocalForNonPlexSource(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	_, episodeIDs := seedShow(t, cat, "src-1", catalog.SourceTypeJellyfin)

	svc := NewService(catalog.NewMediaRepository(cat), catalog.NewProgressRepository(cat), catalog.NewSourceRepository(cat),
		&fakeResolver{backends: map[string]backend.Backend{}})

	result, err := svc.BuildShowContext(ctx, episodeIDs[2])
	if err != nil {
		t.Fatalf("BuildShowContext: %v", err)
	}
	if result.Kind != KindTvShow {
		t.Fatalf("expected TvShow context, got %q", result.Kind)
	}
	if result.CurrentIndex != 2 {
		t.Fatalf("expected current_index=2, got %d", result.CurrentIndex)
	}
}
