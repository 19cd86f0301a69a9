// Package progressqueue drains the catalog's PlaybackSyncQueue outbox: it
// polls for pending local playback changes, dedupes them per media item,
// pushes each to the owning backend, and retries failures on their own
// backoff schedule, independent of whatever view triggered the mutation
// (spec.md §4.C7).
package progressqueue

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
)

// Config tunes poll cadence, batch size, and retry backoff. Zero values are
// replaced by DefaultConfig's.
type Config struct {
	PollInterval time.Duration // default 5s
	BatchSize    int           // default 100 pending rows claimed per tick
	MaxAttempts  int           // default 5
	BaseBackoff  time.Duration // default 1s
	MaxBackoff   time.Duration // default 60s
}

// DefaultConfig matches spec.md §4.C7's stated defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxAttempts:  5,
		BaseBackoff:  time.Second,
		MaxBackoff:   60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// BackendResolver looks up the live driver for a connected source.
type BackendResolver interface {
	Backend(sourceID string) (backend.Backend, bool)
}

// control messages the worker loop accepts, mirroring spec.md §4.C7's named
// set (ProcessQueue, RetryFailed, PauseSync, ResumeSync, UpdateConfig,
// SyncImmediate).
type processMsg struct{}
type retryMsg struct{}
type pauseMsg struct{}
type resumeMsg struct{}
type updateConfigMsg struct{ cfg Config }
type syncImmediateMsg struct {
	mediaItemID string
	sourceID    string
	done        chan error
}

// Worker is the long-lived outbox-drain task (spec.md §4.C7). It implements
// suture.Service.
type Worker struct {
	progress *catalog.ProgressRepository
	sources  *catalog.SourceRepository
	backends BackendResolver

	mu  sync.Mutex
	cfg Config

	process  chan processMsg
	retry    chan retryMsg
	pause    chan pauseMsg
	resume   chan resumeMsg
	reconfig chan updateConfigMsg
	sync     chan syncImmediateMsg
}

// New constructs a Worker. cfg's zero value takes DefaultConfig's settings.
func New(progress *catalog.ProgressRepository, sources *catalog.SourceRepository, backends BackendResolver, cfg Config) *Worker {
	return &Worker{
		progress: progress,
		sources:  sources,
		backends: backends,
		cfg:      cfg.withDefaults(),
		process:  make(chan processMsg, 1),
		retry:    make(chan retryMsg, 1),
		pause:    make(chan pauseMsg, 1),
		resume:   make(chan resumeMsg, 1),
		reconfig: make(chan updateConfigMsg, 1),
		sync:     make(chan syncImmediateMsg, 8),
	}
}

// ProcessQueue requests an out-of-band drain pass, on top of the regular
// poll cadence.
func (w *Worker) ProcessQueue() {
	select {
	case w.process <- processMsg{}:
	default:
	}
}

// RetryFailed requests an out-of-band retry pass.
func (w *Worker) RetryFailed() {
	select {
	case w.retry <- retryMsg{}:
	default:
	}
}

// PauseSync stops polling without discarding the queue.
func (w *Worker) PauseSync() {
	select {
	case w.pause <- pauseMsg{}:
	default:
	}
}

// ResumeSync resumes polling after PauseSync.
func (w *Worker) ResumeSync() {
	select {
	case w.resume <- resumeMsg{}:
	default:
	}
}

// UpdateConfig replaces the worker's tunables, taking effect on the next
// poll tick.
func (w *Worker) UpdateConfig(cfg Config) {
	w.reconfig <- updateConfigMsg{cfg: cfg.withDefaults()}
}

// SyncImmediate flushes one media item's queued change synchronously,
// bypassing the poll cadence, for callers that need the push to have
// happened before they return (e.g. "stop and exit" flows).
func (w *Worker) SyncImmediate(ctx context.Context, mediaItemID, sourceID string) error {
	done := make(chan error, 1)
	select {
	case w.sync <- syncImmediateMsg{mediaItemID: mediaItemID, sourceID: sourceID, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve implements suture.Service: it polls at cfg.PollInterval, draining
// pending rows and retrying failed ones, until ctx is canceled.
func (w *Worker) Serve(ctx context.Context) error {
	cfg := w.currentConfig()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.pause:
			paused = true

		case <-w.resume:
			paused = false

		case msg := <-w.reconfig:
			w.setConfig(msg.cfg)
			ticker.Reset(msg.cfg.PollInterval)

		case <-w.process:
			if !paused {
				w.drainPending(ctx)
			}

		case <-w.retry:
			if !paused {
				w.retryFailed(ctx)
			}

		case req := <-w.sync:
			req.done <- w.pushOne(ctx, req.mediaItemID, req.sourceID)

		case <-ticker.C:
			if paused {
				continue
			}
			w.drainPending(ctx)
			w.retryFailed(ctx)
		}
	}
}

func (w *Worker) currentConfig() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

func (w *Worker) setConfig(cfg Config) {
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
}

// drainPending claims pending rows, deduplicates per media item keeping the
// latest change, and pushes each kept row to its backend.
func (w *Worker) drainPending(ctx context.Context) {
	cfg := w.currentConfig()

	rows, err := w.progress.ClaimPending(ctx, cfg.BatchSize)
	if err != nil {
		logging.Warn().Err(err).Msg("progress queue: claim pending")
		return
	}
	if len(rows) == 0 {
		return
	}

	kept, superseded := dedupe(rows)
	for _, row := range superseded {
		// This row's claimed "syncing" state already reflects a change a
		// newer row in the same batch overtakes; resolve it as synced
		// rather than leaving it stuck.
		if err := w.progress.MarkSynced(ctx, row.ID); err != nil {
			logging.Warn().Err(err).Msg("progress queue: resolve superseded row")
		}
	}
	for _, row := range kept {
		w.deliver(ctx, row)
	}
}

// dedupe partitions a claimed batch into, per (media_item_id, source_id),
// the single row with the latest created_at and the rest, which a newer
// observed change has already superseded.
func dedupe(rows []catalog.PlaybackSyncQueue) (kept, superseded []catalog.PlaybackSyncQueue) {
	type key struct{ mediaID, sourceID string }
	latest := make(map[key]catalog.PlaybackSyncQueue, len(rows))

	for _, row := range rows {
		k := key{row.MediaItemID, row.SourceID}
		cur, ok := latest[k]
		if !ok || row.CreatedAt.After(cur.CreatedAt) {
			if ok {
				superseded = append(superseded, cur)
			}
			latest[k] = row
		} else {
			superseded = append(superseded, row)
		}
	}

	kept = make([]catalog.PlaybackSyncQueue, 0, len(latest))
	for _, row := range latest {
		kept = append(kept, row)
	}
	return kept, superseded
}

func (w *Worker) deliver(ctx context.Context, row catalog.PlaybackSyncQueue) {
	src, err := w.sources.FindByID(ctx, row.SourceID)
	if err != nil {
		logging.Warn().Err(err).Str("source_id", row.SourceID).Msg("progress queue: look up source")
		_ = w.progress.MarkFailed(ctx, row.ID, err)
		return
	}
	if src.AuthStatus == catalog.AuthRequired {
		_ = w.progress.RequeuePending(ctx, row.ID)
		return
	}

	drv, ok := w.backends.Backend(row.SourceID)
	if !ok {
		_ = w.progress.RequeuePending(ctx, row.ID)
		return
	}

	if err := w.pushChange(ctx, drv, row); err != nil {
		logging.Warn().Err(err).Str("media_item_id", row.MediaItemID).Str("source_id", row.SourceID).Msg("progress queue: push failed")
		if err := w.progress.MarkFailed(ctx, row.ID, err); err != nil {
			logging.Warn().Err(err).Msg("progress queue: record failure")
		}
		return
	}
	if err := w.progress.MarkSynced(ctx, row.ID); err != nil {
		logging.Warn().Err(err).Msg("progress queue: mark synced")
	}
}

// pushChange looks up the current PlaybackProgress row for its duration_ms
// (the sync queue row itself only carries position_ms) and dispatches to the
// backend. ChangeMarkWatched/ChangeMarkUnwatched route to the backend's
// dedicated mark_watched/mark_unwatched calls rather than a plain progress
// push, since only those set the server-side watched flag; a plain
// ChangeProgressUpdate that has itself crossed catalog.WatchedThreshold is
// promoted to MarkWatched the same way.
func (w *Worker) pushChange(ctx context.Context, drv backend.Backend, row catalog.PlaybackSyncQueue) error {
	progress, err := w.progress.FindByMedia(ctx, row.MediaItemID, derefStr(row.UserID))
	if err != nil {
		return err
	}

	var positionMs int64
	if row.PositionMs != nil {
		positionMs = *row.PositionMs
	} else {
		positionMs = progress.PositionMs
	}

	switch row.ChangeType {
	case catalog.ChangeMarkWatched:
		return drv.MarkWatched(ctx, row.MediaItemID)
	case catalog.ChangeMarkUnwatched:
		return drv.MarkUnwatched(ctx, row.MediaItemID)
	}

	watched := row.Completed != nil && *row.Completed
	if progress.DurationMs > 0 && float64(positionMs)/float64(progress.DurationMs) >= catalog.WatchedThreshold {
		watched = true
	}
	if watched {
		return drv.MarkWatched(ctx, row.MediaItemID)
	}

	return drv.PushProgress(ctx, row.MediaItemID, positionMs, progress.DurationMs, watched)
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// retryFailed re-attempts failed rows whose backoff window has elapsed.
func (w *Worker) retryFailed(ctx context.Context) {
	cfg := w.currentConfig()

	rows, err := w.progress.GetFailedRetryable(ctx, cfg.MaxAttempts)
	if err != nil {
		logging.Warn().Err(err).Msg("progress queue: list failed retryable")
		return
	}

	now := time.Now().UTC()
	for _, row := range rows {
		if row.AttemptCount > 0 && row.LastAttemptAt != nil {
			backoff := cfg.BaseBackoff << (row.AttemptCount - 1)
			if backoff > cfg.MaxBackoff || backoff <= 0 {
				backoff = cfg.MaxBackoff
			}
			if now.Sub(*row.LastAttemptAt) < backoff {
				continue
			}
		}
		w.deliver(ctx, row)
	}
}

func (w *Worker) pushOne(ctx context.Context, mediaItemID, sourceID string) error {
	row, ok, err := w.progress.FindLatestQueued(ctx, mediaItemID, sourceID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	w.deliver(ctx, row)
	return nil
}
