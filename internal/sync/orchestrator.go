// Package sync drives catalog synchronization: fetching libraries and media
// items from a source's backend driver, writing them through the catalog's
// batched upsert path, and reconciling deletions on a full pass.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
)

// batchSize is how many media items sync_library upserts per transaction
// and per MediaBatchCreated/MediaBatchUpdated event.
const batchSize = 200

// fullSyncInterval is how often the background loop re-runs a full sync
// against every connected, online source, catching drift a client never
// explicitly requested a refresh for.
const fullSyncInterval = 30 * time.Minute

// BackendResolver looks up the live driver for a connected source, supplied
// by the process wiring that owns one backend.Backend per online source.
type BackendResolver interface {
	Backend(sourceID string) (backend.Backend, bool)
}

// Manager orchestrates sync_source/sync_library passes across all sources.
type Manager struct {
	sources   *catalog.SourceRepository
	libraries *catalog.LibraryRepository
	media     *catalog.MediaRepository
	status    *catalog.SyncStatusRepository
	backends  BackendResolver

	mu      sync.Mutex
	running map[string]bool
}

func NewManager(sources *catalog.SourceRepository, libraries *catalog.LibraryRepository, media *catalog.MediaRepository, status *catalog.SyncStatusRepository, backends BackendResolver) *Manager {
	return &Manager{
		sources:   sources,
		libraries: libraries,
		media:     media,
		status:    status,
		backends:  backends,
		running:   make(map[string]bool),
	}
}

// Serve implements suture.Service: it periodically triggers a full sync of
// every online, non-local source, independent of any explicit
// stale-while-revalidate trigger from a view-model.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(fullSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.syncAllOnline(ctx)
		}
	}
}

func (m *Manager) syncAllOnline(ctx context.Context) {
	srcs, err := m.sources.FindAll(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("sync orchestrator: list sources")
		return
	}
	for _, src := range srcs {
		if src.SourceType == catalog.SourceTypeLocal || !src.IsOnline {
			continue
		}
		if err := m.SyncSource(ctx, src.ID, true); err != nil {
			logging.Warn().Err(err).Str("source_id", src.ID).Msg("sync orchestrator: periodic full sync failed")
		}
	}
}

func (m *Manager) tryAcquire(sourceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[sourceID] {
		return false
	}
	m.running[sourceID] = true
	return true
}

func (m *Manager) release(sourceID string) {
	m.mu.Lock()
	delete(m.running, sourceID)
	m.mu.Unlock()
}

// SyncSource resolves sourceID's backend, fetches its libraries, and
// dispatches sync_library for each. full controls whether each library pass
// reconciles deletions. A second call for a source already syncing is a
// silent no-op rather than an error, since the caller (a view-model's
// stale-while-revalidate trigger or the periodic loop) doesn't need to know
// another pass is already in flight.
func (m *Manager) SyncSource(ctx context.Context, sourceID string, full bool) error {
	if !m.tryAcquire(sourceID) {
		return nil
	}
	defer m.release(sourceID)

	syncType := catalog.SyncIncremental
	if full {
		syncType = catalog.SyncFull
	}

	if err := m.status.Start(ctx, sourceID, syncType); err != nil {
		return fmt.Errorf("start sync status: %w", err)
	}

	src, err := m.sources.FindByID(ctx, sourceID)
	if err != nil {
		_ = m.status.Fail(ctx, sourceID, syncType, err)
		return err
	}

	if src.SourceType == catalog.SourceTypeLocal {
		return m.status.Complete(ctx, sourceID, syncType, 0)
	}

	drv, ok := m.backends.Backend(sourceID)
	if !ok {
		err := fmt.Errorf("no connected backend driver for source %s", sourceID)
		_ = m.status.Fail(ctx, sourceID, syncType, err)
		return err
	}

	libs, err := drv.FetchLibraries(ctx)
	if err != nil {
		_ = m.status.Fail(ctx, sourceID, syncType, err)
		return err
	}

	total := 0
	for _, lib := range libs {
		if err := m.libraries.Upsert(ctx, lib); err != nil {
			_ = m.status.Fail(ctx, sourceID, syncType, err)
			return err
		}
		count, err := m.syncLibrary(ctx, drv, lib, full)
		if err != nil {
			_ = m.status.Fail(ctx, sourceID, syncType, err)
			return err
		}
		total += count
		if err := m.status.Progress(ctx, sourceID, syncType, total, nil); err != nil {
			logging.Warn().Err(err).Str("source_id", sourceID).Msg("sync orchestrator: record progress")
		}
	}

	return m.status.Complete(ctx, sourceID, syncType, total)
}

// SyncLibrary fetches libraryID's remote item list, upserts it in batches,
// recurses into FetchEpisodes for every show, and, on a full pass, deletes
// local rows no longer present remotely.
func (m *Manager) SyncLibrary(ctx context.Context, sourceID, libraryID string, full bool) (int, error) {
	drv, ok := m.backends.Backend(sourceID)
	if !ok {
		return 0, fmt.Errorf("no connected backend driver for source %s", sourceID)
	}
	lib, err := m.libraries.FindByID(ctx, sourceID, libraryID)
	if err != nil {
		return 0, err
	}
	return m.syncLibrary(ctx, drv, lib, full)
}

func (m *Manager) syncLibrary(ctx context.Context, drv backend.Backend, lib catalog.Library, full bool) (int, error) {
	items, err := drv.FetchLibraryItems(ctx, lib.ID)
	if err != nil {
		return 0, err
	}

	for _, item := range items {
		if item.MediaType != catalog.MediaShow {
			continue
		}
		episodes, err := drv.FetchEpisodes(ctx, item.ID)
		if err != nil {
			return 0, fmt.Errorf("fetch episodes for show %s: %w", item.ID, err)
		}
		items = append(items, episodes...)
	}

	remoteIDs := make([]string, 0, len(items))
	for _, item := range items {
		remoteIDs = append(remoteIDs, item.ID)
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		if _, _, err := m.media.UpsertBatch(ctx, lib.ID, items[start:end]); err != nil {
			return 0, fmt.Errorf("upsert batch [%d:%d): %w", start, end, err)
		}
	}

	if full {
		if _, err := m.media.DeleteMissing(ctx, lib.ID, remoteIDs); err != nil {
			return 0, fmt.Errorf("reconcile deletions: %w", err)
		}
	}

	if err := m.libraries.UpdateItemCount(ctx, lib.SourceID, lib.ID, len(items)); err != nil {
		logging.Warn().Err(err).Str("library_id", lib.ID).Msg("sync orchestrator: update item count")
	}

	return len(items), nil
}
