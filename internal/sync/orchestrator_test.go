package sync

import (
	"context"
	"testing"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/eventbus"
)

var _ suture.Service = (*Manager)(nil)

type fakeBackend struct {
	sourceID string
	libs     []catalog.Library
	items    map[string][]catalog.MediaItem // libraryID -> items
	episodes map[string][]catalog.MediaItem // showID -> episodes
}

func (f *fakeBackend) SourceID() string { return f.sourceID }
func (f *fakeBackend) HealthCheck(context.Context) (backend.HealthStatus, error) {
	return backend.HealthStatus{Reachable: true}, nil
}
func (f *fakeBackend) FetchLibraries(context.Context) ([]catalog.Library, error) { return f.libs, nil }
func (f *fakeBackend) FetchLibraryItems(_ context.Context, libraryID string) ([]catalog.MediaItem, error) {
	return f.items[libraryID], nil
}
func (f *fakeBackend) FetchEpisodes(_ context.Context, showID string) ([]catalog.MediaItem, error) {
	return f.episodes[showID], nil
}
func (f *fakeBackend) FetchStreamInfo(context.Context, string, string) (backend.StreamInfo, error) {
	return backend.StreamInfo{}, nil
}
func (f *fakeBackend) PushProgress(context.Context, string, int64, int64, bool) error { return nil }
func (f *fakeBackend) CreatePlayQueue(context.Context, []string, int) (backend.PlayQueue, error) {
	return backend.PlayQueue{}, nil
}
func (f *fakeBackend) Close() error { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

type fakeResolver struct {
	backends map[string]backend.Backend
}

func (r *fakeResolver) Backend(sourceID string) (backend.Backend, bool) {
	b, ok := r.backends[sourceID]
	return b, ok
}

func newTestManager(t *testing.T, drv backend.Backend) (*Manager, *catalog.Catalog) {
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
	mgr := NewManager(
		sources,
		catalog.NewLibraryRepository(cat),
		catalog.NewMediaRepository(cat),
		catalog.NewSyncStatusRepository(cat),
		resolver,
	)
	return mgr, cat
}

func TestSyncSourceUpsertsLibrariesAndItems(t *testing.T) {
	drv := &fakeBackend{
		sourceID: "src-1",
		libs:     []catalog.Library{{ID: "lib-1", SourceID: "src-1", Title: "Movies", LibraryType: catalog.LibraryMovies}},
		items: map[string][]catalog.MediaItem{
			"lib-1": {
				{ID: "m1", LibraryID: "lib-1", SourceID: "src-1", MediaType: catalog.MediaMovie, Title: "Movie One"},
				{ID: "m2", LibraryID: "lib-1", SourceID: "src-1", MediaType: catalog.MediaMovie, Title: "Movie Two"},
			},
		},
	}
	mgr, cat := newTestManager(t, drv)
	ctx := context.Background()

	if err := mgr.SyncSource(ctx, "src-1", true); err != nil {
		t.Fatalf("SyncSource: %v", err)
	}

	media := catalog.NewMediaRepository(cat)
	items, err := media.FindByLibrary(ctx, "lib-1")
	if err != nil {
		t.Fatalf("FindByLibrary: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	status, err := catalog.NewSyncStatusRepository(cat).Find(ctx, "src-1", catalog.SyncFull)
	if err != nil {
		t.Fatalf("Find sync status: %v", err)
	}
	if status.Status != catalog.RunCompleted {
		t.Fatalf("expected completed status, got %q", status.Status)
	}
	if status.ItemsSynced != 2 {
		t.Fatalf("expected items_synced=2, got %d", status.ItemsSynced)
	}
}

func TestSyncSourceFetchesEpisodesForShows(t *testing.T) {
	drv := &fakeBackend{
		sourceID: "src-1",
		libs:     []catalog.Library{{ID: "lib-1", SourceID: "src-1", Title: "Shows", LibraryType: catalog.LibraryShows}},
		items: map[string][]catalog.MediaItem{
			"lib-1": {{ID: "show-1", LibraryID: "lib-1", SourceID: "src-1", MediaType: catalog.MediaShow, Title: "A Show"}},
		},
		episodes: map[string][]catalog.MediaItem{
			"show-1": {
				{ID: "ep-1", LibraryID: "lib-1", SourceID: "src-1", MediaType: catalog.MediaEpisode, ParentID: strPtr("show-1")},
				{ID: "ep-2", LibraryID: "lib-1", SourceID: "src-1", MediaType: catalog.MediaEpisode, ParentID: strPtr("show-1")},
			},
		},
	}
	mgr, cat := newTestManager(t, drv)
	ctx := context.Background()

	if err := mgr.SyncSource(ctx, "src-1", true); err != nil {
		t.Fatalf("SyncSource: %v", err)
	}

	items, err := catalog.NewMediaRepository(cat).FindByLibrary(ctx, "lib-1")
	if err != nil {
		t.Fatalf("FindByLibrary: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected show + 2 episodes = 3 items, got %d", len(items))
	}
}

func TestSyncSourceReconcilesDeletionsOnFullSyncOnly(t *testing.T) {
	drv := &fakeBackend{
		sourceID: "src-1",
		libs:     []catalog.Library{{ID: "lib-1", SourceID: "src-1", Title: "Movies", LibraryType: catalog.LibraryMovies}},
		items: map[string][]catalog.MediaItem{
			"lib-1": {{ID: "m1", LibraryID: "lib-1", SourceID: "src-1", MediaType: catalog.MediaMovie, Title: "Movie One"}},
		},
	}
	mgr, cat := newTestManager(t, drv)
	ctx := context.Background()
	media := catalog.NewMediaRepository(cat)

	if err := mgr.SyncSource(ctx, "src-1", true); err != nil {
		t.Fatalf("SyncSource: %v", err)
	}

	// Seed an item the backend no longer reports, simulating a remote delete.
	if _, _, err := media.UpsertBatch(ctx, "lib-1", []catalog.MediaItem{
		{ID: "stale", LibraryID: "lib-1", SourceID: "src-1", MediaType: catalog.MediaMovie, Title: "Stale Movie"},
	}); err != nil {
		t.Fatalf("seed stale item: %v", err)
	}

	if err := mgr.SyncSource(ctx, "src-1", true); err != nil {
		t.Fatalf("second SyncSource: %v", err)
	}

	items, err := media.FindByLibrary(ctx, "lib-1")
	if err != nil {
		t.Fatalf("FindByLibrary: %v", err)
	}
	for _, item := range items {
		if item.ID == "stale" {
			t.Fatal("expected stale item removed by full-sync reconciliation")
		}
	}
}

func strPtr(s string) *string { return &s }
