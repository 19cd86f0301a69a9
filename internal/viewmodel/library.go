package viewmodel

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/eventbus"
	"github.com/tomtom215/fedsync/internal/logging"
)

// WatchStatus filters items by playback state.
type WatchStatus string

const (
	WatchAll        WatchStatus = "all"
	WatchWatched    WatchStatus = "watched"
	WatchUnwatched  WatchStatus = "unwatched"
	WatchInProgress WatchStatus = "in_progress"
)

// FilterOptions is LibraryViewModel's filter pipeline configuration.
type FilterOptions struct {
	TextSearch  string
	YearMin     *int
	YearMax     *int
	MinRating   *float64
	WatchStatus WatchStatus
}

// SortOrder orders LibraryViewModel.FilteredItems.
type SortOrder string

const (
	SortTitleAsc   SortOrder = "title_asc"
	SortYearAsc    SortOrder = "year_asc"
	SortYearDesc   SortOrder = "year_desc"
	SortRatingAsc  SortOrder = "rating_asc"
	SortRatingDesc SortOrder = "rating_desc"
	SortAddedAsc   SortOrder = "added_asc"
	SortAddedDesc  SortOrder = "added_desc"
)

const debounceInterval = 800 * time.Millisecond

// LibraryViewModel drives a library listing screen: loading a library's
// items from the catalog, running the filter/sort pipeline client actions
// request, and keeping itself current as catalog events arrive (spec.md
// §4.C9).
type LibraryViewModel struct {
	media    *catalog.MediaRepository
	libs     *catalog.LibraryRepository
	progress *catalog.ProgressRepository

	CurrentLibrary *Property[*catalog.Library]
	Items          *Property[[]catalog.MediaItem]
	FilteredItems  *Property[[]catalog.MediaItem]
	FilterOptions  *Property[FilterOptions]
	SortOrder      *Property[SortOrder]
	IsLoading      *Property[bool]
	IsSyncing      *Property[bool]
	Error          *Property[*string]
	SelectedItems  *Property[[]string]

	mu           sync.Mutex
	progressByID map[string]catalog.PlaybackProgress
	debounce     *time.Timer

	sub *eventbus.Subscription
}

// NewLibraryViewModel constructs a LibraryViewModel and subscribes it to the
// event types spec.md §4.C9 lists. Call Close when the owning screen is torn
// down.
func NewLibraryViewModel(media *catalog.MediaRepository, libs *catalog.LibraryRepository, progress *catalog.ProgressRepository, bus *eventbus.Bus) *LibraryViewModel {
	vm := &LibraryViewModel{
		media:    media,
		libs:     libs,
		progress: progress,

		CurrentLibrary: NewProperty[*catalog.Library](nil, nil),
		Items:          NewProperty[[]catalog.MediaItem](nil, nil),
		FilteredItems:  NewProperty[[]catalog.MediaItem](nil, nil),
		FilterOptions:  NewProperty(FilterOptions{WatchStatus: WatchAll}, nil),
		SortOrder:      NewProperty(SortTitleAsc, nil),
		IsLoading:      NewProperty(false, func(a, b bool) bool { return a == b }),
		IsSyncing:      NewProperty(false, func(a, b bool) bool { return a == b }),
		Error:          NewProperty[*string](nil, nil),
		SelectedItems:  NewProperty[[]string](nil, nil),

		progressByID: make(map[string]catalog.PlaybackProgress),
	}

	vm.sub = bus.SubscribeFiltered([]eventbus.EventType{
		eventbus.SyncStarted, eventbus.SyncCompleted, eventbus.SyncFailed,
		eventbus.MediaBatchCreated, eventbus.MediaBatchUpdated,
		eventbus.MediaCreated, eventbus.MediaUpdated, eventbus.MediaDeleted,
		eventbus.LibraryUpdated, eventbus.PlaybackPositionUpdated,
	}, 0)
	go vm.handleEvents(context.Background())

	return vm
}

// Close unsubscribes from the event bus. Safe to call once.
func (vm *LibraryViewModel) Close() {
	vm.sub.Close()
}

// SetLibrary loads libraryID's items from the catalog, replacing whatever
// library was previously active. It clears the previous items before
// loading so the UI never shows stale content under a new header.
func (vm *LibraryViewModel) SetLibrary(ctx context.Context, sourceID, libraryID string) error {
	vm.Items.Set(nil)
	vm.FilteredItems.Set(nil)
	vm.IsLoading.Set(true)
	defer vm.IsLoading.Set(false)

	lib, err := vm.libs.FindByID(ctx, sourceID, libraryID)
	if err != nil {
		msg := err.Error()
		vm.Error.Set(&msg)
		return err
	}
	vm.CurrentLibrary.Set(&lib)

	items, err := vm.media.FindByLibrary(ctx, libraryID)
	if err != nil {
		msg := err.Error()
		vm.Error.Set(&msg)
		return err
	}
	vm.Error.Set(nil)
	vm.loadProgress(ctx, items)
	vm.Items.Set(items)
	vm.runPipeline()
	return nil
}

// SetFilterOptions replaces the filter pipeline's configuration and
// re-runs it.
func (vm *LibraryViewModel) SetFilterOptions(opts FilterOptions) {
	vm.FilterOptions.Set(opts)
	vm.runPipeline()
}

// SetSortOrder replaces the sort order and re-runs the pipeline.
func (vm *LibraryViewModel) SetSortOrder(order SortOrder) {
	vm.SortOrder.Set(order)
	vm.runPipeline()
}

func (vm *LibraryViewModel) loadProgress(ctx context.Context, items []catalog.MediaItem) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.progressByID = make(map[string]catalog.PlaybackProgress, len(items))
	for _, item := range items {
		p, err := vm.progress.FindByMedia(ctx, item.ID, "")
		if err == nil {
			vm.progressByID[item.ID] = p
		}
	}
}

// runPipeline drops episodes, applies the text/year/rating/watch-status
// filters in order, then sorts, writing the result to FilteredItems
// (spec.md §4.C9 LibraryViewModel filter pipeline).
func (vm *LibraryViewModel) runPipeline() {
	opts := vm.FilterOptions.Get()
	order := vm.SortOrder.Get()

	vm.mu.Lock()
	progressByID := vm.progressByID
	vm.mu.Unlock()

	var out []catalog.MediaItem
	for _, item := range vm.Items.Get() {
		if item.MediaType == catalog.MediaEpisode {
			continue
		}
		if !matchesText(item, opts.TextSearch) {
			continue
		}
		if !matchesYearRange(item, opts.YearMin, opts.YearMax) {
			continue
		}
		if opts.MinRating != nil && (item.Rating == nil || *item.Rating < *opts.MinRating) {
			continue
		}
		if !matchesWatchStatus(item, progressByID[item.ID], opts.WatchStatus) {
			continue
		}
		out = append(out, item)
	}

	sortItems(out, order)
	vm.FilteredItems.Set(out)
}

func matchesText(item catalog.MediaItem, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(item.Title), needle) {
		return true
	}
	return item.Overview != nil && strings.Contains(strings.ToLower(*item.Overview), needle)
}

func matchesYearRange(item catalog.MediaItem, min, max *int) bool {
	if min == nil && max == nil {
		return true
	}
	if item.Year == nil {
		return false
	}
	if min != nil && *item.Year < *min {
		return false
	}
	if max != nil && *item.Year > *max {
		return false
	}
	return true
}

func matchesWatchStatus(item catalog.MediaItem, p catalog.PlaybackProgress, status WatchStatus) bool {
	switch status {
	case WatchAll, "":
		return true
	case WatchWatched:
		return p.Watched
	case WatchUnwatched:
		return !p.Watched && p.PositionMs == 0
	case WatchInProgress:
		return !p.Watched && p.PositionMs > 0
	default:
		return true
	}
}

func sortItems(items []catalog.MediaItem, order SortOrder) {
	switch order {
	case SortTitleAsc, "":
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
		})
	case SortYearAsc:
		sort.SliceStable(items, func(i, j int) bool { return yearOrLast(items[i]) < yearOrLast(items[j]) })
	case SortYearDesc:
		sort.SliceStable(items, func(i, j int) bool { return yearOrLast(items[i]) > yearOrLast(items[j]) })
	case SortRatingAsc:
		sort.SliceStable(items, func(i, j int) bool { return ratingOrLast(items[i]) < ratingOrLast(items[j]) })
	case SortRatingDesc:
		sort.SliceStable(items, func(i, j int) bool { return ratingOrLast(items[i]) > ratingOrLast(items[j]) })
	case SortAddedAsc:
		sort.SliceStable(items, func(i, j int) bool { return addedOrLast(items[i]).Before(addedOrLast(items[j])) })
	case SortAddedDesc:
		sort.SliceStable(items, func(i, j int) bool { return addedOrLast(items[i]).After(addedOrLast(items[j])) })
	}
}

func yearOrLast(m catalog.MediaItem) int {
	if m.Year == nil {
		return 1 << 30
	}
	return *m.Year
}

func ratingOrLast(m catalog.MediaItem) float64 {
	if m.Rating == nil {
		return -1
	}
	return *m.Rating
}

func addedOrLast(m catalog.MediaItem) time.Time {
	if m.AddedAt == nil {
		return time.Time{}
	}
	return *m.AddedAt
}

func (vm *LibraryViewModel) handleEvents(ctx context.Context) {
	for evt := range vm.sub.C {
		vm.handleEvent(ctx, evt)
	}
}

func (vm *LibraryViewModel) handleEvent(ctx context.Context, evt eventbus.Event) {
	switch evt.Type {
	case eventbus.SyncStarted:
		vm.IsSyncing.Set(true)
	case eventbus.SyncCompleted, eventbus.SyncFailed:
		vm.IsSyncing.Set(false)
		vm.scheduleDebouncedRefresh(ctx)
	case eventbus.MediaBatchCreated, eventbus.MediaBatchUpdated:
		payload, ok := evt.Payload.(eventbus.MediaBatchPayload)
		if !ok {
			return
		}
		if !vm.isCurrentLibrary(payload.LibraryID) {
			vm.scheduleDebouncedRefresh(ctx)
			return
		}
		vm.mergeByIDs(ctx, payload.IDs)
	case eventbus.MediaCreated, eventbus.MediaUpdated:
		payload, ok := evt.Payload.(eventbus.MediaPayload)
		if !ok {
			return
		}
		if !vm.isCurrentLibrary(payload.LibraryID) {
			vm.scheduleDebouncedRefresh(ctx)
			return
		}
		vm.mergeByIDs(ctx, []string{payload.ID})
	case eventbus.MediaDeleted:
		payload, ok := evt.Payload.(eventbus.MediaPayload)
		if !ok {
			return
		}
		if vm.isCurrentLibrary(payload.LibraryID) {
			vm.removeByID(payload.ID)
		}
	case eventbus.LibraryUpdated:
		vm.refreshLibraryMetadata(ctx, evt)
	case eventbus.PlaybackPositionUpdated:
		vm.applyPlaybackUpdate(evt)
	}
}

func (vm *LibraryViewModel) isCurrentLibrary(libraryID string) bool {
	lib := vm.CurrentLibrary.Get()
	return lib != nil && lib.ID == libraryID
}

// scheduleDebouncedRefresh coalesces bursts of out-of-library mutations into
// a single silent reload, the 800ms window spec.md §4.C9 names.
func (vm *LibraryViewModel) scheduleDebouncedRefresh(ctx context.Context) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.debounce != nil {
		vm.debounce.Stop()
	}
	vm.debounce = time.AfterFunc(debounceInterval, func() {
		vm.silentRefresh(ctx)
	})
}

func (vm *LibraryViewModel) silentRefresh(ctx context.Context) {
	lib := vm.CurrentLibrary.Get()
	if lib == nil {
		return
	}
	items, err := vm.media.FindByLibrary(ctx, lib.ID)
	if err != nil {
		logging.Warn().Err(err).Str("library_id", lib.ID).Msg("viewmodel: silent refresh failed")
		return
	}
	vm.loadProgress(ctx, items)
	vm.Items.Set(items)
	vm.runPipeline()
}

func (vm *LibraryViewModel) mergeByIDs(ctx context.Context, ids []string) {
	lib := vm.CurrentLibrary.Get()
	if lib == nil {
		return
	}
	merged := make(map[string]catalog.MediaItem)
	for _, item := range vm.Items.Get() {
		merged[item.ID] = item
	}
	for _, id := range ids {
		item, err := vm.media.FindByID(ctx, lib.SourceID, id)
		if err != nil {
			continue
		}
		merged[id] = item
	}
	out := make([]catalog.MediaItem, 0, len(merged))
	for _, item := range merged {
		out = append(out, item)
	}
	vm.Items.Set(out)
	vm.runPipeline()
}

func (vm *LibraryViewModel) removeByID(id string) {
	items := vm.Items.Get()
	out := make([]catalog.MediaItem, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	vm.Items.Set(out)
	vm.runPipeline()
}

func (vm *LibraryViewModel) refreshLibraryMetadata(ctx context.Context, evt eventbus.Event) {
	payload, ok := evt.Payload.(eventbus.LibraryPayload)
	if !ok {
		return
	}
	lib := vm.CurrentLibrary.Get()
	if lib == nil || lib.ID != payload.ID {
		return
	}
	updated, err := vm.libs.FindByID(ctx, payload.SourceID, payload.ID)
	if err != nil {
		return
	}
	vm.CurrentLibrary.Set(&updated)
}

func (vm *LibraryViewModel) applyPlaybackUpdate(evt eventbus.Event) {
	payload, ok := evt.Payload.(eventbus.PlaybackPayload)
	if !ok {
		return
	}
	vm.mu.Lock()
	p := vm.progressByID[payload.MediaID]
	p.MediaID = payload.MediaID
	p.PositionMs = payload.PositionMs
	p.DurationMs = payload.DurationMs
	p.Watched = payload.Watched
	vm.progressByID[payload.MediaID] = p
	vm.mu.Unlock()

	vm.runPipeline()
}
