// Package local implements backend.Backend against a folder of media files on
// disk, grounded on arung-agamani-denpa-radio's filepath.Walk-based directory
// scanner (internal/playlist/scanner.go) adapted from an audio-track library
// to fedsyncd's catalog.MediaItem shape. A local folder has no remote server
// to authenticate against or push progress to, so most of the backend.Backend
// contract here is a deliberate no-op rather than a stub awaiting a future
// implementation.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
)

// videoExtensions is the set of file extensions treated as playable media.
// A local folder carries no per-file container metadata the way a Plex or
// Jellyfin library scan does, so classification is extension-based.
var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".webm": true, ".m4v": true, ".ts": true, ".wmv": true,
}

// libraryID is the single synthetic library every local folder exposes;
// folders are not subdivided into movies/shows the way a real media server
// organizes its sections.
const libraryID = "local"

// Config carries the one local folder this backend scans.
type Config struct {
	SourceID string
	Path     string
}

// Backend drives one local folder as a read-mostly media origin: no auth,
// no network, no server-side play queues.
type Backend struct {
	sourceID string
	root     string

	mu    sync.Mutex
	paths map[string]string   // media id -> absolute path, filled by the last FetchLibraryItems scan
	items []catalog.MediaItem // the last FetchLibraryItems scan's result, for Search/GetRecentlyAdded
}

// New constructs a Backend rooted at cfg.Path.
func New(cfg Config) *Backend {
	return &Backend{sourceID: cfg.SourceID, root: cfg.Path, paths: make(map[string]string)}
}

func (b *Backend) SourceID() string { return b.sourceID }

// HealthCheck reports the folder reachable iff it still exists and is a
// directory; there is no latency to measure for a local filesystem path.
func (b *Backend) HealthCheck(ctx context.Context) (backend.HealthStatus, error) {
	info, err := os.Stat(b.root)
	if err != nil {
		return backend.HealthStatus{Reachable: false}, fmt.Errorf("local: stat %s: %w", b.root, err)
	}
	if !info.IsDir() {
		return backend.HealthStatus{Reachable: false}, fmt.Errorf("local: %s is not a directory", b.root)
	}
	return backend.HealthStatus{Reachable: true, LatencyMs: 0}, nil
}

// FetchLibraries always returns the single synthetic library for this
// folder; local sources are not subdivided further.
func (b *Backend) FetchLibraries(ctx context.Context) ([]catalog.Library, error) {
	return []catalog.Library{{
		ID:          libraryID,
		SourceID:    b.sourceID,
		Title:       filepath.Base(b.root),
		LibraryType: catalog.LibraryMixed,
	}}, nil
}

// FetchLibraryItems walks the folder recursively and returns one MediaItem
// per recognized video file, sorted by path for deterministic sync runs.
func (b *Backend) FetchLibraryItems(ctx context.Context, libID string) ([]catalog.MediaItem, error) {
	var paths []string
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if videoExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: walk %s: %w", b.root, err)
	}
	sort.Strings(paths)

	scanned := make(map[string]string, len(paths))
	items := make([]catalog.MediaItem, 0, len(paths))
	for _, path := range paths {
		info, statErr := os.Stat(path)
		var addedAt *time.Time
		if statErr == nil {
			t := info.ModTime()
			addedAt = &t
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			rel = path
		}
		id := mediaIDFromPath(path)
		scanned[id] = path
		items = append(items, catalog.MediaItem{
			ID:        id,
			LibraryID: libID,
			SourceID:  b.sourceID,
			MediaType: catalog.MediaMovie,
			Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			AddedAt:   addedAt,
			UpdatedAt: time.Now().UTC(),
			Metadata:  map[string]any{"path": path, "relative_path": rel},
		})
	}

	b.mu.Lock()
	b.paths = scanned
	b.items = items
	b.mu.Unlock()

	return items, nil
}

// FetchEpisodes returns no episodes: a flat folder scan does not infer a
// show/season/episode hierarchy from filenames.
func (b *Backend) FetchEpisodes(ctx context.Context, showID string) ([]catalog.MediaItem, error) {
	return nil, nil
}

// FetchStreamInfo resolves directly to the file path recorded by
// FetchLibraryItems; there is no transcoding or quality selection for a
// local file.
func (b *Backend) FetchStreamInfo(ctx context.Context, mediaID, quality string) (backend.StreamInfo, error) {
	b.mu.Lock()
	path, ok := b.paths[mediaID]
	b.mu.Unlock()
	if !ok {
		return backend.StreamInfo{}, fmt.Errorf("local: %s: unknown media id, rescan required", mediaID)
	}
	return backend.StreamInfo{URL: "file://" + path, Protocol: "direct"}, nil
}

// PushProgress is a no-op: a local folder has no owning server to report
// playback state to. Progress still lives in catalog.ProgressRepository,
// populated directly by the view-models rather than flushed through here.
func (b *Backend) PushProgress(ctx context.Context, mediaID string, positionMs, durationMs int64, watched bool) error {
	return nil
}

// CreatePlayQueue synthesizes a single-item queue locally; local folders
// have no server-side play queue concept to delegate to.
func (b *Backend) CreatePlayQueue(ctx context.Context, itemIDs []string, startIndex int) (backend.PlayQueue, error) {
	items := make([]backend.PlayQueueItem, len(itemIDs))
	selected := ""
	for i, id := range itemIDs {
		items[i] = backend.PlayQueueItem{ID: fmt.Sprintf("%d", i), MediaID: id}
		if i == startIndex {
			selected = items[i].ID
		}
	}
	return backend.PlayQueue{ID: "local", Version: 1, Items: items, SelectedItem: selected}, nil
}

// UpdatePlayQueueProgress is a no-op for the same reason PushProgress is:
// there is no server on the other end of a local folder to report a
// PlayQueue-aware timeline update to.
func (b *Backend) UpdatePlayQueueProgress(ctx context.Context, p backend.PlayQueueProgress) error {
	return nil
}

// MarkWatched is a no-op: local playback state lives entirely in
// catalog.ProgressRepository, with no remote watched flag to flip.
func (b *Backend) MarkWatched(ctx context.Context, mediaID string) error { return nil }

// MarkUnwatched is a no-op, mirroring MarkWatched.
func (b *Backend) MarkUnwatched(ctx context.Context, mediaID string) error { return nil }

// FindNextEpisode always reports none found: a flat folder scan has no
// show/season/episode hierarchy to walk.
func (b *Backend) FindNextEpisode(ctx context.Context, currentEpisodeID string) (catalog.MediaItem, bool, error) {
	return catalog.MediaItem{}, false, nil
}

// FetchMediaMarkers always reports no markers: chapter detection is a
// server-side feature no local folder scan performs.
func (b *Backend) FetchMediaMarkers(ctx context.Context, mediaID string) (backend.MediaMarkers, error) {
	return backend.MediaMarkers{}, nil
}

// Search filters the last scanned item list by a case-insensitive title
// substring match; there is no server-side search index to query instead.
func (b *Backend) Search(ctx context.Context, query string) ([]catalog.MediaItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := strings.ToLower(query)
	out := make([]catalog.MediaItem, 0)
	for _, item := range b.items {
		if strings.Contains(strings.ToLower(item.Title), q) {
			out = append(out, item)
		}
	}
	return out, nil
}

// GetContinueWatching always reports none: a local folder tracks no
// per-item playback progress of its own to resume from.
func (b *Backend) GetContinueWatching(ctx context.Context) ([]catalog.MediaItem, error) {
	return nil, nil
}

// GetRecentlyAdded returns the last scan's items ordered by AddedAt
// descending (the file's modification time), capped at limit.
func (b *Backend) GetRecentlyAdded(ctx context.Context, limit int) ([]catalog.MediaItem, error) {
	b.mu.Lock()
	items := make([]catalog.MediaItem, len(b.items))
	copy(items, b.items)
	b.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		ai, aj := items[i].AddedAt, items[j].AddedAt
		if ai == nil || aj == nil {
			return ai != nil
		}
		return ai.After(*aj)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// GetSeasons always reports none: a flat folder scan has no show hierarchy.
func (b *Backend) GetSeasons(ctx context.Context, showID string) ([]catalog.MediaItem, error) {
	return nil, nil
}

// Close releases nothing: there is no connection held open.
func (b *Backend) Close() error { return nil }

var _ backend.Backend = (*Backend)(nil)

// mediaIDFromPath derives a stable catalog.MediaItem ID from a file's
// absolute path, the same sha256-based approach media_repository.go uses
// for ContentHash, so rescans produce identical IDs for unchanged files.
func mediaIDFromPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "local-" + hex.EncodeToString(sum[:])[:16]
}
