// Package backend defines the contract every media origin driver
// (internal/backend/plex, internal/backend/jellyfin, and a future local
// folder driver) implements, plus the shared types those drivers exchange
// with the sync orchestrator and catalog layer (spec.md §4.C3).
package backend

import (
	"context"
	"time"

	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/retry"
)

// Backend is one connected media origin. Every method accepts a context so
// the sync orchestrator and connection supervisor can cancel in-flight work
// on shutdown or when a source is superseded by a higher-priority connection.
type Backend interface {
	// SourceID identifies which catalog.Source this backend instance serves.
	SourceID() string

	// HealthCheck probes the active connection and reports latency and
	// reachability, feeding both the connection supervisor's quality
	// classification and gobreaker's trip/reset decisions.
	HealthCheck(ctx context.Context) (HealthStatus, error)

	// FetchLibraries lists the browsable libraries this source exposes.
	FetchLibraries(ctx context.Context) ([]catalog.Library, error)

	// FetchLibraryItems lists the top-level items (movies, shows) in a
	// library. Episodes are fetched separately via FetchEpisodes.
	FetchLibraryItems(ctx context.Context, libraryID string) ([]catalog.MediaItem, error)

	// FetchEpisodes lists every episode under a show or season id.
	FetchEpisodes(ctx context.Context, showID string) ([]catalog.MediaItem, error)

	// FetchStreamInfo resolves a playable URL and transport details for a
	// media item, optionally at a constrained quality (empty string for
	// source-default quality).
	FetchStreamInfo(ctx context.Context, mediaID, quality string) (StreamInfo, error)

	// PushProgress reports a local playback position update upstream.
	PushProgress(ctx context.Context, mediaID string, positionMs, durationMs int64, watched bool) error

	// CreatePlayQueue asks the backend to build a server-side play queue
	// (Plex PlayQueues; a no-op returning a synthetic queue id on Jellyfin,
	// which has no equivalent server concept).
	CreatePlayQueue(ctx context.Context, itemIDs []string, startIndex int) (PlayQueue, error)

	// UpdatePlayQueueProgress routes a position update through the backend's
	// PlayQueue-aware timeline call when one exists (Plex's /:/timeline with
	// playQueueID/playQueueItemID); drivers with no PlayQueue concept fall
	// back to the plain PushProgress path.
	UpdatePlayQueueProgress(ctx context.Context, p PlayQueueProgress) error

	// MarkWatched sets the server-side watched flag for a media item. Unlike
	// PushProgress(watched=true), which only updates the playback position
	// timeline, this is the call that actually flips the item's watched
	// state (Plex /:/scrobble, Jellyfin POST PlayedItems).
	MarkWatched(ctx context.Context, mediaID string) error

	// MarkUnwatched reverses MarkWatched.
	MarkUnwatched(ctx context.Context, mediaID string) error

	// FindNextEpisode resolves the episode that follows currentEpisodeID in
	// its show, if any. Best-effort: callers treat a false ok or an error as
	// "no next episode known" rather than a fatal condition.
	FindNextEpisode(ctx context.Context, currentEpisodeID string) (catalog.MediaItem, bool, error)

	// FetchMediaMarkers fetches intro/credits chapter markers for a media
	// item. Best-effort: not every backend exposes these.
	FetchMediaMarkers(ctx context.Context, mediaID string) (MediaMarkers, error)

	// Search queries the backend's own search endpoint rather than the local
	// catalog, surfacing results the local sync pass may not have reached
	// yet.
	Search(ctx context.Context, query string) ([]catalog.MediaItem, error)

	// GetContinueWatching lists the backend's in-progress items (Plex's "on
	// deck", Jellyfin's resumable items).
	GetContinueWatching(ctx context.Context) ([]catalog.MediaItem, error)

	// GetRecentlyAdded lists the backend's most recently added items, capped
	// at limit.
	GetRecentlyAdded(ctx context.Context, limit int) ([]catalog.MediaItem, error)

	// GetSeasons lists the seasons under a show id.
	GetSeasons(ctx context.Context, showID string) ([]catalog.MediaItem, error)

	// Close releases any held connections (websocket notification streams,
	// idle HTTP transports).
	Close() error
}

// HealthStatus is one connection probe's result.
type HealthStatus struct {
	Reachable  bool
	LatencyMs  int64
	Quality    catalog.ConnectionQuality
	AuthStatus catalog.AuthStatus
}

// StreamInfo describes how to play one media item.
type StreamInfo struct {
	URL          string
	Protocol     string // "direct", "hls", "dash"
	Container    string
	Bitrate      int
	DurationMs   int64
	ResumeOffset int64
}

// PlayQueueItem is one entry in a PlayQueue. ID is the backend's own
// identifier for this queue slot (Plex's playQueueItemID, a generated id
// for Jellyfin), distinct from MediaID since the same media item can
// appear more than once in a queue.
type PlayQueueItem struct {
	ID      string
	MediaID string
}

// PlayQueue mirrors Plex's server-side PlayQueue concept, generalized so
// Jellyfin and local-folder sources can return a client-local equivalent
// (spec.md §4.C8).
type PlayQueue struct {
	ID           string
	Version      int
	Items        []PlayQueueItem
	SelectedItem string
}

// PlayQueueProgress carries the PlayQueue identity a progress update must be
// routed through, alongside the usual position/duration/state fields
// (spec.md §4.C8, grounded on playqueue.rs's update_play_queue_progress).
type PlayQueueProgress struct {
	PlayQueueID      string
	PlayQueueVersion int
	PlayQueueItemID  string
	MediaID          string
	PositionMs       int64
	DurationMs       int64
	// State is the backend's playback-state token ("playing", "paused",
	// "stopped"); Plex's /:/timeline expects exactly these values.
	State string
}

// MediaMarkers carries best-effort intro/credits chapter boundaries for one
// media item, mirroring catalog.MediaItem's own marker fields so the two can
// be copied across directly.
type MediaMarkers struct {
	IntroMarkerStartMs   *int64
	IntroMarkerEndMs     *int64
	CreditsMarkerStartMs *int64
	CreditsMarkerEndMs   *int64
}

// AuthError indicates a backend rejected the stored credential. Callers
// should transition the Source's AuthStatus to AuthRequired/AuthExpired and
// stop retrying until re-authentication occurs; it is always Permanent from
// retry.Policy's perspective.
type AuthError struct {
	SourceID string
	Reason   string
}

func (e *AuthError) Error() string {
	return "backend: " + e.SourceID + ": authentication failed: " + e.Reason
}

// Classify marks AuthError permanent: retrying will not fix an expired or
// revoked token without user action.
func (e *AuthError) Classify() retry.Classification { return retry.Permanent }

// ProbeTimeout bounds a single connection probe (spec.md §4.C5).
const ProbeTimeout = 5 * time.Second
