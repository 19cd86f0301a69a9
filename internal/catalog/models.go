// Package catalog is the local content-addressed store (spec.md §3, §4.C1):
// sources, libraries, media items, playback progress, the progress sync
// queue, home sections, people, and cache tracking. It is the system's
// single writer of authoritative state; every write publishes on
// internal/eventbus after committing.
package catalog

import "time"

// SourceType discriminates the backend kind a Source connects to.
type SourceType string

const (
	SourceTypePlex     SourceType = "plex"
	SourceTypeJellyfin SourceType = "jellyfin"
	SourceTypeLocal    SourceType = "local"
)

// ConnectionQuality classifies the active endpoint for a Source, driving the
// connection supervisor's probe cadence (spec.md §4.C5).
type ConnectionQuality string

const (
	QualityLocal   ConnectionQuality = "local"
	QualityRemote  ConnectionQuality = "remote"
	QualityRelay   ConnectionQuality = "relay"
	QualityUnknown ConnectionQuality = ""
)

// AuthStatus tracks whether a Source's stored credentials are usable.
type AuthStatus string

const (
	AuthUnknown       AuthStatus = "unknown"
	AuthAuthenticated AuthStatus = "authenticated"
	AuthRequired      AuthStatus = "auth_required"
	AuthExpired       AuthStatus = "expired"
)

// ServerConnection is one candidate endpoint for a Source, embedded as JSON
// rather than a table (spec.md §3).
type ServerConnection struct {
	URI            string `json:"uri"`
	Protocol       string `json:"protocol"`
	Address        string `json:"address"`
	Port           int    `json:"port"`
	Local          bool   `json:"local"`
	Relay          bool   `json:"relay"`
	Priority       int    `json:"priority"`
	IsAvailable    bool   `json:"is_available"`
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
}

// Source is a connection to one media origin.
type Source struct {
	ID                     string
	Name                   string
	SourceType             SourceType
	AuthProviderID         *string
	ConnectionURL          *string
	Connections            []ServerConnection
	MachineID              *string
	IsOwned                bool
	IsOnline               bool
	LastSync               *time.Time
	LastConnectionTest     *time.Time
	ConnectionFailureCount int
	ConnectionQuality      ConnectionQuality
	AuthStatus             AuthStatus
	LastAuthCheck          *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// LibraryType discriminates the kind of content a Library holds.
type LibraryType string

const (
	LibraryMovies LibraryType = "movies"
	LibraryShows  LibraryType = "shows"
	LibraryMusic  LibraryType = "music"
	LibraryPhotos LibraryType = "photos"
	LibraryMixed  LibraryType = "mixed"
)

// Library is a browsable grouping within a Source.
type Library struct {
	ID          string
	SourceID    string
	Title       string
	LibraryType LibraryType
	Icon        *string
	ItemCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MediaType discriminates the polymorphic MediaItem variant (spec.md §9:
// tagged sum type, not inheritance).
type MediaType string

const (
	MediaMovie      MediaType = "movie"
	MediaShow       MediaType = "show"
	MediaSeason     MediaType = "season"
	MediaEpisode    MediaType = "episode"
	MediaMusicAlbum MediaType = "music_album"
	MediaMusicTrack MediaType = "music_track"
	MediaPhoto      MediaType = "photo"
)

// MediaItem is a polymorphic record for one playable or container entity.
// Episode-only fields are valid only when MediaType == MediaEpisode.
type MediaItem struct {
	ID          string
	LibraryID   string
	SourceID    string
	MediaType   MediaType
	Title       string
	SortTitle   *string
	Year        *int
	DurationMs  *int64
	Rating      *float64
	PosterURL   *string
	BackdropURL *string
	Overview    *string
	Genres      []string
	AddedAt     *time.Time
	UpdatedAt   time.Time

	// Episode-only.
	ParentID      *string
	SeasonNumber  *int
	EpisodeNumber *int

	// Chapter markers, best-effort per backend.
	IntroMarkerStartMs   *int64
	IntroMarkerEndMs     *int64
	CreditsMarkerStartMs *int64
	CreditsMarkerEndMs   *int64

	Metadata map[string]any

	// ContentHash lets sync_library skip emitting MediaUpdated for rows
	// whose content did not actually change (spec.md §8 R2).
	ContentHash string
}

// IsEpisode reports whether this item carries the episode-only fields.
func (m MediaItem) IsEpisode() bool { return m.MediaType == MediaEpisode }

// Person is a cast/crew member, normalized across media items.
type Person struct {
	ID       string
	Name     string
	ImageURL *string
}

// PersonType classifies a Person's credited role on one MediaItem.
type PersonType string

const (
	PersonActor    PersonType = "actor"
	PersonDirector PersonType = "director"
	PersonWriter   PersonType = "writer"
	PersonProducer PersonType = "producer"
)

// MediaPeople links a Person to a MediaItem with a role.
type MediaPeople struct {
	MediaItemID string
	PersonID    string
	PersonType  PersonType
	Role        *string
	SortOrder   *int
}

// PlaybackProgress is one row per (media, user) pair.
type PlaybackProgress struct {
	MediaID          string
	UserID           *string
	PositionMs       int64
	DurationMs       int64
	Watched          bool
	ViewCount        int
	LastWatchedAt    *time.Time
	PlayQueueID      *string
	PlayQueueVersion *int
	PlayQueueItemID  *string
	SourceID         *string
	UpdatedAt        time.Time
}

// FractionWatched returns PositionMs/DurationMs, or 0 if DurationMs is 0.
func (p PlaybackProgress) FractionWatched() float64 {
	if p.DurationMs <= 0 {
		return 0
	}
	return float64(p.PositionMs) / float64(p.DurationMs)
}

// WatchedThreshold is the fraction of playback past which a position update
// is treated as a completed watch (spec.md §3, §4.C3 point 4).
const WatchedThreshold = 0.9

// ChangeType discriminates the kind of local playback mutation queued for
// the owning backend.
type ChangeType string

const (
	ChangeProgressUpdate ChangeType = "progress_update"
	ChangeMarkWatched    ChangeType = "mark_watched"
	ChangeMarkUnwatched  ChangeType = "mark_unwatched"
)

// SyncQueueStatus is the lifecycle state of a PlaybackSyncQueue row.
type SyncQueueStatus string

const (
	QueuePending SyncQueueStatus = "pending"
	QueueSyncing SyncQueueStatus = "syncing"
	QueueSynced  SyncQueueStatus = "synced"
	QueueFailed  SyncQueueStatus = "failed"
)

// PlaybackSyncQueue is a durable outbox entry for one not-yet-flushed local
// playback change (spec.md §4.C7).
type PlaybackSyncQueue struct {
	ID            int64
	MediaItemID   string
	SourceID      string
	UserID        *string
	ChangeType    ChangeType
	PositionMs    *int64
	Completed     *bool
	CreatedAt     time.Time
	LastAttemptAt *time.Time
	AttemptCount  int
	ErrorMessage  *string
	Status        SyncQueueStatus
}

// HomeSection is a per-source home page hub with an ordered list of item refs.
type HomeSection struct {
	ID        string
	SourceID  string
	Title     string
	IsStale   bool
	UpdatedAt time.Time
}

// HomeSectionItem is one ordered entry within a HomeSection.
type HomeSectionItem struct {
	HomeSectionID string
	MediaItemID   string
	SortOrder     int
}

// SyncType discriminates the kind of sync pass a SyncStatus row records.
// original_source and spec.md §9 leave the full set implementation-defined;
// this module supports at minimum {full, incremental} per spec.md's
// Open Question resolution (see DESIGN.md).
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
)

// RunStatus is the lifecycle state of one sync pass.
type RunStatus string

const (
	RunStarted    RunStatus = "started"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// SyncStatus is one row per (source, sync_type) tracking the most recent run.
type SyncStatus struct {
	SourceID     string
	SyncType     SyncType
	Status       RunStatus
	ItemsSynced  int
	TotalItems   *int
	ErrorMessage *string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// CacheEntry tracks one cached media file on disk, keyed by
// (source_id, media_id, quality). Chunk/queue/variant/statistics/header
// tables are specified at the interface level only (spec.md §3): their
// scheduling is straightforward LRU+priority and is not exercised by the
// sync/progress/playlist paths this module focuses on.
type CacheEntry struct {
	SourceID  string
	MediaID   string
	Quality   string
	FilePath  string
	SizeBytes int64
	FetchedAt time.Time
}

// AuthProvider stores one source's authentication identity and an
// encrypted token blob, recovered from original_source/src/models/
// auth_provider.rs (dropped by the distilled spec). ProviderKind matches
// the Source's backend family.
type AuthProvider struct {
	ID             string
	ProviderKind   string // "plex-account", "jellyfin-user", "local"
	Username       string
	EncryptedToken string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
