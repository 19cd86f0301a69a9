// Package eventbus is the typed, in-process publish/subscribe bus that
// carries every catalog mutation, sync phase transition, source status
// change, and playback transition to interested subscribers (principally
// the view-model layer in internal/viewmodel).
//
// It is built on github.com/ThreeDotsLabs/watermill's in-memory gochannel
// transport rather than its NATS JetStream transport: the bus is explicitly
// not exposed off-process, so there is nothing for a message broker to do
// here except add an unused dependency.
package eventbus

import "time"

// EventType is the normative set of event kinds the bus carries.
type EventType string

const (
	MediaCreated      EventType = "media.created"
	MediaUpdated      EventType = "media.updated"
	MediaDeleted      EventType = "media.deleted"
	MediaBatchCreated EventType = "media.batch_created"
	MediaBatchUpdated EventType = "media.batch_updated"

	LibraryCreated         EventType = "library.created"
	LibraryUpdated         EventType = "library.updated"
	LibraryDeleted         EventType = "library.deleted"
	LibraryItemCountChange EventType = "library.item_count_changed"

	SourceAdded               EventType = "source.added"
	SourceUpdated             EventType = "source.updated"
	SourceRemoved             EventType = "source.removed"
	SourceOnlineStatusChanged EventType = "source.online_status_changed"
	SourceCleanedUp           EventType = "source.cleaned_up"
	SourceAuthStatusChanged   EventType = "source.auth_status_changed"
	SourceConnectionLost      EventType = "source.connection_lost"

	SyncStarted   EventType = "sync.started"
	SyncProgress  EventType = "sync.progress"
	SyncCompleted EventType = "sync.completed"
	SyncFailed    EventType = "sync.failed"

	PlaybackStarted         EventType = "playback.started"
	PlaybackPaused          EventType = "playback.paused"
	PlaybackResumed         EventType = "playback.resumed"
	PlaybackStopped         EventType = "playback.stopped"
	PlaybackPositionUpdated EventType = "playback.position_updated"
	PlaybackCompleted       EventType = "playback.completed"

	CacheInvalidated EventType = "cache.invalidated"
	CacheUpdated     EventType = "cache.updated"
	CacheCleared     EventType = "cache.cleared"

	UserAuthenticated      EventType = "user.authenticated"
	UserLoggedOut          EventType = "user.logged_out"
	UserPreferencesChanged EventType = "user.preferences_changed"

	SystemDatabaseMigrated        EventType = "system.database_migrated"
	SystemBackgroundTaskStarted   EventType = "system.background_task_started"
	SystemBackgroundTaskCompleted EventType = "system.background_task_completed"
	SystemErrorOccurred           EventType = "system.error_occurred"

	NavigationRequested                EventType = "navigation.requested"
	NavigationCompleted                EventType = "navigation.completed"
	NavigationHistoryChanged           EventType = "navigation.history_changed"
	NavigationPageTitleChanged         EventType = "navigation.page_title_changed"
	NavigationHeaderConfigChanged      EventType = "navigation.header_config_changed"
	NavigationLibraryNavigationRequest EventType = "navigation.library_navigation_requested"
	NavigationHomeNavigationRequest    EventType = "navigation.home_navigation_requested"
)

// Priority classifies events for consumers that want to triage delivery.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// SourceKind identifies who published an event, mirroring
// original_source/src/events/types.rs's EventSource enum.
type SourceKind string

const (
	SourceSystem     SourceKind = "system"
	SourceRepository SourceKind = "repository"
	SourceService    SourceKind = "service"
	SourceUI         SourceKind = "ui"
	SourceBackend    SourceKind = "backend"
	SourceUser       SourceKind = "user"
)

// EventSource names the specific component that published an event, e.g.
// {Kind: SourceRepository, Name: "media"} or {Kind: SourceBackend, Name: "plex"}.
type EventSource struct {
	Kind SourceKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

// Event is the envelope carried by the bus. Payload is one of the *Payload
// types below, chosen by Type.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Payload   any               `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
	Source    EventSource       `json:"source"`
	Priority  Priority          `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MediaPayload describes a single-item media mutation.
type MediaPayload struct {
	ID        string `json:"id"`
	LibraryID string `json:"library_id"`
}

// MediaBatchPayload describes a bulk media mutation (sync_library batches).
type MediaBatchPayload struct {
	IDs       []string `json:"ids"`
	LibraryID string   `json:"library_id"`
}

// LibraryPayload describes a library mutation.
type LibraryPayload struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
}

// SourcePayload describes a source mutation or status change.
type SourcePayload struct {
	ID                string `json:"id"`
	ConnectionURL     string `json:"connection_url,omitempty"`
	ConnectionQuality string `json:"connection_quality,omitempty"`
	AuthStatus        string `json:"auth_status,omitempty"`
	IsOnline          bool   `json:"is_online"`
}

// SyncPayload describes a sync pass lifecycle transition.
type SyncPayload struct {
	SourceID     string `json:"source_id"`
	LibraryID    string `json:"library_id,omitempty"`
	SyncType     string `json:"sync_type"`
	ItemsSynced  int    `json:"items_synced"`
	TotalItems   *int   `json:"total_items,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// PlaybackPayload describes a playback transition.
type PlaybackPayload struct {
	MediaID    string `json:"media_id"`
	SourceID   string `json:"source_id"`
	PositionMs int64  `json:"position_ms"`
	DurationMs int64  `json:"duration_ms"`
	Watched    bool   `json:"watched"`
}

// CachePayload describes a cache lifecycle event.
type CachePayload struct {
	Kind string `json:"kind"`
	Key  string `json:"key,omitempty"`
}

// UserPayload describes a user/session lifecycle event.
type UserPayload struct {
	SourceID string `json:"source_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// SystemPayload describes process-level lifecycle/error events.
type SystemPayload struct {
	Task    string `json:"task,omitempty"`
	Message string `json:"message,omitempty"`
}

// NavigationPayload describes a UI navigation event.
type NavigationPayload struct {
	Page       string            `json:"page,omitempty"`
	Title      string            `json:"title,omitempty"`
	HeaderInfo map[string]string `json:"header_info,omitempty"`
}
