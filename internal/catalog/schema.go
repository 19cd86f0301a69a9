package catalog

import (
	"database/sql"
	"strings"

	"github.com/tomtom215/fedsync/internal/logging"
)

// migrations are ordered and additive (spec.md §6). Column additions guard
// against duplicate-column errors the same way internal/database/
// database.go's own ALTER TABLEs do, since DuckDB has no
// `ADD COLUMN IF NOT EXISTS`.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		auth_provider_id TEXT,
		connection_url TEXT,
		connections TEXT NOT NULL DEFAULT '[]',
		machine_id TEXT,
		is_owned BOOLEAN NOT NULL DEFAULT false,
		is_online BOOLEAN NOT NULL DEFAULT false,
		last_sync TIMESTAMP,
		last_connection_test TIMESTAMP,
		connection_failure_count INTEGER NOT NULL DEFAULT 0,
		connection_quality TEXT NOT NULL DEFAULT '',
		auth_status TEXT NOT NULL DEFAULT 'unknown',
		last_auth_check TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS auth_providers (
		id TEXT PRIMARY KEY,
		provider_kind TEXT NOT NULL,
		username TEXT NOT NULL,
		encrypted_token TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS libraries (
		id TEXT NOT NULL,
		source_id TEXT NOT NULL REFERENCES sources(id),
		title TEXT NOT NULL,
		library_type TEXT NOT NULL,
		icon TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_id, id)
	)`,

	`CREATE TABLE IF NOT EXISTS media_items (
		id TEXT NOT NULL,
		library_id TEXT NOT NULL,
		source_id TEXT NOT NULL REFERENCES sources(id),
		media_type TEXT NOT NULL,
		title TEXT NOT NULL,
		sort_title TEXT,
		year INTEGER,
		duration_ms BIGINT,
		rating DOUBLE,
		poster_url TEXT,
		backdrop_url TEXT,
		overview TEXT,
		genres TEXT NOT NULL DEFAULT '[]',
		added_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		parent_id TEXT,
		season_number INTEGER,
		episode_number INTEGER,
		intro_marker_start_ms BIGINT,
		intro_marker_end_ms BIGINT,
		credits_marker_start_ms BIGINT,
		credits_marker_end_ms BIGINT,
		metadata TEXT NOT NULL DEFAULT '{}',
		content_hash TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (source_id, id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_media_library ON media_items(library_id)`,
	`CREATE INDEX IF NOT EXISTS idx_media_source ON media_items(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_media_type ON media_items(media_type)`,
	`CREATE INDEX IF NOT EXISTS idx_media_sort_title ON media_items(sort_title)`,
	`CREATE INDEX IF NOT EXISTS idx_media_year ON media_items(year)`,
	`CREATE INDEX IF NOT EXISTS idx_media_rating ON media_items(rating)`,
	`CREATE INDEX IF NOT EXISTS idx_media_added_at ON media_items(added_at)`,
	`CREATE INDEX IF NOT EXISTS idx_media_duration ON media_items(duration_ms)`,
	`CREATE INDEX IF NOT EXISTS idx_media_library_sort_title ON media_items(library_id, sort_title)`,
	`CREATE INDEX IF NOT EXISTS idx_media_library_year ON media_items(library_id, year)`,
	`CREATE INDEX IF NOT EXISTS idx_media_library_rating ON media_items(library_id, rating)`,
	`CREATE INDEX IF NOT EXISTS idx_media_library_added_at ON media_items(library_id, added_at)`,
	`CREATE INDEX IF NOT EXISTS idx_media_library_type_sort ON media_items(library_id, media_type, sort_title)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_media_episode_unique ON media_items(parent_id, season_number, episode_number) WHERE media_type = 'episode'`,

	`CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image_url TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS media_people (
		media_item_id TEXT NOT NULL,
		person_id TEXT NOT NULL REFERENCES people(id),
		person_type TEXT NOT NULL,
		role TEXT,
		sort_order INTEGER,
		PRIMARY KEY (media_item_id, person_id, person_type)
	)`,

	`CREATE TABLE IF NOT EXISTS playback_progress (
		media_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		position_ms BIGINT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		watched BOOLEAN NOT NULL DEFAULT false,
		view_count INTEGER NOT NULL DEFAULT 0,
		last_watched_at TIMESTAMP,
		play_queue_id TEXT,
		play_queue_version INTEGER,
		play_queue_item_id TEXT,
		source_id TEXT,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (media_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_progress_last_watched ON playback_progress(last_watched_at)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_media_watched ON playback_progress(media_id, watched)`,

	`CREATE SEQUENCE IF NOT EXISTS playback_sync_queue_id_seq`,
	`CREATE TABLE IF NOT EXISTS playback_sync_queue (
		id BIGINT PRIMARY KEY DEFAULT nextval('playback_sync_queue_id_seq'),
		media_item_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		user_id TEXT,
		change_type TEXT NOT NULL,
		position_ms BIGINT,
		completed BOOLEAN,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_attempt_at TIMESTAMP,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_queue_status_created ON playback_sync_queue(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_media_source ON playback_sync_queue(media_item_id, source_id)`,

	`CREATE TABLE IF NOT EXISTS home_sections (
		id TEXT NOT NULL,
		source_id TEXT NOT NULL REFERENCES sources(id),
		title TEXT NOT NULL,
		is_stale BOOLEAN NOT NULL DEFAULT true,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_id, id)
	)`,

	`CREATE TABLE IF NOT EXISTS home_section_items (
		home_section_id TEXT NOT NULL,
		media_item_id TEXT NOT NULL,
		sort_order INTEGER NOT NULL,
		PRIMARY KEY (home_section_id, media_item_id)
	)`,

	`CREATE TABLE IF NOT EXISTS sync_status (
		source_id TEXT NOT NULL REFERENCES sources(id),
		sync_type TEXT NOT NULL,
		status TEXT NOT NULL,
		items_synced INTEGER NOT NULL DEFAULT 0,
		total_items INTEGER,
		error_message TEXT,
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_id, sync_type)
	)`,

	`CREATE TABLE IF NOT EXISTS cache_entries (
		source_id TEXT NOT NULL,
		media_id TEXT NOT NULL,
		quality TEXT NOT NULL,
		file_path TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_id, media_id, quality)
	)`,
}

// Migrate applies every pending migration in order. Errors that indicate a
// column already exists are swallowed, matching database.go's tolerance for
// re-applying ALTER TABLE statements across process restarts.
func Migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			if isDuplicateColumnError(err) {
				logging.Debug().Str("component", "catalog").Msg("skipping already-applied migration")
				continue
			}
			return err
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column")
}
