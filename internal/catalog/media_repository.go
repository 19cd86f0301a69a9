package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// MediaRepository persists MediaItem rows and computes the content hash
// sync_library uses to skip no-op updates (spec.md §8 R2).
type MediaRepository struct {
	cat *Catalog
}

func NewMediaRepository(cat *Catalog) *MediaRepository {
	return &MediaRepository{cat: cat}
}

// ComputeContentHash hashes the fields a backend can actually change, so
// re-syncing unchanged metadata never produces a spurious MediaUpdated.
func ComputeContentHash(m MediaItem) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%v|%v|%v|%s|%s|%s|%v|%v|%v|%v",
		m.Title, derefStr(m.SortTitle), derefInt(m.Year), derefInt64(m.DurationMs), derefFloat(m.Rating),
		derefStr(m.PosterURL), derefStr(m.BackdropURL), derefStr(m.Overview),
		derefInt(m.SeasonNumber), derefInt(m.EpisodeNumber), m.Genres, m.Metadata,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// UpsertBatch writes a batch of items in one transaction (spec.md §4.C6:
// sync_library batches at 200 items) and publishes a single
// MediaBatchCreated/MediaBatchUpdated event rather than one per row.
func (r *MediaRepository) UpsertBatch(ctx context.Context, libraryID string, items []MediaItem) (created, updated []string, err error) {
	tx, err := r.cat.BeginTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	for i := range items {
		items[i].ContentHash = ComputeContentHash(items[i])
		existingHash, findErr := findContentHash(ctx, tx, items[i].SourceID, items[i].ID)
		switch {
		case errors.Is(findErr, sql.ErrNoRows):
			created = append(created, items[i].ID)
		case findErr != nil:
			return nil, nil, findErr
		case existingHash != items[i].ContentHash:
			updated = append(updated, items[i].ID)
		default:
			continue // unchanged, skip the write entirely
		}
		if err := upsertMediaItemTx(ctx, tx, items[i]); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	if len(created) > 0 {
		r.cat.Publish(ctx, eventbus.Event{
			Type:    eventbus.MediaBatchCreated,
			Payload: eventbus.MediaBatchPayload{IDs: created, LibraryID: libraryID},
			Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.media"},
		})
	}
	if len(updated) > 0 {
		r.cat.Publish(ctx, eventbus.Event{
			Type:    eventbus.MediaBatchUpdated,
			Payload: eventbus.MediaBatchPayload{IDs: updated, LibraryID: libraryID},
			Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.media"},
		})
	}
	return created, updated, nil
}

func findContentHash(ctx context.Context, tx *sql.Tx, sourceID, id string) (string, error) {
	var hash string
	err := tx.QueryRowContext(ctx, `SELECT content_hash FROM media_items WHERE source_id = ? AND id = ?`, sourceID, id).Scan(&hash)
	return hash, err
}

func upsertMediaItemTx(ctx context.Context, tx *sql.Tx, m MediaItem) error {
	genresJSON, err := json.Marshal(m.Genres)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO media_items (
			id, library_id, source_id, media_type, title, sort_title, year, duration_ms,
			rating, poster_url, backdrop_url, overview, genres, added_at, updated_at,
			parent_id, season_number, episode_number,
			intro_marker_start_ms, intro_marker_end_ms, credits_marker_start_ms, credits_marker_end_ms,
			metadata, content_hash
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (source_id, id) DO UPDATE SET
			library_id = excluded.library_id,
			media_type = excluded.media_type,
			title = excluded.title,
			sort_title = excluded.sort_title,
			year = excluded.year,
			duration_ms = excluded.duration_ms,
			rating = excluded.rating,
			poster_url = excluded.poster_url,
			backdrop_url = excluded.backdrop_url,
			overview = excluded.overview,
			genres = excluded.genres,
			added_at = excluded.added_at,
			updated_at = excluded.updated_at,
			parent_id = excluded.parent_id,
			season_number = excluded.season_number,
			episode_number = excluded.episode_number,
			intro_marker_start_ms = excluded.intro_marker_start_ms,
			intro_marker_end_ms = excluded.intro_marker_end_ms,
			credits_marker_start_ms = excluded.credits_marker_start_ms,
			credits_marker_end_ms = excluded.credits_marker_end_ms,
			metadata = excluded.metadata,
			content_hash = excluded.content_hash`,
		m.ID, m.LibraryID, m.SourceID, string(m.MediaType), m.Title, m.SortTitle, m.Year, m.DurationMs,
		m.Rating, m.PosterURL, m.BackdropURL, m.Overview, string(genresJSON), m.AddedAt, m.UpdatedAt,
		m.ParentID, m.SeasonNumber, m.EpisodeNumber,
		m.IntroMarkerStartMs, m.IntroMarkerEndMs, m.CreditsMarkerStartMs, m.CreditsMarkerEndMs,
		string(metaJSON), m.ContentHash,
	)
	return err
}

func (r *MediaRepository) FindByID(ctx context.Context, sourceID, id string) (MediaItem, error) {
	row := r.cat.db.QueryRowContext(ctx, mediaSelectColumns+` FROM media_items WHERE source_id = ? AND id = ?`, sourceID, id)
	m, err := scanMediaItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaItem{}, &NotFoundError{Kind: "media_item", ID: id}
	}
	return m, err
}

// FindByLibrary lists items in a library, newest-added first.
func (r *MediaRepository) FindByLibrary(ctx context.Context, libraryID string) ([]MediaItem, error) {
	rows, err := r.cat.db.QueryContext(ctx, mediaSelectColumns+`
		FROM media_items WHERE library_id = ? ORDER BY sort_title`, libraryID)
	if err != nil {
		return nil, err
	}
	return scanMediaItems(rows)
}

// FindByItemID looks up a media item by id alone, for callers (the playlist
// service) that only hold an item id and not its owning source. ids are
// unique across the whole catalog, not just per source.
func (r *MediaRepository) FindByItemID(ctx context.Context, id string) (MediaItem, error) {
	row := r.cat.db.QueryRowContext(ctx, mediaSelectColumns+` FROM media_items WHERE id = ?`, id)
	m, err := scanMediaItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaItem{}, &NotFoundError{Kind: "media_item", ID: id}
	}
	return m, err
}

// FindEpisodePlaylist returns every episode of showID ordered by season then
// episode number, the shape the playlist service needs to build a
// PlaylistContext::TvShow (spec.md §4.C8).
func (r *MediaRepository) FindEpisodePlaylist(ctx context.Context, showID string) ([]MediaItem, error) {
	rows, err := r.cat.db.QueryContext(ctx, mediaSelectColumns+`
		FROM media_items
		WHERE parent_id IN (SELECT id FROM media_items WHERE parent_id = ?)
		   OR parent_id = ?
		ORDER BY season_number, episode_number`, showID, showID)
	if err != nil {
		return nil, err
	}
	return scanMediaItems(rows)
}

// FindSince returns items in libraryID updated after since, for incremental
// sync reconciliation.
func (r *MediaRepository) FindSince(ctx context.Context, libraryID string, since time.Time) ([]MediaItem, error) {
	rows, err := r.cat.db.QueryContext(ctx, mediaSelectColumns+`
		FROM media_items WHERE library_id = ? AND updated_at > ? ORDER BY updated_at`, libraryID, since)
	if err != nil {
		return nil, err
	}
	return scanMediaItems(rows)
}

// DeleteMissing removes items in libraryID whose id is not in keepIDs,
// called only on a full sync reconciliation pass (spec.md §4.C6).
func (r *MediaRepository) DeleteMissing(ctx context.Context, libraryID string, keepIDs []string) ([]string, error) {
	existing, err := r.FindByLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = true
	}

	var removed []string
	tx, err := r.cat.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, item := range existing {
		if keep[item.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_items WHERE source_id = ? AND id = ?`, item.SourceID, item.ID); err != nil {
			return nil, err
		}
		removed = append(removed, item.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, id := range removed {
		r.cat.Publish(ctx, eventbus.Event{
			Type:    eventbus.MediaDeleted,
			Payload: eventbus.MediaPayload{ID: id, LibraryID: libraryID},
			Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.media"},
		})
	}
	return removed, nil
}

const mediaSelectColumns = `
	SELECT id, library_id, source_id, media_type, title, sort_title, year, duration_ms,
	       rating, poster_url, backdrop_url, overview, genres, added_at, updated_at,
	       parent_id, season_number, episode_number,
	       intro_marker_start_ms, intro_marker_end_ms, credits_marker_start_ms, credits_marker_end_ms,
	       metadata, content_hash`

func scanMediaItems(rows *sql.Rows) ([]MediaItem, error) {
	defer rows.Close()
	var out []MediaItem
	for rows.Next() {
		m, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMediaItem(row scannable) (MediaItem, error) {
	var m MediaItem
	var mediaType string
	var genresJSON, metaJSON string

	err := row.Scan(
		&m.ID, &m.LibraryID, &m.SourceID, &mediaType, &m.Title, &m.SortTitle, &m.Year, &m.DurationMs,
		&m.Rating, &m.PosterURL, &m.BackdropURL, &m.Overview, &genresJSON, &m.AddedAt, &m.UpdatedAt,
		&m.ParentID, &m.SeasonNumber, &m.EpisodeNumber,
		&m.IntroMarkerStartMs, &m.IntroMarkerEndMs, &m.CreditsMarkerStartMs, &m.CreditsMarkerEndMs,
		&metaJSON, &m.ContentHash,
	)
	if err != nil {
		return MediaItem{}, err
	}
	m.MediaType = MediaType(mediaType)
	if genresJSON != "" {
		if err := json.Unmarshal([]byte(genresJSON), &m.Genres); err != nil {
			return MediaItem{}, err
		}
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			return MediaItem{}, err
		}
	}
	return m, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
