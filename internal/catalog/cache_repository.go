package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// CacheRepository tracks cached media files on disk. Chunk-level scheduling
// (LRU eviction, priority queues) lives in the disk cache manager itself;
// this repository only records what is present, for IsStale lookups and
// eviction accounting.
type CacheRepository struct {
	cat *Catalog
}

func NewCacheRepository(cat *Catalog) *CacheRepository {
	return &CacheRepository{cat: cat}
}

func (r *CacheRepository) Record(ctx context.Context, e CacheEntry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now().UTC()
	}
	_, err := r.cat.db.ExecContext(ctx, `
		INSERT INTO cache_entries (source_id, media_id, quality, file_path, size_bytes, fetched_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (source_id, media_id, quality) DO UPDATE SET
			file_path = excluded.file_path, size_bytes = excluded.size_bytes, fetched_at = excluded.fetched_at`,
		e.SourceID, e.MediaID, e.Quality, e.FilePath, e.SizeBytes, e.FetchedAt,
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.CacheUpdated,
		Payload: eventbus.CachePayload{Kind: "media_file", Key: e.MediaID},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.cache"},
	})
	return nil
}

func (r *CacheRepository) Find(ctx context.Context, sourceID, mediaID, quality string) (CacheEntry, error) {
	var e CacheEntry
	err := r.cat.db.QueryRowContext(ctx, `
		SELECT source_id, media_id, quality, file_path, size_bytes, fetched_at
		FROM cache_entries WHERE source_id = ? AND media_id = ? AND quality = ?`, sourceID, mediaID, quality,
	).Scan(&e.SourceID, &e.MediaID, &e.Quality, &e.FilePath, &e.SizeBytes, &e.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, &NotFoundError{Kind: "cache_entry", ID: mediaID}
	}
	return e, err
}

func (r *CacheRepository) Invalidate(ctx context.Context, sourceID, mediaID string) error {
	_, err := r.cat.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE source_id = ? AND media_id = ?`, sourceID, mediaID)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.CacheInvalidated,
		Payload: eventbus.CachePayload{Kind: "media_file", Key: mediaID},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.cache"},
	})
	return nil
}

// TotalSize sums size_bytes across all cached files, for eviction decisions.
func (r *CacheRepository) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	err := r.cat.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM cache_entries`).Scan(&total)
	return total, err
}
