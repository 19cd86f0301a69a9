package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// LibraryRepository persists Library rows.
type LibraryRepository struct {
	cat *Catalog
}

func NewLibraryRepository(cat *Catalog) *LibraryRepository {
	return &LibraryRepository{cat: cat}
}

func (r *LibraryRepository) Upsert(ctx context.Context, l Library) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	_, err := r.cat.db.ExecContext(ctx, `
		INSERT INTO libraries (id, source_id, title, library_type, icon, item_count, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (source_id, id) DO UPDATE SET
			title = excluded.title,
			library_type = excluded.library_type,
			icon = excluded.icon,
			item_count = excluded.item_count,
			updated_at = excluded.updated_at`,
		l.ID, l.SourceID, l.Title, string(l.LibraryType), l.Icon, l.ItemCount, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return err
	}

	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.LibraryUpdated,
		Payload: eventbus.LibraryPayload{ID: l.ID, SourceID: l.SourceID},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.library"},
	})
	return nil
}

// UpdateItemCount is called after a sync pass reconciles item totals; it
// publishes LibraryItemCountChange rather than the generic LibraryUpdated so
// view-models can distinguish a count-only refresh from a metadata edit.
func (r *LibraryRepository) UpdateItemCount(ctx context.Context, sourceID, libraryID string, count int) error {
	_, err := r.cat.db.ExecContext(ctx, `
		UPDATE libraries SET item_count = ?, updated_at = ? WHERE source_id = ? AND id = ?`,
		count, time.Now().UTC(), sourceID, libraryID,
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.LibraryItemCountChange,
		Payload: eventbus.LibraryPayload{ID: libraryID, SourceID: sourceID},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.library"},
	})
	return nil
}

func (r *LibraryRepository) Delete(ctx context.Context, sourceID, id string) error {
	_, err := r.cat.db.ExecContext(ctx, `DELETE FROM libraries WHERE source_id = ? AND id = ?`, sourceID, id)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.LibraryDeleted,
		Payload: eventbus.LibraryPayload{ID: id, SourceID: sourceID},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.library"},
	})
	return nil
}

func (r *LibraryRepository) FindByID(ctx context.Context, sourceID, id string) (Library, error) {
	row := r.cat.db.QueryRowContext(ctx, `
		SELECT id, source_id, title, library_type, icon, item_count, created_at, updated_at
		FROM libraries WHERE source_id = ? AND id = ?`, sourceID, id)
	l, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Library{}, &NotFoundError{Kind: "library", ID: id}
	}
	return l, err
}

func (r *LibraryRepository) FindBySource(ctx context.Context, sourceID string) ([]Library, error) {
	rows, err := r.cat.db.QueryContext(ctx, `
		SELECT id, source_id, title, library_type, icon, item_count, created_at, updated_at
		FROM libraries WHERE source_id = ? ORDER BY title`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Library
	for rows.Next() {
		l, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLibrary(row scannable) (Library, error) {
	var l Library
	var libType string
	err := row.Scan(&l.ID, &l.SourceID, &l.Title, &libType, &l.Icon, &l.ItemCount, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Library{}, err
	}
	l.LibraryType = LibraryType(libType)
	return l, nil
}
