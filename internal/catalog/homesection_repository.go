package catalog

import (
	"context"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// HomeSectionRepository persists per-source home page hubs. Rebuilt wholesale
// on each refresh rather than diffed, since hub membership and ordering are
// cheap to recompute and hard to patch incrementally (spec.md §4.C1).
type HomeSectionRepository struct {
	cat *Catalog
}

func NewHomeSectionRepository(cat *Catalog) *HomeSectionRepository {
	return &HomeSectionRepository{cat: cat}
}

func (r *HomeSectionRepository) Replace(ctx context.Context, section HomeSection, itemIDs []string) error {
	tx, err := r.cat.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	section.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO home_sections (id, source_id, title, is_stale, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (source_id, id) DO UPDATE SET
			title = excluded.title, is_stale = excluded.is_stale, updated_at = excluded.updated_at`,
		section.ID, section.SourceID, section.Title, section.IsStale, section.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM home_section_items WHERE home_section_id = ?`, section.ID); err != nil {
		return err
	}
	for i, itemID := range itemIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO home_section_items (home_section_id, media_item_id, sort_order) VALUES (?,?,?)`,
			section.ID, itemID, i); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.CacheUpdated,
		Payload: eventbus.CachePayload{Kind: "home_section", Key: section.ID},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.home_section"},
	})
	return nil
}

// MarkStale flags a source's home sections for refresh without deleting
// them, so the UI can keep showing the previous hub while new data loads.
func (r *HomeSectionRepository) MarkStale(ctx context.Context, sourceID string) error {
	_, err := r.cat.db.ExecContext(ctx, `UPDATE home_sections SET is_stale = true WHERE source_id = ?`, sourceID)
	return err
}

func (r *HomeSectionRepository) FindBySource(ctx context.Context, sourceID string) ([]HomeSection, error) {
	rows, err := r.cat.db.QueryContext(ctx, `
		SELECT id, source_id, title, is_stale, updated_at FROM home_sections WHERE source_id = ? ORDER BY title`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HomeSection
	for rows.Next() {
		var s HomeSection
		if err := rows.Scan(&s.ID, &s.SourceID, &s.Title, &s.IsStale, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *HomeSectionRepository) FindItems(ctx context.Context, sectionID string) ([]string, error) {
	rows, err := r.cat.db.QueryContext(ctx, `
		SELECT media_item_id FROM home_section_items WHERE home_section_id = ? ORDER BY sort_order`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
