package catalog

import (
	"context"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// SyncStatusRepository tracks the lifecycle of sync passes, one row per
// (source, sync_type), so the sync orchestrator and view-models can answer
// "is a sync running" without re-deriving it from the event stream.
type SyncStatusRepository struct {
	cat *Catalog
}

func NewSyncStatusRepository(cat *Catalog) *SyncStatusRepository {
	return &SyncStatusRepository{cat: cat}
}

func (r *SyncStatusRepository) Start(ctx context.Context, sourceID string, syncType SyncType) error {
	now := time.Now().UTC()
	_, err := r.cat.db.ExecContext(ctx, `
		INSERT INTO sync_status (source_id, sync_type, status, items_synced, started_at, updated_at)
		VALUES (?,?,'started',0,?,?)
		ON CONFLICT (source_id, sync_type) DO UPDATE SET
			status = 'started', items_synced = 0, error_message = NULL, started_at = excluded.started_at, updated_at = excluded.updated_at`,
		sourceID, string(syncType), now, now,
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SyncStarted,
		Payload: eventbus.SyncPayload{SourceID: sourceID, SyncType: string(syncType)},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.sync_status"},
	})
	return nil
}

func (r *SyncStatusRepository) Progress(ctx context.Context, sourceID string, syncType SyncType, itemsSynced int, totalItems *int) error {
	_, err := r.cat.db.ExecContext(ctx, `
		UPDATE sync_status SET status = 'in_progress', items_synced = ?, total_items = ?, updated_at = ?
		WHERE source_id = ? AND sync_type = ?`,
		itemsSynced, totalItems, time.Now().UTC(), sourceID, string(syncType),
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SyncProgress,
		Payload: eventbus.SyncPayload{SourceID: sourceID, SyncType: string(syncType), ItemsSynced: itemsSynced, TotalItems: totalItems},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.sync_status"},
	})
	return nil
}

func (r *SyncStatusRepository) Complete(ctx context.Context, sourceID string, syncType SyncType, itemsSynced int) error {
	now := time.Now().UTC()
	_, err := r.cat.db.ExecContext(ctx, `
		UPDATE sync_status SET status = 'completed', items_synced = ?, updated_at = ? WHERE source_id = ? AND sync_type = ?`,
		itemsSynced, now, sourceID, string(syncType),
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SyncCompleted,
		Payload: eventbus.SyncPayload{SourceID: sourceID, SyncType: string(syncType), ItemsSynced: itemsSynced},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.sync_status"},
	})
	return nil
}

func (r *SyncStatusRepository) Fail(ctx context.Context, sourceID string, syncType SyncType, cause error) error {
	msg := cause.Error()
	_, err := r.cat.db.ExecContext(ctx, `
		UPDATE sync_status SET status = 'failed', error_message = ?, updated_at = ? WHERE source_id = ? AND sync_type = ?`,
		msg, time.Now().UTC(), sourceID, string(syncType),
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SyncFailed,
		Payload: eventbus.SyncPayload{SourceID: sourceID, SyncType: string(syncType), ErrorMessage: msg},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.sync_status"},
	})
	return nil
}

func (r *SyncStatusRepository) Find(ctx context.Context, sourceID string, syncType SyncType) (SyncStatus, error) {
	var s SyncStatus
	var status, st string
	err := r.cat.db.QueryRowContext(ctx, `
		SELECT source_id, sync_type, status, items_synced, total_items, error_message, started_at, updated_at
		FROM sync_status WHERE source_id = ? AND sync_type = ?`, sourceID, string(syncType),
	).Scan(&s.SourceID, &st, &status, &s.ItemsSynced, &s.TotalItems, &s.ErrorMessage, &s.StartedAt, &s.UpdatedAt)
	if err != nil {
		return SyncStatus{}, err
	}
	s.SyncType = SyncType(st)
	s.Status = RunStatus(status)
	return s, nil
}
