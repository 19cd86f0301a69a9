package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// ProgressRepository persists PlaybackProgress and enqueues the
// corresponding PlaybackSyncQueue row in the same transaction, so a local
// playback update is never recorded without a durable intent to push it
// upstream (spec.md §4.C7).
type ProgressRepository struct {
	cat *Catalog
}

func NewProgressRepository(cat *Catalog) *ProgressRepository {
	return &ProgressRepository{cat: cat}
}

// UpsertAndEnqueue records a position update and queues it for the owning
// backend. watched is computed by the caller from
// PlaybackProgress.FractionWatched() against WatchedThreshold.
func (r *ProgressRepository) UpsertAndEnqueue(ctx context.Context, p PlaybackProgress, changeType ChangeType) error {
	tx, err := r.cat.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p.UpdatedAt = time.Now().UTC()
	userID := derefStr(p.UserID)

	var wasWatched bool
	switch err := tx.QueryRowContext(ctx, `SELECT watched FROM playback_progress WHERE media_id = ? AND user_id = ?`, p.MediaID, userID).Scan(&wasWatched); {
	case err == nil, errors.Is(err, sql.ErrNoRows):
		// fall through with wasWatched's zero value on no existing row
	default:
		return err
	}
	if p.Watched && !wasWatched {
		p.ViewCount++
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO playback_progress (
			media_id, user_id, position_ms, duration_ms, watched, view_count,
			last_watched_at, play_queue_id, play_queue_version, play_queue_item_id,
			source_id, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (media_id, user_id) DO UPDATE SET
			position_ms = excluded.position_ms,
			duration_ms = excluded.duration_ms,
			watched = excluded.watched,
			view_count = excluded.view_count,
			last_watched_at = excluded.last_watched_at,
			play_queue_id = excluded.play_queue_id,
			play_queue_version = excluded.play_queue_version,
			play_queue_item_id = excluded.play_queue_item_id,
			source_id = excluded.source_id,
			updated_at = excluded.updated_at`,
		p.MediaID, userID, p.PositionMs, p.DurationMs, p.Watched, p.ViewCount,
		p.LastWatchedAt, p.PlayQueueID, p.PlayQueueVersion, p.PlayQueueItemID,
		p.SourceID, p.UpdatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO playback_sync_queue (media_item_id, source_id, user_id, change_type, position_ms, completed, status)
		VALUES (?,?,?,?,?,?, 'pending')`,
		p.MediaID, derefStr(p.SourceID), p.UserID, string(changeType), p.PositionMs, p.Watched,
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	evtType := eventbus.PlaybackPositionUpdated
	if p.Watched {
		evtType = eventbus.PlaybackCompleted
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type: evtType,
		Payload: eventbus.PlaybackPayload{
			MediaID: p.MediaID, SourceID: derefStr(p.SourceID),
			PositionMs: p.PositionMs, DurationMs: p.DurationMs, Watched: p.Watched,
		},
		Source: eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.progress"},
	})
	return nil
}

func (r *ProgressRepository) FindByMedia(ctx context.Context, mediaID, userID string) (PlaybackProgress, error) {
	row := r.cat.db.QueryRowContext(ctx, `
		SELECT media_id, user_id, position_ms, duration_ms, watched, view_count,
		       last_watched_at, play_queue_id, play_queue_version, play_queue_item_id, source_id, updated_at
		FROM playback_progress WHERE media_id = ? AND user_id = ?`, mediaID, userID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PlaybackProgress{}, &NotFoundError{Kind: "playback_progress", ID: mediaID}
	}
	return p, err
}

func scanProgress(row scannable) (PlaybackProgress, error) {
	var p PlaybackProgress
	var userID string
	err := row.Scan(
		&p.MediaID, &userID, &p.PositionMs, &p.DurationMs, &p.Watched, &p.ViewCount,
		&p.LastWatchedAt, &p.PlayQueueID, &p.PlayQueueVersion, &p.PlayQueueItemID, &p.SourceID, &p.UpdatedAt,
	)
	if err != nil {
		return PlaybackProgress{}, err
	}
	if userID != "" {
		p.UserID = &userID
	}
	return p, nil
}

// ClaimPending atomically moves up to limit pending rows to "syncing" and
// returns them, so two progress-queue workers never pick up the same row
// (spec.md §4.C7, §5 concurrency).
func (r *ProgressRepository) ClaimPending(ctx context.Context, limit int) ([]PlaybackSyncQueue, error) {
	tx, err := r.cat.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM playback_sync_queue WHERE status = 'pending' ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	var claimed []PlaybackSyncQueue
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE playback_sync_queue SET status = 'syncing', last_attempt_at = ? WHERE id = ? AND status = 'pending'`,
			time.Now().UTC(), id)
		if err != nil {
			return nil, err
		}
		row := tx.QueryRowContext(ctx, `
			SELECT id, media_item_id, source_id, user_id, change_type, position_ms, completed,
			       created_at, last_attempt_at, attempt_count, error_message, status
			FROM playback_sync_queue WHERE id = ?`, id)
		item, err := scanQueueItem(row)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, item)
	}

	return claimed, tx.Commit()
}

// FindLatestQueued returns the most recently created pending or failed
// queue row for (mediaItemID, sourceID), for SyncImmediate's out-of-cadence
// flush. The bool is false if no such row exists.
func (r *ProgressRepository) FindLatestQueued(ctx context.Context, mediaItemID, sourceID string) (PlaybackSyncQueue, bool, error) {
	row := r.cat.db.QueryRowContext(ctx, `
		SELECT id, media_item_id, source_id, user_id, change_type, position_ms, completed,
		       created_at, last_attempt_at, attempt_count, error_message, status
		FROM playback_sync_queue
		WHERE media_item_id = ? AND source_id = ? AND status IN ('pending', 'failed')
		ORDER BY created_at DESC LIMIT 1`, mediaItemID, sourceID)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PlaybackSyncQueue{}, false, nil
	}
	if err != nil {
		return PlaybackSyncQueue{}, false, err
	}
	return item, true, nil
}

// MarkSynced flips a queue row to "synced" after the backend accepted it.
func (r *ProgressRepository) MarkSynced(ctx context.Context, id int64) error {
	_, err := r.cat.db.ExecContext(ctx, `UPDATE playback_sync_queue SET status = 'synced' WHERE id = ?`, id)
	return err
}

// MarkFailed records a failed delivery attempt, incrementing attempt_count
// and capturing the error for GetFailedRetryable's backoff decision.
func (r *ProgressRepository) MarkFailed(ctx context.Context, id int64, cause error) error {
	msg := cause.Error()
	_, err := r.cat.db.ExecContext(ctx, `
		UPDATE playback_sync_queue
		SET status = 'failed', attempt_count = attempt_count + 1, error_message = ?
		WHERE id = ?`, msg, id)
	return err
}

// GetFailedRetryable returns failed rows with fewer than maxAttempts tries,
// for the progress queue's separate retry pass.
func (r *ProgressRepository) GetFailedRetryable(ctx context.Context, maxAttempts int) ([]PlaybackSyncQueue, error) {
	rows, err := r.cat.db.QueryContext(ctx, `
		SELECT id, media_item_id, source_id, user_id, change_type, position_ms, completed,
		       created_at, last_attempt_at, attempt_count, error_message, status
		FROM playback_sync_queue WHERE status = 'failed' AND attempt_count < ? ORDER BY last_attempt_at`, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlaybackSyncQueue
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// RequeuePending resets a previously-claimed row back to pending, for when
// a worker picks it up but the backend connection drops before it completes.
func (r *ProgressRepository) RequeuePending(ctx context.Context, id int64) error {
	_, err := r.cat.db.ExecContext(ctx, `UPDATE playback_sync_queue SET status = 'pending' WHERE id = ?`, id)
	return err
}

func scanQueueItem(row scannable) (PlaybackSyncQueue, error) {
	var q PlaybackSyncQueue
	var changeType, status string
	err := row.Scan(
		&q.ID, &q.MediaItemID, &q.SourceID, &q.UserID, &changeType, &q.PositionMs, &q.Completed,
		&q.CreatedAt, &q.LastAttemptAt, &q.AttemptCount, &q.ErrorMessage, &status,
	)
	if err != nil {
		return PlaybackSyncQueue{}, err
	}
	q.ChangeType = ChangeType(changeType)
	q.Status = SyncQueueStatus(status)
	return q, nil
}
