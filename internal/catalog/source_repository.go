package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tomtom215/fedsync/internal/eventbus"
)

// SourceRepository persists Source rows.
type SourceRepository struct {
	cat *Catalog
}

func NewSourceRepository(cat *Catalog) *SourceRepository {
	return &SourceRepository{cat: cat}
}

func (r *SourceRepository) Insert(ctx context.Context, s Source) error {
	tx, err := r.cat.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.insertTx(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SourceAdded,
		Payload: eventbus.SourcePayload{ID: s.ID, ConnectionURL: derefStr(s.ConnectionURL)},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.source"},
	})
	return nil
}

func (r *SourceRepository) insertTx(ctx context.Context, tx *sql.Tx, s Source) error {
	connJSON, err := json.Marshal(s.Connections)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sources (
			id, name, source_type, auth_provider_id, connection_url, connections,
			machine_id, is_owned, is_online, last_sync, last_connection_test,
			connection_failure_count, connection_quality, auth_status,
			last_auth_check, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Name, string(s.SourceType), s.AuthProviderID, s.ConnectionURL, string(connJSON),
		s.MachineID, s.IsOwned, s.IsOnline, s.LastSync, s.LastConnectionTest,
		s.ConnectionFailureCount, string(s.ConnectionQuality), string(s.AuthStatus),
		s.LastAuthCheck, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// UpdateConnectionState persists a connection-supervisor probe result and
// publishes SourceConnectionLost/SourceAuthStatusChanged as appropriate.
func (r *SourceRepository) UpdateConnectionState(ctx context.Context, id string, quality ConnectionQuality, online bool, failureCount int) error {
	now := time.Now().UTC()
	_, err := r.cat.db.ExecContext(ctx, `
		UPDATE sources
		SET connection_quality = ?, is_online = ?, connection_failure_count = ?,
		    last_connection_test = ?, updated_at = ?
		WHERE id = ?`,
		string(quality), online, failureCount, now, now, id,
	)
	if err != nil {
		return err
	}

	evtType := eventbus.SourceOnlineStatusChanged
	if !online {
		evtType = eventbus.SourceConnectionLost
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    evtType,
		Payload: eventbus.SourcePayload{ID: id, ConnectionQuality: string(quality), IsOnline: online},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.source"},
	})
	return nil
}

// UpdateActiveConnection persists the connection supervisor's chosen
// endpoint and quality classification, publishing SourceUpdated when the
// URL or quality actually changed.
func (r *SourceRepository) UpdateActiveConnection(ctx context.Context, id, url string, connections []ServerConnection, quality ConnectionQuality) error {
	connJSON, err := json.Marshal(connections)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = r.cat.db.ExecContext(ctx, `
		UPDATE sources
		SET connection_url = ?, connections = ?, connection_quality = ?,
		    is_online = true, connection_failure_count = 0,
		    last_connection_test = ?, updated_at = ?
		WHERE id = ?`,
		url, string(connJSON), string(quality), now, now, id,
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SourceUpdated,
		Payload: eventbus.SourcePayload{ID: id, ConnectionURL: url, ConnectionQuality: string(quality), IsOnline: true},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.source"},
	})
	return nil
}

// UpdateAuthStatus records a change in a source's credential validity.
func (r *SourceRepository) UpdateAuthStatus(ctx context.Context, id string, status AuthStatus) error {
	now := time.Now().UTC()
	_, err := r.cat.db.ExecContext(ctx, `
		UPDATE sources SET auth_status = ?, last_auth_check = ?, updated_at = ? WHERE id = ?`,
		string(status), now, now, id,
	)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SourceAuthStatusChanged,
		Payload: eventbus.SourcePayload{ID: id, AuthStatus: string(status)},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.source"},
	})
	return nil
}

func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.cat.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	r.cat.Publish(ctx, eventbus.Event{
		Type:    eventbus.SourceCleanedUp,
		Payload: eventbus.SourcePayload{ID: id},
		Source:  eventbus.EventSource{Kind: eventbus.SourceRepository, Name: "catalog.source"},
	})
	return nil
}

func (r *SourceRepository) FindByID(ctx context.Context, id string) (Source, error) {
	row := r.cat.db.QueryRowContext(ctx, `
		SELECT id, name, source_type, auth_provider_id, connection_url, connections,
		       machine_id, is_owned, is_online, last_sync, last_connection_test,
		       connection_failure_count, connection_quality, auth_status,
		       last_auth_check, created_at, updated_at
		FROM sources WHERE id = ?`, id)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, &NotFoundError{Kind: "source", ID: id}
	}
	return s, err
}

func (r *SourceRepository) FindAll(ctx context.Context) ([]Source, error) {
	rows, err := r.cat.db.QueryContext(ctx, `
		SELECT id, name, source_type, auth_provider_id, connection_url, connections,
		       machine_id, is_owned, is_online, last_sync, last_connection_test,
		       connection_failure_count, connection_quality, auth_status,
		       last_auth_check, created_at, updated_at
		FROM sources ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (Source, error) {
	var s Source
	var sourceType, quality, authStatus string
	var connJSON string

	err := row.Scan(
		&s.ID, &s.Name, &sourceType, &s.AuthProviderID, &s.ConnectionURL, &connJSON,
		&s.MachineID, &s.IsOwned, &s.IsOnline, &s.LastSync, &s.LastConnectionTest,
		&s.ConnectionFailureCount, &quality, &authStatus,
		&s.LastAuthCheck, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return Source{}, err
	}
	s.SourceType = SourceType(sourceType)
	s.ConnectionQuality = ConnectionQuality(quality)
	s.AuthStatus = AuthStatus(authStatus)
	if connJSON != "" {
		if err := json.Unmarshal([]byte(connJSON), &s.Connections); err != nil {
			return Source{}, err
		}
	}
	return s, nil
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
