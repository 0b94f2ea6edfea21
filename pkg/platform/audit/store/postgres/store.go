// Package postgres persists audit events in the abuse_audit_log table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "bulwark/pkg/domain"
	audit "bulwark/pkg/platform/audit"
)

const defaultListLimit = 100

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. Replayed IDs are ignored so a publisher
// retry after a timed-out-but-committed insert cannot duplicate the row.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO abuse_audit_log (
			id, event, severity, identifier, ip_address,
			user_id, request_id, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	var userID *uuid.UUID
	if !event.UserID.IsNil() {
		uid := uuid.UUID(event.UserID)
		userID = &uid
	}

	details := []byte("{}")
	if event.Details != nil {
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, query,
		eventID,
		string(event.Event),
		string(event.Severity),
		event.Identifier,
		event.IPAddress,
		userID,
		event.RequestID,
		details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, event, severity, identifier, ip_address,
		       user_id, request_id, details, created_at
		FROM abuse_audit_log
		ORDER BY created_at DESC, id
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var events []audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// scanEvent reads one audit row. Accepts *sql.Row or *sql.Rows.
func scanEvent(row interface{ Scan(dest ...any) error }) (audit.Event, error) {
	var (
		event      audit.Event
		eventID    uuid.UUID
		eventType  string
		severity   string
		userID     *uuid.UUID
		rawDetails []byte
	)

	err := row.Scan(
		&eventID,
		&eventType,
		&severity,
		&event.Identifier,
		&event.IPAddress,
		&userID,
		&event.RequestID,
		&rawDetails,
		&event.Timestamp,
	)
	if err != nil {
		return audit.Event{}, fmt.Errorf("scan audit event: %w", err)
	}

	event.ID = eventID.String()
	event.Event = audit.AuditEvent(eventType)
	event.Severity = audit.Severity(severity)
	if userID != nil {
		event.UserID = id.UserID(*userID)
	}
	if len(rawDetails) > 0 {
		if err := json.Unmarshal(rawDetails, &event.Details); err != nil {
			return audit.Event{}, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	return event, nil
}

var _ audit.Store = (*Store)(nil)
