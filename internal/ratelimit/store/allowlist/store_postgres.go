package allowlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/sentinel"
	"bulwark/pkg/requestcontext"
)

// PostgresStore persists allowlist entries in the abuse_allowlist table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed allowlist store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// IsAllowlisted matches only live entries: an expired row stops matching the
// moment its expiry passes, regardless of when the janitor reclaims it.
func (s *PostgresStore) IsAllowlisted(ctx context.Context, entryType models.AllowlistEntryType, identifier string) (bool, error) {
	if identifier == "" {
		return false, nil
	}
	query := `
		SELECT 1
		FROM abuse_allowlist
		WHERE entry_type = $1
		  AND identifier = $2
		  AND (expires_at IS NULL OR expires_at > $3)
		LIMIT 1
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, string(entryType), identifier, requestcontext.Now(ctx)).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check allowlist: %w: %w", sentinel.ErrUnavailable, err)
	}
	return true, nil
}

func (s *PostgresStore) Add(ctx context.Context, entry *models.AllowlistEntry) error {
	if entry == nil {
		return fmt.Errorf("allowlist entry is required")
	}
	query := `
		INSERT INTO abuse_allowlist (id, entry_type, identifier, reason, expires_at, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entry_type, identifier) DO UPDATE SET
			reason = EXCLUDED.reason,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			created_by = EXCLUDED.created_by
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Type),
		entry.Identifier,
		entry.Reason,
		entry.ExpiresAt,
		entry.CreatedAt,
		entry.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("add allowlist entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, entryType models.AllowlistEntryType, identifier string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM abuse_allowlist WHERE entry_type = $1 AND identifier = $2`,
		string(entryType), identifier)
	if err != nil {
		return fmt.Errorf("remove allowlist entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.AllowlistEntry, error) {
	query := `
		SELECT id, entry_type, identifier, reason, expires_at, created_at, created_by
		FROM abuse_allowlist
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, requestcontext.Now(ctx))
	if err != nil {
		return nil, fmt.Errorf("list allowlist entries: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []*models.AllowlistEntry
	for rows.Next() {
		var entry models.AllowlistEntry
		var expiresAt sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.Type, &entry.Identifier, &entry.Reason, &expiresAt, &entry.CreatedAt, &entry.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan allowlist entry: %w: %w", sentinel.ErrUnavailable, err)
		}
		if expiresAt.Valid {
			entry.ExpiresAt = &expiresAt.Time
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowlist entries: %w: %w", sentinel.ErrUnavailable, err)
	}
	return entries, nil
}

// DeleteExpiredBefore removes entries whose bypass lapsed before cutoff.
func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM abuse_allowlist WHERE expires_at IS NOT NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired allowlist entries: %w: %w", sentinel.ErrUnavailable, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired allowlist entries rows affected: %w: %w", sentinel.ErrUnavailable, err)
	}
	return deleted, nil
}
