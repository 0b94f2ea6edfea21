package lockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/sentinel"
)

// PostgresStore persists lockout records in the abuse_lockouts table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed lockout store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*models.AccountLockout, error) {
	query := `
		SELECT identifier, locked_until, attempts, reason, created_at
		FROM abuse_lockouts
		WHERE identifier = $1
	`
	var l models.AccountLockout
	err := s.db.QueryRowContext(ctx, query, identifier).
		Scan(&l.Identifier, &l.LockedUntil, &l.Attempts, &l.Reason, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lockout: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &l, nil
}

// Upsert creates or replaces the lockout row. A re-lock on an existing row
// overwrites every column, so a stale expired row never shadows a new lock.
func (s *PostgresStore) Upsert(ctx context.Context, lockout models.AccountLockout) error {
	query := `
		INSERT INTO abuse_lockouts (identifier, locked_until, attempts, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identifier) DO UPDATE SET
			locked_until = EXCLUDED.locked_until,
			attempts = EXCLUDED.attempts,
			reason = EXCLUDED.reason,
			created_at = EXCLUDED.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		lockout.Identifier,
		lockout.LockedUntil,
		lockout.Attempts,
		lockout.Reason,
		lockout.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert lockout: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM abuse_lockouts WHERE identifier = $1`, identifier)
	if err != nil {
		return fmt.Errorf("delete lockout: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM abuse_lockouts WHERE locked_until < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired lockouts: %w: %w", sentinel.ErrUnavailable, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired lockouts rows affected: %w: %w", sentinel.ErrUnavailable, err)
	}
	return deleted, nil
}
