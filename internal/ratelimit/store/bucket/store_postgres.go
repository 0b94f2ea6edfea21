package bucket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/sentinel"
)

// PostgresStore persists fixed-window counters in the abuse_buckets table.
// All write paths are single statements so the read-modify-write happens
// server-side; application code never races on a bucket row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed bucket store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, identifier string, action models.Action) (*models.Bucket, error) {
	query := `
		SELECT identifier, action, attempts, reset_at
		FROM abuse_buckets
		WHERE identifier = $1 AND action = $2
	`
	var b models.Bucket
	err := s.db.QueryRowContext(ctx, query, identifier, string(action)).
		Scan(&b.Identifier, &b.Action, &b.Attempts, &b.ResetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bucket: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &b, nil
}

// UpsertIncrement creates, restarts, or increments the window in one
// statement. The CASE logic runs inside the UPSERT, so two concurrent calls
// on the same key serialize on the row and neither increment is lost.
func (s *PostgresStore) UpsertIncrement(ctx context.Context, identifier string, action models.Action, now time.Time, window time.Duration) (*models.Bucket, error) {
	query := `
		INSERT INTO abuse_buckets (identifier, action, attempts, reset_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (identifier, action) DO UPDATE SET
			attempts = CASE
				WHEN abuse_buckets.reset_at < $4 THEN 1
				ELSE abuse_buckets.attempts + 1
			END,
			reset_at = CASE
				WHEN abuse_buckets.reset_at < $4 THEN $3
				ELSE abuse_buckets.reset_at
			END
		RETURNING identifier, action, attempts, reset_at
	`
	var b models.Bucket
	err := s.db.QueryRowContext(ctx, query, identifier, string(action), now.Add(window), now).
		Scan(&b.Identifier, &b.Action, &b.Attempts, &b.ResetAt)
	if err != nil {
		return nil, fmt.Errorf("upsert bucket: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &b, nil
}

func (s *PostgresStore) SetResetAt(ctx context.Context, identifier string, action models.Action, resetAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE abuse_buckets SET reset_at = $3 WHERE identifier = $1 AND action = $2`,
		identifier, string(action), resetAt,
	)
	if err != nil {
		return fmt.Errorf("set bucket reset: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, identifier string, action models.Action) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM abuse_buckets WHERE identifier = $1 AND action = $2`,
		identifier, string(action),
	)
	if err != nil {
		return fmt.Errorf("delete bucket: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) DeleteByIdentifier(ctx context.Context, identifier string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM abuse_buckets WHERE identifier = $1`, identifier)
	if err != nil {
		return 0, fmt.Errorf("delete buckets for identifier: %w: %w", sentinel.ErrUnavailable, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete buckets for identifier: %w", err)
	}
	return deleted, nil
}

func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM abuse_buckets WHERE reset_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired buckets: %w: %w", sentinel.ErrUnavailable, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired buckets: %w", err)
	}
	return deleted, nil
}
