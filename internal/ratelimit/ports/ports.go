// Package ports defines shared interfaces for the ratelimit module.
// Interfaces are placed here when consumed by multiple services to avoid duplication.
package ports

import (
	"context"
	"time"

	"bulwark/internal/ratelimit/models"
	audit "bulwark/pkg/platform/audit"
)

// BucketStore manages fixed-window attempt counters.
// Implementations must make UpsertIncrement atomic: concurrent callers on the
// same key never lose an increment.
type BucketStore interface {
	// Get returns the bucket for a key/action pair, or nil when absent.
	// Expired buckets are returned as stored; staleness is the caller's call.
	Get(ctx context.Context, identifier string, action models.Action) (*models.Bucket, error)

	// UpsertIncrement records one attempt in a single round trip. It creates
	// the bucket with attempts=1 and resetAt=now+window, restarts an expired
	// window the same way, or increments the live window. Returns the
	// post-increment state.
	UpsertIncrement(ctx context.Context, identifier string, action models.Action, now time.Time, window time.Duration) (*models.Bucket, error)

	// SetResetAt pins a bucket's window end. Used to push resetAt out when a
	// backoff escalation extends a denial.
	SetResetAt(ctx context.Context, identifier string, action models.Action, resetAt time.Time) error

	// Delete removes the bucket for a key/action pair. Deleting an absent
	// bucket is not an error.
	Delete(ctx context.Context, identifier string, action models.Action) error

	// DeleteByIdentifier removes every action bucket for one key and reports
	// how many were deleted.
	DeleteByIdentifier(ctx context.Context, identifier string) (int64, error)

	// DeleteExpiredBefore removes buckets whose window closed before cutoff
	// and reports how many were deleted.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockoutStore persists account lockout records.
type LockoutStore interface {
	// Get returns the lockout for an identifier, or nil when absent.
	// Expired records are returned as stored; expiry is evaluated by the
	// lockout service against the request clock.
	Get(ctx context.Context, identifier string) (*models.AccountLockout, error)

	// Upsert creates or replaces the lockout for an identifier.
	Upsert(ctx context.Context, lockout models.AccountLockout) error

	// Delete removes the lockout for an identifier. Deleting an absent
	// record is not an error.
	Delete(ctx context.Context, identifier string) error

	// DeleteExpiredBefore removes lockouts that ended before cutoff and
	// reports how many were deleted.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AllowlistStore manages rate limit bypass entries.
type AllowlistStore interface {
	// IsAllowlisted checks if an identifier of the given type should bypass
	// rate limiting. Expired entries never match.
	IsAllowlisted(ctx context.Context, entryType models.AllowlistEntryType, identifier string) (bool, error)

	// Add creates a new allowlist entry.
	Add(ctx context.Context, entry *models.AllowlistEntry) error

	// Remove deletes an allowlist entry.
	Remove(ctx context.Context, entryType models.AllowlistEntryType, identifier string) error

	// List returns all allowlist entries.
	List(ctx context.Context) ([]*models.AllowlistEntry, error)
}

// AuditPublisher is the never-blocking event sink used on the enforcement path.
// Satisfied by the security publisher.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}
