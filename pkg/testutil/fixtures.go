package testutil

import (
	"time"

	"github.com/google/uuid"

	"bulwark/internal/ratelimit/models"
	id "bulwark/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	UserID1 id.UserID
	UserID2 id.UserID
}{
	UserID1: id.UserID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	UserID2: id.UserID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// CheckRequestBuilder provides a fluent interface for building check requests.
type CheckRequestBuilder struct {
	req models.CheckRequest
}

// NewCheckRequestBuilder creates a CheckRequestBuilder with sensible defaults.
func NewCheckRequestBuilder() *CheckRequestBuilder {
	return &CheckRequestBuilder{
		req: models.CheckRequest{
			IP:         "203.0.113.7",
			Identifier: "alice@example.com",
			UserID:     TestIDs.UserID1.String(),
			Action:     models.ActionLogin,
			UserAgent:  "Mozilla/5.0 (X11; Linux x86_64)",
		},
	}
}

func (b *CheckRequestBuilder) WithIP(ip string) *CheckRequestBuilder {
	b.req.IP = ip
	return b
}

func (b *CheckRequestBuilder) WithIdentifier(identifier string) *CheckRequestBuilder {
	b.req.Identifier = identifier
	return b
}

func (b *CheckRequestBuilder) WithUserID(userID id.UserID) *CheckRequestBuilder {
	b.req.UserID = userID.String()
	return b
}

func (b *CheckRequestBuilder) WithAction(action models.Action) *CheckRequestBuilder {
	b.req.Action = action
	return b
}

func (b *CheckRequestBuilder) WithUserAgent(userAgent string) *CheckRequestBuilder {
	b.req.UserAgent = userAgent
	return b
}

func (b *CheckRequestBuilder) Anonymous() *CheckRequestBuilder {
	b.req.Identifier = ""
	b.req.UserID = ""
	return b
}

func (b *CheckRequestBuilder) Build() models.CheckRequest {
	return b.req
}

// BucketBuilder provides a fluent interface for building attempt buckets.
type BucketBuilder struct {
	bucket models.Bucket
}

// NewBucketBuilder creates a BucketBuilder with sensible defaults.
func NewBucketBuilder() *BucketBuilder {
	return &BucketBuilder{
		bucket: models.Bucket{
			Identifier: "identifier:alice@example.com",
			Action:     models.ActionLogin,
			Attempts:   1,
			ResetAt:    time.Now().Add(5 * time.Minute),
		},
	}
}

func (b *BucketBuilder) WithIdentifier(identifier string) *BucketBuilder {
	b.bucket.Identifier = identifier
	return b
}

func (b *BucketBuilder) WithAction(action models.Action) *BucketBuilder {
	b.bucket.Action = action
	return b
}

func (b *BucketBuilder) WithAttempts(attempts int) *BucketBuilder {
	b.bucket.Attempts = attempts
	return b
}

func (b *BucketBuilder) WithResetAt(resetAt time.Time) *BucketBuilder {
	b.bucket.ResetAt = resetAt
	return b
}

func (b *BucketBuilder) Expired() *BucketBuilder {
	b.bucket.ResetAt = time.Now().Add(-time.Minute)
	return b
}

func (b *BucketBuilder) Build() models.Bucket {
	return b.bucket
}

// LockoutBuilder provides a fluent interface for building account lockouts.
type LockoutBuilder struct {
	lockout models.AccountLockout
}

// NewLockoutBuilder creates a LockoutBuilder with sensible defaults.
func NewLockoutBuilder() *LockoutBuilder {
	now := time.Now()
	return &LockoutBuilder{
		lockout: models.AccountLockout{
			Identifier:  "identifier:alice@example.com",
			LockedUntil: now.Add(15 * time.Minute),
			Attempts:    10,
			Reason:      "lockout threshold reached",
			CreatedAt:   now,
		},
	}
}

func (b *LockoutBuilder) WithIdentifier(identifier string) *LockoutBuilder {
	b.lockout.Identifier = identifier
	return b
}

func (b *LockoutBuilder) WithLockedUntil(until time.Time) *LockoutBuilder {
	b.lockout.LockedUntil = until
	return b
}

func (b *LockoutBuilder) WithAttempts(attempts int) *LockoutBuilder {
	b.lockout.Attempts = attempts
	return b
}

func (b *LockoutBuilder) WithReason(reason string) *LockoutBuilder {
	b.lockout.Reason = reason
	return b
}

func (b *LockoutBuilder) Expired() *LockoutBuilder {
	b.lockout.LockedUntil = time.Now().Add(-time.Minute)
	return b
}

func (b *LockoutBuilder) Build() models.AccountLockout {
	return b.lockout
}

// Quick helper functions for simple test cases

// NewTestCheckRequest creates a login check request for the given IP and identifier.
func NewTestCheckRequest(ip, identifier string) models.CheckRequest {
	return NewCheckRequestBuilder().
		WithIP(ip).
		WithIdentifier(identifier).
		Build()
}

// NewExpiredBucket creates a bucket whose window has already closed.
func NewExpiredBucket(identifier string, action models.Action) models.Bucket {
	return NewBucketBuilder().
		WithIdentifier(identifier).
		WithAction(action).
		Expired().
		Build()
}
