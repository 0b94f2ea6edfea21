package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bulwark/pkg/domain-errors"
)

func TestBucketExpiry(t *testing.T) {
	now := time.Now()
	bucket := &Bucket{
		Identifier: "ip:203.0.113.7",
		Action:     ActionLogin,
		Attempts:   3,
		ResetAt:    now.Add(time.Minute),
	}

	assert.False(t, bucket.Expired(now))
	assert.False(t, bucket.Expired(now.Add(time.Minute)), "boundary instant is still inside the window")
	assert.True(t, bucket.Expired(now.Add(time.Minute+time.Nanosecond)))
}

func TestAccountLockoutExpiry(t *testing.T) {
	now := time.Now()
	lock := &AccountLockout{
		Identifier:  "identifier:alice@example.com",
		LockedUntil: now.Add(30 * time.Minute),
		Attempts:    10,
		Reason:      "excessive failed logins",
	}

	assert.False(t, lock.Expired(now))
	assert.True(t, lock.Expired(now.Add(30*time.Minute)), "lock releases exactly at locked_until")
}

func TestLockStatus(t *testing.T) {
	t.Run("zero value reads unlocked", func(t *testing.T) {
		var status LockStatus
		assert.False(t, status.Locked())
	})

	t.Run("locked state reads locked", func(t *testing.T) {
		status := LockStatus{State: LockStateLocked, LockedUntil: time.Now().Add(time.Hour)}
		assert.True(t, status.Locked())
	})
}

func TestNewAllowlistEntry(t *testing.T) {
	t.Run("valid entry gets an ID and creation time", func(t *testing.T) {
		entry, err := NewAllowlistEntry(AllowlistTypeIP, "203.0.113.7", "load test source", "ops-1", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, AllowlistTypeIP, entry.Type)
		assert.Equal(t, "ops-1", entry.CreatedBy)
		assert.False(t, entry.CreatedAt.IsZero())
	})

	t.Run("rejects invalid type", func(t *testing.T) {
		_, err := NewAllowlistEntry("cidr", "203.0.113.0/24", "reason", "ops-1", nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects empty identifier", func(t *testing.T) {
		_, err := NewAllowlistEntry(AllowlistTypeIdentifier, "", "reason", "ops-1", nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects empty reason", func(t *testing.T) {
		_, err := NewAllowlistEntry(AllowlistTypeIP, "203.0.113.7", "", "ops-1", nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestAllowlistEntryExpiry(t *testing.T) {
	now := time.Now()

	t.Run("entry without expiry never expires", func(t *testing.T) {
		entry := &AllowlistEntry{Identifier: "203.0.113.7"}
		assert.False(t, entry.IsExpired(now.Add(24*365*time.Hour)))
	})

	t.Run("entry expires after its deadline", func(t *testing.T) {
		expires := now.Add(time.Hour)
		entry := &AllowlistEntry{Identifier: "203.0.113.7", ExpiresAt: &expires}
		assert.False(t, entry.IsExpired(now))
		assert.True(t, entry.IsExpired(now.Add(2*time.Hour)))
	})
}

func TestParseAllowlistEntryType(t *testing.T) {
	t.Run("accepts ip and identifier", func(t *testing.T) {
		for _, raw := range []string{"ip", "identifier"} {
			parsed, err := ParseAllowlistEntryType(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, parsed.String())
		}
	})

	t.Run("rejects empty and unknown", func(t *testing.T) {
		for _, raw := range []string{"", "user_id", "cidr"} {
			_, err := ParseAllowlistEntryType(raw)
			require.Error(t, err, raw)
		}
	})
}
