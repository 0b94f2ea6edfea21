package allowlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulwark/internal/ratelimit/models"
	"bulwark/pkg/requestcontext"
)

func newEntry(t *testing.T, entryType models.AllowlistEntryType, identifier string, expiresAt *time.Time) *models.AllowlistEntry {
	t.Helper()
	entry, err := models.NewAllowlistEntry(entryType, identifier, "trusted partner", "ops@example.com", expiresAt)
	require.NoError(t, err)
	return entry
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("absent identifier is not allowlisted", func(t *testing.T) {
		store := NewMemory()
		ok, err := store.IsAllowlisted(ctx, models.AllowlistTypeIP, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty identifier is never allowlisted", func(t *testing.T) {
		store := NewMemory()
		ok, err := store.IsAllowlisted(ctx, models.AllowlistTypeIP, "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("add then check matches", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIP, "203.0.113.7", nil)))

		ok, err := store.IsAllowlisted(ctx, models.AllowlistTypeIP, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("entry type namespaces are independent", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIP, "alice@example.com", nil)))

		ok, err := store.IsAllowlisted(ctx, models.AllowlistTypeIdentifier, "alice@example.com")
		require.NoError(t, err)
		assert.False(t, ok, "an ip entry must not match identifier checks")
	})

	t.Run("expired entry stops matching", func(t *testing.T) {
		store := NewMemory()
		past := time.Now().Add(-time.Minute)
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIP, "203.0.113.7", &past)))

		ok, err := store.IsAllowlisted(ctx, models.AllowlistTypeIP, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expiry is evaluated against the request clock", func(t *testing.T) {
		store := NewMemory()
		expiresAt := time.Now().Add(time.Hour)
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIP, "203.0.113.7", &expiresAt)))

		futureCtx := requestcontext.WithTime(ctx, expiresAt.Add(time.Minute))
		ok, err := store.IsAllowlisted(futureCtx, models.AllowlistTypeIP, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove deletes the entry", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIP, "203.0.113.7", nil)))
		require.NoError(t, store.Remove(ctx, models.AllowlistTypeIP, "203.0.113.7"))

		ok, err := store.IsAllowlisted(ctx, models.AllowlistTypeIP, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list filters expired entries", func(t *testing.T) {
		store := NewMemory()
		past := time.Now().Add(-time.Minute)
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIP, "203.0.113.7", nil)))
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIdentifier, "alice@example.com", &past)))

		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "203.0.113.7", entries[0].Identifier)
	})

	t.Run("delete expired before cutoff", func(t *testing.T) {
		store := NewMemory()
		past := time.Now().Add(-time.Minute)
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIP, "203.0.113.7", nil)))
		require.NoError(t, store.Add(ctx, newEntry(t, models.AllowlistTypeIdentifier, "alice@example.com", &past)))

		deleted, err := store.DeleteExpiredBefore(ctx, time.Now())
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)

		ok, err := store.IsAllowlisted(ctx, models.AllowlistTypeIP, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, ok, "permanent entries survive the sweep")
	})
}
