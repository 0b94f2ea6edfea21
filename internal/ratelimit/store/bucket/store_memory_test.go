package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulwark/internal/ratelimit/models"
	"bulwark/pkg/testutil"
)

func TestMemoryUpsertIncrement(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	t.Run("first attempt creates the bucket", func(t *testing.T) {
		store := NewMemory()
		b, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, window)
		require.NoError(t, err)
		assert.Equal(t, 1, b.Attempts)
		assert.Equal(t, now.Add(window), b.ResetAt)
	})

	t.Run("attempts increment inside the window", func(t *testing.T) {
		store := NewMemory()
		for i := 1; i <= 4; i++ {
			b, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now.Add(time.Duration(i)*time.Second), window)
			require.NoError(t, err)
			assert.Equal(t, i, b.Attempts)
			assert.Equal(t, now.Add(time.Second+window), b.ResetAt, "window end stays pinned to the first attempt")
		}
	})

	t.Run("expired window restarts at one", func(t *testing.T) {
		store := NewMemory()
		_, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, window)
		require.NoError(t, err)

		later := now.Add(window + time.Second)
		b, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, later, window)
		require.NoError(t, err)
		assert.Equal(t, 1, b.Attempts)
		assert.Equal(t, later.Add(window), b.ResetAt)
	})

	t.Run("keys are independent per identifier and action", func(t *testing.T) {
		store := NewMemory()
		_, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, window)
		require.NoError(t, err)
		b, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionRegister, now, window)
		require.NoError(t, err)
		assert.Equal(t, 1, b.Attempts)
		b, err = store.UpsertIncrement(ctx, "identifier:alice@example.com", models.ActionLogin, now, window)
		require.NoError(t, err)
		assert.Equal(t, 1, b.Attempts)
	})
}

func TestMemoryGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()

	b, err := store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
	require.NoError(t, err)
	assert.Nil(t, b, "absent bucket reads as nil")

	_, err = store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, time.Minute)
	require.NoError(t, err)

	b, err = store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 1, b.Attempts)
}

func TestMemorySetResetAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()

	t.Run("absent bucket is a no-op", func(t *testing.T) {
		require.NoError(t, store.SetResetAt(ctx, "ip:203.0.113.7", models.ActionLogin, now.Add(time.Hour)))
	})

	t.Run("pins the window end", func(t *testing.T) {
		_, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, time.Minute)
		require.NoError(t, err)

		extended := now.Add(time.Hour)
		require.NoError(t, store.SetResetAt(ctx, "ip:203.0.113.7", models.ActionLogin, extended))

		b, err := store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
		require.NoError(t, err)
		assert.Equal(t, extended, b.ResetAt)
		assert.Equal(t, 1, b.Attempts, "attempts are untouched by a reset pin")
	})
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()

	require.NoError(t, store.Delete(ctx, "ip:203.0.113.7", models.ActionLogin), "deleting an absent bucket is not an error")

	_, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "ip:203.0.113.7", models.ActionLogin))

	b, err := store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestMemoryDeleteByIdentifier(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()

	for _, action := range []models.Action{models.ActionLogin, models.ActionRegister, models.ActionPasswordReset} {
		_, err := store.UpsertIncrement(ctx, "identifier:alice@example.com", action, now, time.Minute)
		require.NoError(t, err)
	}
	_, err := store.UpsertIncrement(ctx, "identifier:bob@example.com", models.ActionLogin, now, time.Minute)
	require.NoError(t, err)

	deleted, err := store.DeleteByIdentifier(ctx, "identifier:alice@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	b, err := store.Get(ctx, "identifier:bob@example.com", models.ActionLogin)
	require.NoError(t, err)
	assert.NotNil(t, b, "other identifiers are untouched")
}

func TestMemoryDeleteExpiredBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.UpsertIncrement(ctx, "ip:203.0.113.1", models.ActionLogin, now, time.Minute)
	require.NoError(t, err)
	_, err = store.UpsertIncrement(ctx, "ip:203.0.113.2", models.ActionLogin, now, time.Hour)
	require.NoError(t, err)

	deleted, err := store.DeleteExpiredBefore(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	b, err := store.Get(ctx, "ip:203.0.113.2", models.ActionLogin)
	require.NoError(t, err)
	assert.NotNil(t, b)
}

// Firing K parallel increments against one fresh key must leave attempts == K:
// a lost update here silently weakens every limit built on the store.
func TestMemoryConcurrentIncrementsLoseNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()

	const goroutines = 64
	res := testutil.RunConcurrent(goroutines, func(int) error {
		_, err := store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, time.Minute)
		return err
	})
	require.EqualValues(t, goroutines, res.Successes)

	b, err := store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, goroutines, b.Attempts)
}
