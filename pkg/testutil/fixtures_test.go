package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bulwark/internal/ratelimit/models"
)

func TestCheckRequestBuilder(t *testing.T) {
	t.Run("defaults build a complete login request", func(t *testing.T) {
		req := NewCheckRequestBuilder().Build()

		assert.Equal(t, "203.0.113.7", req.IP)
		assert.Equal(t, "alice@example.com", req.Identifier)
		assert.Equal(t, TestIDs.UserID1.String(), req.UserID)
		assert.Equal(t, models.ActionLogin, req.Action)
	})

	t.Run("with user id carries the canonical uuid string", func(t *testing.T) {
		req := NewCheckRequestBuilder().WithUserID(TestIDs.UserID2).Build()

		assert.Equal(t, "22222222-2222-2222-2222-222222222222", req.UserID)
	})

	t.Run("anonymous clears identifier and user id", func(t *testing.T) {
		req := NewCheckRequestBuilder().Anonymous().Build()

		assert.Empty(t, req.Identifier)
		assert.Empty(t, req.UserID)
	})
}

func TestBucketBuilder(t *testing.T) {
	t.Run("expired bucket resets in the past", func(t *testing.T) {
		bucket := NewExpiredBucket("ip:203.0.113.7", models.ActionAPI)

		assert.Equal(t, "ip:203.0.113.7", bucket.Identifier)
		assert.Equal(t, models.ActionAPI, bucket.Action)
		assert.True(t, bucket.ResetAt.Before(time.Now()))
	})
}
