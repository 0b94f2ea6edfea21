package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/sentinel"
)

const redisKeyPrefix = "bulwark:lockout:"

// redisRetention keeps an expired row visible for a while after the lock
// ends, so status queries and audit tooling can still see it before the TTL
// reclaims the key.
const redisRetention = time.Hour

// RedisStore persists lockout records as JSON values with a TTL that covers
// the lock duration plus a retention margin. Expired keys are reclaimed by
// Redis itself, so DeleteExpiredBefore is a no-op on this backend.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedis constructs a Redis-backed lockout store.
func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(identifier string) string {
	return redisKeyPrefix + identifier
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (*models.AccountLockout, error) {
	raw, err := s.client.Get(ctx, redisKey(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lockout: %w: %w", sentinel.ErrUnavailable, err)
	}

	var l models.AccountLockout
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("decode lockout: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &l, nil
}

func (s *RedisStore) Upsert(ctx context.Context, lockout models.AccountLockout) error {
	raw, err := json.Marshal(lockout)
	if err != nil {
		return fmt.Errorf("encode lockout: %w", err)
	}

	ttl := time.Until(lockout.LockedUntil) + redisRetention
	if ttl < redisRetention {
		ttl = redisRetention
	}
	if err := s.client.Set(ctx, redisKey(lockout.Identifier), raw, ttl).Err(); err != nil {
		return fmt.Errorf("upsert lockout: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, redisKey(identifier)).Err(); err != nil {
		return fmt.Errorf("delete lockout: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// DeleteExpiredBefore is a no-op: keys carry a TTL and Redis reclaims them.
func (s *RedisStore) DeleteExpiredBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
