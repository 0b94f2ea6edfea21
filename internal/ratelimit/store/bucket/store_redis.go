package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/sentinel"
)

const redisKeyPrefix = "bulwark:bucket:"

// incrementScript performs the create-or-reset-or-increment protocol in one
// server-side call. Values live in a hash so attempts and reset_at move
// together; the TTL tracks the window end with a grace margin so a row
// outlives its window just long enough for Get to observe it as expired.
//
// KEYS[1]: bucket hash key
// ARGV[1]: now, unix milliseconds
// ARGV[2]: window, milliseconds
// Returns {attempts, reset_at_ms}.
var incrementScript = redis.NewScript(`
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if not reset or now > reset then
  reset = now + window
  redis.call('HSET', KEYS[1], 'attempts', 1, 'reset_at', reset)
  redis.call('PEXPIRE', KEYS[1], window * 2)
  return {1, reset}
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return {attempts, reset}
`)

// setResetScript pins reset_at and stretches the TTL to cover the extended
// cooldown, so a backoff window cannot be cut short by key expiry.
//
// KEYS[1]: bucket hash key
// ARGV[1]: new reset_at, unix milliseconds
// ARGV[2]: now, unix milliseconds
var setResetScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'reset_at', ARGV[1])
local ttl = (tonumber(ARGV[1]) - tonumber(ARGV[2])) * 2
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// RedisStore keeps fixed-window counters in redis hashes. The atomic unit is
// a Lua script (EVALSHA with EVAL fallback, handled by go-redis), so
// concurrent callers on one key cannot lose increments across processes.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedis constructs a redis-backed bucket store.
func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, identifier string, action models.Action) (*models.Bucket, error) {
	values, err := s.client.HGetAll(ctx, redisKey(identifier, action)).Result()
	if err != nil {
		return nil, fmt.Errorf("get bucket: %w: %w", sentinel.ErrUnavailable, err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	attempts, err := strconv.Atoi(values["attempts"])
	if err != nil {
		return nil, fmt.Errorf("get bucket: parse attempts: %w", err)
	}
	resetMs, err := strconv.ParseInt(values["reset_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("get bucket: parse reset_at: %w", err)
	}

	return &models.Bucket{
		Identifier: identifier,
		Action:     action,
		Attempts:   attempts,
		ResetAt:    time.UnixMilli(resetMs),
	}, nil
}

func (s *RedisStore) UpsertIncrement(ctx context.Context, identifier string, action models.Action, now time.Time, window time.Duration) (*models.Bucket, error) {
	result, err := incrementScript.Run(ctx, s.client,
		[]string{redisKey(identifier, action)},
		now.UnixMilli(), window.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("upsert bucket: %w: %w", sentinel.ErrUnavailable, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("upsert bucket: unexpected script reply %T", result)
	}
	attempts, _ := values[0].(int64)
	resetMs, _ := values[1].(int64)

	return &models.Bucket{
		Identifier: identifier,
		Action:     action,
		Attempts:   int(attempts),
		ResetAt:    time.UnixMilli(resetMs),
	}, nil
}

func (s *RedisStore) SetResetAt(ctx context.Context, identifier string, action models.Action, resetAt time.Time) error {
	err := setResetScript.Run(ctx, s.client,
		[]string{redisKey(identifier, action)},
		resetAt.UnixMilli(), time.Now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("set bucket reset: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier string, action models.Action) error {
	if err := s.client.Del(ctx, redisKey(identifier, action)).Err(); err != nil {
		return fmt.Errorf("delete bucket: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) DeleteByIdentifier(ctx context.Context, identifier string) (int64, error) {
	var deleted int64
	var cursor uint64
	pattern := redisKeyPrefix + identifier + ":*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan buckets for identifier: %w: %w", sentinel.ErrUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete buckets for identifier: %w: %w", sentinel.ErrUnavailable, err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// DeleteExpiredBefore is a no-op for redis: key TTLs already reclaim expired
// buckets, so the janitor has nothing to sweep here.
func (s *RedisStore) DeleteExpiredBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func redisKey(identifier string, action models.Action) string {
	return redisKeyPrefix + identifier + ":" + string(action)
}
