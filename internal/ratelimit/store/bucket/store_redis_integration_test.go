//go:build integration

package bucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/store/bucket"
	"bulwark/pkg/testutil"
	"bulwark/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	client *redis.Client
	store  *bucket.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	rc := containers.GetManager().GetRedis(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: rc.Addr})
	s.store = bucket.NewRedis(s.client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *RedisStoreSuite) TestUpsertIncrementLifecycle() {
	ctx := context.Background()
	now := time.Now()
	window := 5 * time.Minute

	b, err := s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, window)
	s.Require().NoError(err)
	s.Equal(1, b.Attempts)
	s.WithinDuration(now.Add(window), b.ResetAt, time.Second)

	b, err = s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now.Add(time.Second), window)
	s.Require().NoError(err)
	s.Equal(2, b.Attempts)

	later := now.Add(window + time.Minute)
	b, err = s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, later, window)
	s.Require().NoError(err)
	s.Equal(1, b.Attempts, "expired window restarts the counter")
}

func (s *RedisStoreSuite) TestConcurrentIncrementsLoseNothing() {
	ctx := context.Background()
	now := time.Now()

	const goroutines = 50
	res := testutil.RunConcurrent(goroutines, func(int) error {
		_, err := s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, time.Minute)
		return err
	})
	s.Require().EqualValues(goroutines, res.Successes)

	b, err := s.store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
	s.Require().NoError(err)
	s.Require().NotNil(b)
	s.Equal(goroutines, b.Attempts)
}

func (s *RedisStoreSuite) TestSetResetAtExtendsTTL() {
	ctx := context.Background()
	now := time.Now()

	_, err := s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, time.Minute)
	s.Require().NoError(err)

	extended := now.Add(time.Hour)
	s.Require().NoError(s.store.SetResetAt(ctx, "ip:203.0.113.7", models.ActionLogin, extended))

	b, err := s.store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
	s.Require().NoError(err)
	s.WithinDuration(extended, b.ResetAt, time.Second)

	ttl, err := s.client.PTTL(ctx, "bulwark:bucket:ip:203.0.113.7:login").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Hour, "TTL must cover the extended cooldown")
}

func (s *RedisStoreSuite) TestDeleteByIdentifier() {
	ctx := context.Background()
	now := time.Now()

	for _, action := range []models.Action{models.ActionLogin, models.ActionRegister} {
		_, err := s.store.UpsertIncrement(ctx, "identifier:alice@example.com", action, now, time.Minute)
		s.Require().NoError(err)
	}
	_, err := s.store.UpsertIncrement(ctx, "identifier:bob@example.com", models.ActionLogin, now, time.Minute)
	s.Require().NoError(err)

	deleted, err := s.store.DeleteByIdentifier(ctx, "identifier:alice@example.com")
	s.Require().NoError(err)
	s.EqualValues(2, deleted)

	b, err := s.store.Get(ctx, "identifier:bob@example.com", models.ActionLogin)
	s.Require().NoError(err)
	s.NotNil(b)
}
