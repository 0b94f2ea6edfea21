//go:build integration

package bucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/store/bucket"
	"bulwark/pkg/testutil"
	"bulwark/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *bucket.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = bucket.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "abuse_buckets"))
}

func (s *PostgresStoreSuite) TestUpsertIncrementLifecycle() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	window := 5 * time.Minute

	b, err := s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, window)
	s.Require().NoError(err)
	s.Equal(1, b.Attempts)
	s.WithinDuration(now.Add(window), b.ResetAt, time.Second)

	b, err = s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now.Add(time.Second), window)
	s.Require().NoError(err)
	s.Equal(2, b.Attempts)
	s.WithinDuration(now.Add(window), b.ResetAt, time.Second, "window end stays pinned while live")

	// A request after the window expired restarts the counter.
	later := now.Add(window + time.Minute)
	b, err = s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, later, window)
	s.Require().NoError(err)
	s.Equal(1, b.Attempts)
	s.WithinDuration(later.Add(window), b.ResetAt, time.Second)
}

// The single-statement UPSERT is the whole point of this store: under K
// parallel callers the final stored attempts must be exactly K.
func (s *PostgresStoreSuite) TestConcurrentIncrementsLoseNothing() {
	ctx := context.Background()
	now := time.Now().UTC()

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

func (s *PostgresStoreSuite) TestSetResetAt() {
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.store.UpsertIncrement(ctx, "ip:203.0.113.7", models.ActionLogin, now, time.Minute)
	s.Require().NoError(err)

	extended := now.Add(2 * time.Hour).Truncate(time.Millisecond)
	s.Require().NoError(s.store.SetResetAt(ctx, "ip:203.0.113.7", models.ActionLogin, extended))

	b, err := s.store.Get(ctx, "ip:203.0.113.7", models.ActionLogin)
	s.Require().NoError(err)
	s.WithinDuration(extended, b.ResetAt, time.Second)
	s.Equal(1, b.Attempts)
}

func (s *PostgresStoreSuite) TestDeleteAndGetAbsent() {
	ctx := context.Background()

	b, err := s.store.Get(ctx, "ip:203.0.113.9", models.ActionLogin)
	s.Require().NoError(err)
	s.Nil(b)

	s.NoError(s.store.Delete(ctx, "ip:203.0.113.9", models.ActionLogin), "delete of an absent row is a no-op")

	now := time.Now().UTC()
	_, err = s.store.UpsertIncrement(ctx, "ip:203.0.113.9", models.ActionLogin, now, time.Minute)
	s.Require().NoError(err)
	s.NoError(s.store.Delete(ctx, "ip:203.0.113.9", models.ActionLogin))

	b, err = s.store.Get(ctx, "ip:203.0.113.9", models.ActionLogin)
	s.Require().NoError(err)
	s.Nil(b)
}

func (s *PostgresStoreSuite) TestDeleteByIdentifier() {
	ctx := context.Background()
	now := time.Now().UTC()

	for _, action := range []models.Action{models.ActionLogin, models.ActionRegister} {
		_, err := s.store.UpsertIncrement(ctx, "identifier:alice@example.com", action, now, time.Minute)
		s.Require().NoError(err)
	}
	_, err := s.store.UpsertIncrement(ctx, "identifier:bob@example.com", models.ActionLogin, now, time.Minute)
	s.Require().NoError(err)

	deleted, err := s.store.DeleteByIdentifier(ctx, "identifier:alice@example.com")
	s.Require().NoError(err)
	s.EqualValues(2, deleted)
	s.Equal(1, s.postgres.CountRows(ctx, s.T(), "abuse_buckets"))
}

func (s *PostgresStoreSuite) TestDeleteExpiredBefore() {
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.store.UpsertIncrement(ctx, "ip:203.0.113.1", models.ActionLogin, now.Add(-time.Hour), time.Minute)
	s.Require().NoError(err)
	_, err = s.store.UpsertIncrement(ctx, "ip:203.0.113.2", models.ActionLogin, now, time.Hour)
	s.Require().NoError(err)

	deleted, err := s.store.DeleteExpiredBefore(ctx, now)
	s.Require().NoError(err)
	s.EqualValues(1, deleted)
	s.Equal(1, s.postgres.CountRows(ctx, s.T(), "abuse_buckets"))
}
