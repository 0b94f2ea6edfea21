// Package janitor reclaims rows the engine no longer reads: buckets whose
// window closed and lockouts that ended. Sweeps are safe to run concurrently
// with checks; a racing check simply recreates a fresh window.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bulwark/internal/ratelimit/metrics"
	"bulwark/internal/ratelimit/models"
)

// BucketSweeper deletes expired bucket rows. Satisfied by every bucket store.
type BucketSweeper interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockoutSweeper deletes expired lockout rows. Satisfied by every lockout store.
type LockoutSweeper interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor owns the periodic sweep loop. A sweep is also triggerable on
// demand through Sweep, which the admin API exposes for external schedulers.
type Janitor struct {
	buckets  BucketSweeper
	lockouts LockoutSweeper
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
}

// Option configures a Janitor.
type Option func(*Janitor)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(j *Janitor) {
		if interval > 0 {
			j.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) {
		j.metrics = m
	}
}

func New(buckets BucketSweeper, lockouts LockoutSweeper, opts ...Option) *Janitor {
	j := &Janitor{
		buckets:  buckets,
		lockouts: lockouts,
		logger:   slog.Default(),
		interval: time.Hour,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start runs the sweep loop until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			res, err := j.Sweep(ctx, start)
			duration := time.Since(start)

			if err != nil {
				j.logger.Error("abuse_sweep_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				if j.metrics != nil {
					j.metrics.RecordSweep("error", 0, 0, duration)
				}
				continue
			}

			j.logger.Info("abuse_sweep_completed",
				"buckets_deleted", res.BucketsDeleted,
				"lockouts_deleted", res.LockoutsDeleted,
				"duration_ms", duration.Milliseconds(),
			)
			if j.metrics != nil {
				j.metrics.RecordSweep("success", res.BucketsDeleted, res.LockoutsDeleted, duration)
			}

		case <-ctx.Done():
			j.logger.Info("janitor stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// Sweep runs one pass over both stores and reports what was deleted. The
// two deletes are independent and run in parallel.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) (*models.SweepResult, error) {
	var res models.SweepResult

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deleted, err := j.buckets.DeleteExpiredBefore(ctx, now)
		res.BucketsDeleted = deleted
		return err
	})
	g.Go(func() error {
		deleted, err := j.lockouts.DeleteExpiredBefore(ctx, now)
		res.LockoutsDeleted = deleted
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}
