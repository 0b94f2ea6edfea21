// Package tracker enforces fixed-window rate limits on a single bucket key.
//
// The tracker owns the count-then-judge sequence for one layer: every check
// records the attempt first, then judges the post-increment state against the
// action's policy. Layer coordination (IP plus identifier, lockout
// precedence) lives in the guard service; the tracker never looks past its
// own bucket.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bulwark/internal/ratelimit/backoff"
	"bulwark/internal/ratelimit/config"
	"bulwark/internal/ratelimit/metrics"
	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/observability"
	"bulwark/internal/ratelimit/ports"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/requestcontext"
)

const defaultStoreTimeout = 3 * time.Second

// Service is the rate tracker. Thread-safe; atomicity lives in the store.
type Service struct {
	buckets        ports.BucketStore
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	storeTimeout   time.Duration
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditPublisher sets the audit event publisher for security logging.
func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStoreTimeout bounds each store round trip. Past the bound the check
// fails open.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// New creates a rate tracker backed by the given bucket store.
func New(buckets ports.BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("bucket store is required")
	}

	svc := &Service{
		buckets:      buckets,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check records one attempt on the key's bucket and judges the result against
// the policy. Every call mutates the bucket, denied ones included: an
// attacker hammering a closed window keeps pushing their own cooldown out.
//
// A store failure never denies the caller. The tracker fabricates an allowing
// result flagged FailedOpen, logs at WARN, and counts the event.
func (s *Service) Check(ctx context.Context, key models.Key, action models.Action, policy config.ActionPolicy) *models.TrackResult {
	now := requestcontext.Now(ctx)

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	bucket, err := s.buckets.UpsertIncrement(storeCtx, key.String(), action, now, policy.Window)
	if err != nil {
		return s.failOpen(ctx, key, action, policy, now, err)
	}

	result := &models.TrackResult{
		Limit:    policy.MaxAttempts,
		ResetAt:  bucket.ResetAt,
		Attempts: bucket.Attempts,
		RequiresCaptcha: policy.CaptchaThreshold > 0 &&
			bucket.Attempts >= policy.CaptchaThreshold,
	}

	if bucket.Attempts <= policy.MaxAttempts {
		result.Allowed = true
		result.Remaining = policy.MaxAttempts - bucket.Attempts
		return result
	}

	result.Allowed = false
	result.Remaining = 0

	violations := backoff.Violations(bucket.Attempts, policy.MaxAttempts)
	if violations > 1 {
		extended := now.Add(backoff.Duration(violations, policy.Window, policy.BackoffMultiplier, policy.BackoffCap))
		if err := s.buckets.SetResetAt(storeCtx, key.String(), action, extended); err != nil {
			// The denial stands on the unextended window; only the
			// escalation is lost.
			s.warn(ctx, "backoff extension failed", key, action, err)
		} else {
			result.ResetAt = extended
			result.BackoffApplied = true
			if s.metrics != nil {
				s.metrics.RecordBackoffApplied(string(action))
			}
			observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventBackoffApplied,
				"identifier", key.String(),
				"action", string(action),
				"attempts", bucket.Attempts,
				"violations", violations,
				"reset_at", extended,
			)
		}
	}

	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRateLimitExceeded,
		"identifier", key.String(),
		"action", string(action),
		"attempts", bucket.Attempts,
		"limit", policy.MaxAttempts,
		"window_seconds", int(policy.Window.Seconds()),
	)

	return result
}

// Clear deletes the key's bucket. Clearing an absent bucket is a no-op.
func (s *Service) Clear(ctx context.Context, key models.Key, action models.Action) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.buckets.Delete(storeCtx, key.String(), action)
}

// failOpen fabricates an allowing result after a store failure. Remaining is
// reported as the full quota minus the attempt that could not be counted.
func (s *Service) failOpen(ctx context.Context, key models.Key, action models.Action, policy config.ActionPolicy, now time.Time, err error) *models.TrackResult {
	s.warn(ctx, "bucket store unavailable, failing open", key, action, err)
	if s.metrics != nil {
		s.metrics.RecordFailOpen("bucket_store")
	}
	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventCheckFailedOpen,
		"identifier", key.String(),
		"action", string(action),
		"error", err.Error(),
	)

	return &models.TrackResult{
		Allowed:    true,
		Limit:      policy.MaxAttempts,
		Remaining:  policy.MaxAttempts - 1,
		ResetAt:    now.Add(policy.Window),
		Attempts:   1,
		FailedOpen: true,
	}
}

func (s *Service) warn(ctx context.Context, msg string, key models.Key, action models.Action, err error) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg,
		"identifier", key.String(),
		"action", string(action),
		"error", err,
	)
}
