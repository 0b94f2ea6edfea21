// Package lockout runs the account lockout state machine.
//
// The machine has two observable states: Unlocked (no row, or an expired
// one) and Locked. Transitions are explicit: Lock is called by the guard
// when an identifier bucket crosses the lockout threshold, Unlock by an
// operator. Expiry is lazy: an expired row reads as Unlocked and is deleted
// on observation rather than by a timer.
package lockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bulwark/internal/ratelimit/metrics"
	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/observability"
	"bulwark/internal/ratelimit/ports"
	dErrors "bulwark/pkg/domain-errors"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/requestcontext"
)

const defaultStoreTimeout = 3 * time.Second

// Service is the lockout machine. Thread-safe.
type Service struct {
	store          ports.LockoutStore
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

// WithStoreTimeout bounds each store round trip.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// New creates a lockout machine backed by the given store.
func New(store ports.LockoutStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}

	svc := &Service{
		store:        store,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Status reports the machine's state for an identifier. An expired row reads
// as Unlocked and is deleted in passing. A store read failure also reads as
// Unlocked: a lock that cannot be read cannot hold the door shut, and the
// rate limit layers still stand.
func (s *Service) Status(ctx context.Context, key models.Key) models.LockStatus {
	now := requestcontext.Now(ctx)

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.store.Get(storeCtx, key.String())
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "lockout store unavailable, treating as unlocked",
				"identifier", key.String(),
				"error", err,
			)
		}
		if s.metrics != nil {
			s.metrics.RecordFailOpen("lockout_store")
		}
		return models.LockStatus{State: models.LockStateUnlocked}
	}
	if record == nil {
		return models.LockStatus{State: models.LockStateUnlocked}
	}

	if record.Expired(now) {
		// Lazy expiry. A failed delete only means the janitor gets it later.
		if err := s.store.Delete(storeCtx, key.String()); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to delete expired lockout",
				"identifier", key.String(),
				"error", err,
			)
		}
		return models.LockStatus{State: models.LockStateUnlocked}
	}

	return models.LockStatus{
		State:       models.LockStateLocked,
		LockedUntil: record.LockedUntil,
		Attempts:    record.Attempts,
		Reason:      record.Reason,
	}
}

// Lock transitions an identifier to Locked for the given duration. The write
// error is returned to the caller: the guard still denies via the rate-limit
// verdict when the lock could not be persisted.
func (s *Service) Lock(ctx context.Context, key models.Key, attempts int, reason string, duration time.Duration) (models.LockStatus, error) {
	now := requestcontext.Now(ctx)
	record := models.AccountLockout{
		Identifier:  key.String(),
		LockedUntil: now.Add(duration),
		Attempts:    attempts,
		Reason:      reason,
		CreatedAt:   now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.store.Upsert(storeCtx, record); err != nil {
		return models.LockStatus{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist lockout")
	}

	if s.metrics != nil {
		s.metrics.RecordLockout()
	}
	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventAccountLocked,
		"identifier", key.String(),
		"attempts", attempts,
		"reason", reason,
		"locked_until", record.LockedUntil,
	)

	return models.LockStatus{
		State:       models.LockStateLocked,
		LockedUntil: record.LockedUntil,
		Attempts:    attempts,
		Reason:      reason,
	}, nil
}

// Unlock clears an identifier's lock. Idempotent: unlocking an absent or
// expired lock succeeds without emitting an event.
func (s *Service) Unlock(ctx context.Context, key models.Key) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.store.Get(storeCtx, key.String())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read lockout")
	}

	if err := s.store.Delete(storeCtx, key.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to clear lockout")
	}

	if record != nil {
		if s.metrics != nil {
			s.metrics.RecordUnlock()
		}
		observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventAccountUnlocked,
			"identifier", key.String(),
		)
	}
	return nil
}
