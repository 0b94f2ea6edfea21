// Package admin exposes operator controls over the engine's state: allowlist
// management, bucket inspection and reset, lock inspection and unlock, sweep
// triggering, and the recent audit trail.
package admin

//go:generate mockgen -source=admin.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/observability"
	"bulwark/internal/ratelimit/ports"
	dErrors "bulwark/pkg/domain-errors"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/requestcontext"
)

// AllowlistStore is the slice of the allowlist store the admin surface needs.
type AllowlistStore interface {
	Add(ctx context.Context, entry *models.AllowlistEntry) error
	Remove(ctx context.Context, entryType models.AllowlistEntryType, identifier string) error
	List(ctx context.Context) ([]*models.AllowlistEntry, error)
}

// BucketStore is the slice of the bucket store the admin surface needs.
type BucketStore interface {
	Get(ctx context.Context, identifier string, action models.Action) (*models.Bucket, error)
	Delete(ctx context.Context, identifier string, action models.Action) error
	DeleteByIdentifier(ctx context.Context, identifier string) (int64, error)
}

// LockoutMachine runs lock state reads and operator unlocks.
// Satisfied by lockout.Service.
type LockoutMachine interface {
	Status(ctx context.Context, key models.Key) models.LockStatus
	Unlock(ctx context.Context, key models.Key) error
}

// Sweeper triggers one janitor pass. Satisfied by janitor.Janitor.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*models.SweepResult, error)
}

// AuditReader lists recent audit events. Satisfied by every audit store.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Service struct {
	allowlist      AllowlistStore
	buckets        BucketStore
	lockouts       LockoutMachine
	sweeper        Sweeper
	auditReader    AuditReader
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithSweeper enables the sweep trigger endpoint.
func WithSweeper(sweeper Sweeper) Option {
	return func(s *Service) {
		s.sweeper = sweeper
	}
}

// WithAuditReader enables the recent-events endpoint.
func WithAuditReader(reader AuditReader) Option {
	return func(s *Service) {
		s.auditReader = reader
	}
}

func New(allowlist AllowlistStore, buckets BucketStore, lockouts LockoutMachine, opts ...Option) (*Service, error) {
	if allowlist == nil {
		return nil, errors.New("allowlist store is required")
	}
	if buckets == nil {
		return nil, errors.New("bucket store is required")
	}
	if lockouts == nil {
		return nil, errors.New("lockout machine is required")
	}

	svc := &Service{
		allowlist: allowlist,
		buckets:   buckets,
		lockouts:  lockouts,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AddToAllowlist grants a bypass. The actor is the operator identity from the
// admin auth layer; it lands in the audit trail, not in enforcement.
func (s *Service) AddToAllowlist(ctx context.Context, req *models.AddAllowlistRequest, actor string) (*models.AllowlistEntry, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	entryType, err := models.ParseAllowlistEntryType(req.Type)
	if err != nil {
		return nil, err
	}

	entry, err := models.NewAllowlistEntry(entryType, req.Identifier, req.Reason, actor, req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.allowlist.Add(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to add allowlist entry")
	}

	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventAllowlistAdded,
		"identifier", entry.Identifier,
		"entry_type", string(entry.Type),
		"reason", entry.Reason,
		"expires_at", entry.ExpiresAt,
		"actor", actor,
	)
	return entry, nil
}

func (s *Service) RemoveFromAllowlist(ctx context.Context, req *models.RemoveAllowlistRequest, actor string) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	entryType, err := models.ParseAllowlistEntryType(req.Type)
	if err != nil {
		return err
	}

	if err := s.allowlist.Remove(ctx, entryType, req.Identifier); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to remove allowlist entry")
	}

	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventAllowlistRemoved,
		"identifier", req.Identifier,
		"entry_type", req.Type,
		"actor", actor,
	)
	return nil
}

func (s *Service) ListAllowlist(ctx context.Context) ([]*models.AllowlistEntry, error) {
	entries, err := s.allowlist.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list allowlist entries")
	}
	return entries, nil
}

// InspectBucket reads one bucket without mutating it.
func (s *Service) InspectBucket(ctx context.Context, entryType models.AllowlistEntryType, identifier string, action models.Action) (*models.BucketStatusResponse, error) {
	key := keyFor(entryType, identifier)
	bucket, err := s.buckets.Get(ctx, key.String(), action)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read bucket")
	}
	if bucket == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no bucket for this identifier and action")
	}

	return &models.BucketStatusResponse{
		Identifier: bucket.Identifier,
		Action:     bucket.Action,
		Attempts:   bucket.Attempts,
		ResetAt:    bucket.ResetAt,
		Expired:    bucket.Expired(requestcontext.Now(ctx)),
	}, nil
}

// ResetBucket clears counters for one source. With an action the reset is
// surgical; without one every action bucket for the key goes.
func (s *Service) ResetBucket(ctx context.Context, req *models.ResetBucketRequest, actor string) (*models.ResetBucketResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.Key()
	var deleted int64
	if req.Action != "" {
		if err := s.buckets.Delete(ctx, key.String(), models.Action(req.Action)); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset bucket")
		}
		deleted = 1
	} else {
		var err error
		deleted, err = s.buckets.DeleteByIdentifier(ctx, key.String())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset buckets")
		}
	}

	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventBucketReset,
		"identifier", key.String(),
		"action", req.Action,
		"deleted", deleted,
		"actor", actor,
	)
	return &models.ResetBucketResponse{
		Identifier: key.String(),
		Deleted:    int(deleted),
	}, nil
}

// InspectLock reports the lock state for an identifier.
func (s *Service) InspectLock(ctx context.Context, identifier string) *models.LockStatusResponse {
	key := models.NewIdentifierKey(identifier)
	status := s.lockouts.Status(ctx, key)

	resp := &models.LockStatusResponse{
		Identifier: key.String(),
		State:      status.State,
	}
	if status.Locked() {
		until := status.LockedUntil
		resp.LockedUntil = &until
		resp.Attempts = status.Attempts
		resp.Reason = status.Reason
	}
	return resp
}

// Unlock clears an identifier's lock ahead of its expiry.
func (s *Service) Unlock(ctx context.Context, req *models.UnlockRequest, actor string) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	return s.lockouts.Unlock(ctx, models.NewIdentifierKey(req.Identifier))
}

// TriggerSweep runs one janitor pass for external schedulers.
func (s *Service) TriggerSweep(ctx context.Context) (*models.SweepResponse, error) {
	if s.sweeper == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "sweeper not configured")
	}

	now := requestcontext.Now(ctx)
	res, err := s.sweeper.Sweep(ctx, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "sweep failed")
	}

	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventSweepCompleted,
		"buckets_deleted", res.BucketsDeleted,
		"lockouts_deleted", res.LockoutsDeleted,
	)
	return &models.SweepResponse{
		BucketsDeleted:  res.BucketsDeleted,
		LockoutsDeleted: res.LockoutsDeleted,
		SweptAt:         now,
	}, nil
}

// RecentAudit lists the most recent audit events, newest first.
func (s *Service) RecentAudit(ctx context.Context, limit int) ([]audit.Event, error) {
	if s.auditReader == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "audit reader not configured")
	}
	events, err := s.auditReader.ListRecent(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list audit events")
	}
	return events, nil
}

func keyFor(entryType models.AllowlistEntryType, identifier string) models.Key {
	if entryType == models.AllowlistTypeIP {
		return models.NewIPKey(identifier)
	}
	return models.NewIdentifierKey(identifier)
}
