// Package guard coordinates the abuse checks for one request across layers:
// allowlist bypass, the IP bucket, the identifier bucket, and the account
// lockout machine. It owns layer precedence and the most-restrictive merge;
// counting and judging single buckets is the tracker's job.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bulwark/internal/ratelimit/config"
	"bulwark/internal/ratelimit/metrics"
	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/observability"
	"bulwark/pkg/requestcontext"
)

const lockReason = "too many failed attempts"

// RateTracker judges a single bucket. Satisfied by tracker.Service.
type RateTracker interface {
	Check(ctx context.Context, key models.Key, action models.Action, policy config.ActionPolicy) *models.TrackResult
	Clear(ctx context.Context, key models.Key, action models.Action) error
}

// LockoutMachine runs lock state transitions. Satisfied by lockout.Service.
type LockoutMachine interface {
	Status(ctx context.Context, key models.Key) models.LockStatus
	Lock(ctx context.Context, key models.Key, attempts int, reason string, duration time.Duration) (models.LockStatus, error)
}

// AllowlistChecker reports operator-granted bypasses.
type AllowlistChecker interface {
	IsAllowlisted(ctx context.Context, entryType models.AllowlistEntryType, identifier string) (bool, error)
}

// Service is the layered coordinator. Thread-safe.
type Service struct {
	tracker   RateTracker
	lockouts  LockoutMachine
	allowlist AllowlistChecker
	config    *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    *observability.Tracer
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConfig overrides the default policy table.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the span factory for check traces.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New creates the coordinator. The allowlist is optional; trackers and
// lockouts are not.
func New(tracker RateTracker, lockouts LockoutMachine, allowlist AllowlistChecker, opts ...Option) (*Service, error) {
	if tracker == nil {
		return nil, errors.New("rate tracker is required")
	}
	if lockouts == nil {
		return nil, errors.New("lockout machine is required")
	}

	svc := &Service{
		tracker:   tracker,
		lockouts:  lockouts,
		allowlist: allowlist,
		config:    config.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check runs the full layer sequence for one request and returns the
// combined verdict. It never returns an error: store failures fail open
// inside the tracker and lockout machine.
func (s *Service) Check(ctx context.Context, req models.CheckRequest) models.Verdict {
	if s.tracer != nil {
		var span *observability.Span
		ctx, span = s.tracer.StartCheck(ctx, string(req.Action))
		defer func() { span.End(nil) }()
		verdict := s.check(ctx, req)
		span.SetVerdict(verdict.Allowed, string(verdict.Layer))
		return verdict
	}
	return s.check(ctx, req)
}

func (s *Service) check(ctx context.Context, req models.CheckRequest) models.Verdict {
	policy := s.config.PolicyFor(req.Action)
	now := requestcontext.Now(ctx)

	if entryType, ok := s.bypassed(ctx, req); ok {
		// The bypass covers counting, not explicit locks.
		if req.Identifier != "" {
			if status := s.lockouts.Status(ctx, models.NewIdentifierKey(req.Identifier)); status.Locked() {
				verdict := lockedVerdict(status, policy, now)
				s.record(ctx, req, verdict)
				return verdict
			}
		}
		if s.metrics != nil {
			s.metrics.RecordAllowlistBypass(string(entryType))
			s.metrics.RecordCheck(string(req.Action), string(models.LayerIP), metrics.OutcomeBypassed)
		}
		s.debug(ctx, "allowlist bypass", req, "entry_type", string(entryType))
		return models.Verdict{
			Allowed:   true,
			Limit:     policy.MaxAttempts,
			Remaining: policy.MaxAttempts,
			ResetAt:   now.Add(policy.Window),
			Layer:     models.LayerIP,
		}
	}

	ipResult := s.tracker.Check(ctx, models.NewIPKey(req.IP), req.Action, policy)

	if !policy.Layered || req.Identifier == "" {
		verdict := verdictFrom(ipResult, models.LayerIP, now)
		s.record(ctx, req, verdict)
		return verdict
	}

	identifierKey := models.NewIdentifierKey(req.Identifier)
	idResult := s.tracker.Check(ctx, identifierKey, req.Action, policy)

	if status := s.lockouts.Status(ctx, identifierKey); status.Locked() {
		verdict := lockedVerdict(status, policy, now)
		s.record(ctx, req, verdict)
		return verdict
	}

	if policy.LockoutThreshold > 0 && idResult.Attempts >= policy.LockoutThreshold {
		status, err := s.lockouts.Lock(ctx, identifierKey, idResult.Attempts, lockReason, policy.LockoutDuration)
		if err == nil {
			verdict := lockedVerdict(status, policy, now)
			s.record(ctx, req, verdict)
			return verdict
		}
		// The lock write failed; the rate-limit denial below still holds
		// the door shut.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "lockout write failed, denying via rate limit",
				"identifier", identifierKey.String(),
				"action", string(req.Action),
				"error", err,
			)
		}
	}

	verdict := merge(ipResult, idResult, now)
	s.record(ctx, req, verdict)
	return verdict
}

// ClearAll deletes both layer buckets for a request source. Called after a
// verified success so a legitimate user starts fresh. Each delete is a no-op
// when the bucket is absent.
func (s *Service) ClearAll(ctx context.Context, ip, identifier string, action models.Action) error {
	if err := s.tracker.Clear(ctx, models.NewIPKey(ip), action); err != nil {
		return err
	}
	if identifier == "" {
		return nil
	}
	return s.tracker.Clear(ctx, models.NewIdentifierKey(identifier), action)
}

// bypassed reports whether the raw IP or the normalized identifier carries a
// live allowlist entry. Lookup errors read as not-allowlisted: a broken
// allowlist store must not widen the bypass.
func (s *Service) bypassed(ctx context.Context, req models.CheckRequest) (models.AllowlistEntryType, bool) {
	if s.allowlist == nil {
		return "", false
	}

	if req.IP != "" {
		if ok, err := s.allowlist.IsAllowlisted(ctx, models.AllowlistTypeIP, req.IP); err == nil && ok {
			return models.AllowlistTypeIP, true
		}
	}
	if req.Identifier != "" {
		if ok, err := s.allowlist.IsAllowlisted(ctx, models.AllowlistTypeIdentifier, req.Identifier); err == nil && ok {
			return models.AllowlistTypeIdentifier, true
		}
	}
	return "", false
}

func (s *Service) record(ctx context.Context, req models.CheckRequest, verdict models.Verdict) {
	if s.metrics != nil {
		s.metrics.RecordCheck(string(req.Action), string(verdict.Layer), outcome(verdict))
	}
	s.debug(ctx, "abuse check", req,
		"allowed", verdict.Allowed,
		"layer", string(verdict.Layer),
		"remaining", verdict.Remaining,
		"locked", verdict.Locked,
	)
}

func (s *Service) debug(ctx context.Context, msg string, req models.CheckRequest, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args, "ip", req.IP, "action", string(req.Action))
	s.logger.DebugContext(ctx, msg, args...)
}

func outcome(v models.Verdict) string {
	switch {
	case v.Locked:
		return metrics.OutcomeLocked
	case v.FailedOpen:
		return metrics.OutcomeFailOpen
	case v.Allowed:
		return metrics.OutcomeAllowed
	default:
		return metrics.OutcomeDenied
	}
}

// verdictFrom lifts a single bucket result into a verdict.
func verdictFrom(res *models.TrackResult, layer models.Layer, now time.Time) models.Verdict {
	v := models.Verdict{
		Allowed:         res.Allowed,
		Limit:           res.Limit,
		Remaining:       res.Remaining,
		ResetAt:         res.ResetAt,
		RequiresCaptcha: res.RequiresCaptcha,
		Layer:           layer,
		FailedOpen:      res.FailedOpen,
	}
	if !v.Allowed {
		v.RetryAfter = retryAfter(res.ResetAt, now)
	}
	return v
}

func lockedVerdict(status models.LockStatus, policy config.ActionPolicy, now time.Time) models.Verdict {
	return models.Verdict{
		Allowed:     false,
		Limit:       policy.MaxAttempts,
		Remaining:   0,
		ResetAt:     status.LockedUntil,
		RetryAfter:  retryAfter(status.LockedUntil, now),
		Locked:      true,
		LockedUntil: status.LockedUntil,
		Layer:       models.LayerLockout,
	}
}

// merge combines the two bucket layers into the most restrictive verdict.
// Any denial wins with that bucket's metadata; two allowances combine to the
// lower remaining, the later reset, and the union of captcha signals.
func merge(ipRes, idRes *models.TrackResult, now time.Time) models.Verdict {
	if !ipRes.Allowed {
		v := verdictFrom(ipRes, models.LayerIP, now)
		v.RequiresCaptcha = ipRes.RequiresCaptcha || idRes.RequiresCaptcha
		v.FailedOpen = ipRes.FailedOpen || idRes.FailedOpen
		return v
	}
	if !idRes.Allowed {
		v := verdictFrom(idRes, models.LayerIdentifier, now)
		v.RequiresCaptcha = ipRes.RequiresCaptcha || idRes.RequiresCaptcha
		v.FailedOpen = ipRes.FailedOpen || idRes.FailedOpen
		return v
	}

	binding, layer := ipRes, models.LayerIP
	if idRes.Remaining < ipRes.Remaining {
		binding, layer = idRes, models.LayerIdentifier
	}
	v := verdictFrom(binding, layer, now)
	if other := otherOf(binding, ipRes, idRes); other.ResetAt.After(v.ResetAt) {
		v.ResetAt = other.ResetAt
	}
	v.RequiresCaptcha = ipRes.RequiresCaptcha || idRes.RequiresCaptcha
	v.FailedOpen = ipRes.FailedOpen || idRes.FailedOpen
	return v
}

func otherOf(chosen, a, b *models.TrackResult) *models.TrackResult {
	if chosen == a {
		return b
	}
	return a
}

func retryAfter(resetAt time.Time, now time.Time) int {
	seconds := int(resetAt.Sub(now).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
