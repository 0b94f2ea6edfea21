package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "bulwark/pkg/domain-errors"
)

// Action names a protected operation class. The set is open-ended: routes may
// register caller-defined actions, and an action without a configured policy
// resolves to the default "api" policy so a typo in a route registration never
// leaves an endpoint unprotected.
type Action string

const (
	ActionLogin             Action = "login"
	ActionRegister          Action = "register"
	ActionPasswordReset     Action = "passwordReset"
	ActionEmailVerification Action = "emailVerification"
	ActionAPI               Action = "api"
)

func (a Action) String() string {
	return string(a)
}

// Bucket is one fixed-window counter row, keyed by (identifier, action).
// Attempts is at least 1 once the row exists and monotone within a window.
// ResetAt marks the end of the window, or the extended cooldown once
// backoff kicked in.
type Bucket struct {
	Identifier string    `json:"identifier"` // namespaced, e.g. "ip:203.0.113.7"
	Action     Action    `json:"action"`
	Attempts   int       `json:"attempts"`
	ResetAt    time.Time `json:"reset_at"`
}

// Expired reports whether the window has passed. An expired bucket behaves
// as if it never existed: the next increment starts a fresh window.
func (b *Bucket) Expired(now time.Time) bool {
	return now.After(b.ResetAt)
}

// AccountLockout is the persisted lock row. At most one exists per identifier,
// and only in the identifier namespace; IPs are never locked.
type AccountLockout struct {
	Identifier  string    `json:"identifier"`
	LockedUntil time.Time `json:"locked_until"`
	Attempts    int       `json:"attempts"` // count that triggered the lock
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

func (l *AccountLockout) Expired(now time.Time) bool {
	return !now.Before(l.LockedUntil)
}

// LockState is the observable state of the lockout machine.
type LockState string

const (
	LockStateUnlocked LockState = "unlocked"
	LockStateLocked   LockState = "locked"
)

// LockStatus is what the lockout machine reports for an identifier.
// Expired rows read as Unlocked; the zero value is Unlocked.
type LockStatus struct {
	State       LockState `json:"state"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

func (s LockStatus) Locked() bool {
	return s.State == LockStateLocked
}

// Layer identifies which check bound the final verdict.
type Layer string

const (
	LayerIP         Layer = "ip"
	LayerIdentifier Layer = "identifier"
	LayerLockout    Layer = "lockout"
)

// TrackResult is the rate tracker's answer for a single bucket.
type TrackResult struct {
	Allowed         bool      `json:"allowed"`
	Limit           int       `json:"limit"`
	Remaining       int       `json:"remaining"`
	ResetAt         time.Time `json:"reset_at"`
	Attempts        int       `json:"attempts"`
	RequiresCaptcha bool      `json:"requires_captcha"`
	BackoffApplied  bool      `json:"backoff_applied"`
	// FailedOpen marks a verdict fabricated after a store failure. The
	// request proceeds; availability beats strictness here.
	FailedOpen bool `json:"failed_open,omitempty"`
}

// Verdict is the coordinator's combined answer across layers.
type Verdict struct {
	Allowed         bool      `json:"allowed"`
	Limit           int       `json:"limit"`
	Remaining       int       `json:"remaining"`
	ResetAt         time.Time `json:"reset_at"`
	RetryAfter      int       `json:"retry_after,omitempty"` // seconds, only set when denied
	RequiresCaptcha bool      `json:"requires_captcha"`
	Locked          bool      `json:"locked"`
	LockedUntil     time.Time `json:"locked_until,omitempty"`
	Layer           Layer     `json:"layer"`
	FailedOpen      bool      `json:"failed_open,omitempty"`
}

// CheckRequest carries everything the coordinator needs for one decision.
// Identifier must already be normalized (lowercased, trimmed); UserID and
// UserAgent only enrich audit events.
type CheckRequest struct {
	IP         string
	Identifier string
	UserID     string
	Action     Action
	UserAgent  string
}

type AllowlistEntryType string

const (
	AllowlistTypeIP         AllowlistEntryType = "ip"
	AllowlistTypeIdentifier AllowlistEntryType = "identifier"
)

// ParseAllowlistEntryType creates an AllowlistEntryType from a string, validating it.
// Returns error if the type is empty or not one of the allowed values.
func ParseAllowlistEntryType(s string) (AllowlistEntryType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "allowlist entry type cannot be empty")
	}
	t := AllowlistEntryType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid allowlist entry type: must be 'ip' or 'identifier'")
	}
	return t, nil
}

func (t AllowlistEntryType) IsValid() bool {
	return t == AllowlistTypeIP || t == AllowlistTypeIdentifier
}

func (t AllowlistEntryType) String() string {
	return string(t)
}

// AllowlistEntry is an operator-granted bypass. Allowlisted sources skip
// bucket counting for every action; lockouts still apply.
type AllowlistEntry struct {
	ID         string             `json:"id"`
	Type       AllowlistEntryType `json:"type"`
	Identifier string             `json:"identifier"` // raw IP or normalized identifier
	Reason     string             `json:"reason"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	CreatedBy  string             `json:"created_by"` // operator actor ID
}

// NewAllowlistEntry creates an AllowlistEntry with domain invariant validation.
func NewAllowlistEntry(entryType AllowlistEntryType, identifier, reason, createdBy string, expiresAt *time.Time) (*AllowlistEntry, error) {
	if !entryType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid allowlist entry type")
	}
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identifier cannot be empty")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "reason cannot be empty")
	}

	return &AllowlistEntry{
		ID:         uuid.NewString(),
		Type:       entryType,
		Identifier: identifier,
		Reason:     reason,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
		CreatedBy:  createdBy,
	}, nil
}

// IsExpired reports whether the entry's bypass has lapsed at the given time.
// Entries without an expiry never expire.
func (e *AllowlistEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return now.After(*e.ExpiresAt)
}

// SweepResult counts what one janitor pass deleted.
type SweepResult struct {
	BucketsDeleted  int64 `json:"buckets_deleted"`
	LockoutsDeleted int64 `json:"lockouts_deleted"`
}
