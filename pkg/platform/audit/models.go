// Package audit defines the append-only security event trail. Events are
// emitted by the abuse engine and its admin surface, persisted through a
// Store, and never read back on the decision path.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	id "bulwark/pkg/domain"
)

// Severity grades the forensic weight of an event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AuditEvent tags what happened.
type AuditEvent string

const (
	EventRateLimitExceeded AuditEvent = "RATE_LIMIT_EXCEEDED"
	EventBackoffApplied    AuditEvent = "BACKOFF_APPLIED"
	EventAccountLocked     AuditEvent = "ACCOUNT_LOCKED"
	EventAccountUnlocked   AuditEvent = "ACCOUNT_UNLOCKED"
	EventCheckFailedOpen   AuditEvent = "CHECK_FAILED_OPEN"
	EventAllowlistAdded    AuditEvent = "ALLOWLIST_ADDED"
	EventAllowlistRemoved  AuditEvent = "ALLOWLIST_REMOVED"
	EventBucketReset       AuditEvent = "BUCKET_RESET"
	EventSweepCompleted    AuditEvent = "SWEEP_COMPLETED"
)

// DefaultSeverity maps each event type to its grade. Unknown events fall back
// to LOW rather than being rejected, so a new event type can never be lost by
// miscategorization.
func (e AuditEvent) DefaultSeverity() Severity {
	switch e {
	case EventAccountLocked, EventCheckFailedOpen:
		return SeverityHigh
	case EventRateLimitExceeded, EventBackoffApplied, EventAccountUnlocked,
		EventAllowlistAdded, EventAllowlistRemoved, EventBucketReset:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Event is one append-only audit record. Details must already be scrubbed of
// secrets by the time an Event reaches a Store; emit helpers call ScrubDetails.
type Event struct {
	ID         string         `json:"id"`
	Event      AuditEvent     `json:"event"`
	Severity   Severity       `json:"severity"`
	Identifier string         `json:"identifier,omitempty"` // normalized email/username
	IPAddress  string         `json:"ip_address,omitempty"`
	UserID     id.UserID      `json:"user_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Normalized returns a copy with defaults filled in: an ID, a timestamp, the
// event's default severity, and scrubbed details.
func (e Event) Normalized(now time.Time) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if !e.Severity.IsValid() {
		e.Severity = e.Event.DefaultSeverity()
	}
	e.Details = ScrubDetails(e.Details)
	return e
}

// secretKeyFragments are matched case-insensitively as substrings, so
// "password", "confirmPassword" and "authorization_header" are all caught.
var secretKeyFragments = []string{"password", "secret", "token", "authorization"}

// ScrubDetails returns a copy of details with credential-bearing keys
// redacted, recursing into nested maps. Audit records describe that an attempt
// happened, never what was attempted with.
func ScrubDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	scrubbed := make(map[string]any, len(details))
	for key, value := range details {
		if isSecretKey(key) {
			scrubbed[key] = "[REDACTED]"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			scrubbed[key] = ScrubDetails(nested)
			continue
		}
		scrubbed[key] = value
	}
	return scrubbed
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Store persists audit events. Append is the hot path; ListRecent serves the
// admin surface only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
