package audit

import (
	"context"
	"log/slog"

	id "bulwark/pkg/domain"
	"bulwark/pkg/platform/attrs"
	"bulwark/pkg/requestcontext"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger provides structured audit logging with optional event emission.
// Use this in services to standardize audit logging patterns.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger.
// textLogger is used for structured logging; emitter is optional for event persistence.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Log logs an audit event to text and optionally emits to the audit store.
// Automatically enriches with request_id from context. Attribute pairs beyond
// the identity fields land in the event's Details map.
//
// Usage:
//
//	logger.Log(ctx, audit.EventAllowlistAdded, "identifier", key.String(), "reason", reason)
func (l *Logger) Log(ctx context.Context, event AuditEvent, attributes ...any) {
	// Enrich with request_id from context
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}

	// Log to text
	l.logToText(ctx, event, attributes)

	// Emit to audit store
	l.emitToAudit(ctx, event, requestID, attributes)
}

func (l *Logger) logToText(ctx context.Context, event AuditEvent, attributes []any) {
	if l.textLogger == nil {
		return
	}
	args := append(attributes, "event", string(event), "severity", string(event.DefaultSeverity()), "log_type", "audit")
	l.textLogger.InfoContext(ctx, string(event), args...)
}

func (l *Logger) emitToAudit(ctx context.Context, event AuditEvent, requestID string, attributes []any) {
	if l.emitter == nil {
		return
	}

	// Extract known identity fields from attributes
	identifier := attrs.ExtractString(attributes, "identifier")
	ipAddress := attrs.ExtractString(attributes, "ip")
	userIDStr := attrs.ExtractString(attributes, "user_id")

	// Best-effort user ID parsing - ignore parse errors for audit
	userID, _ := id.ParseUserID(userIDStr) //nolint:errcheck // best-effort extraction for audit

	err := l.emitter.Emit(ctx, Event{
		Event:      event,
		Identifier: identifier,
		IPAddress:  ipAddress,
		UserID:     userID,
		RequestID:  requestID,
		Details:    detailsFromAttrs(attributes),
	})
	if err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event,
		)
	}
}

// detailsFromAttrs copies non-identity attribute pairs into a details map.
func detailsFromAttrs(attributes []any) map[string]any {
	details := make(map[string]any)
	for i := 0; i+1 < len(attributes); i += 2 {
		key, ok := attributes[i].(string)
		if !ok {
			continue
		}
		switch key {
		case "identifier", "ip", "user_id", "request_id":
			continue
		}
		details[key] = attributes[i+1]
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
