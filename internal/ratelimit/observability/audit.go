// Package observability provides audit and tracing helpers for the abuse engine.
package observability

import (
	"context"
	"log/slog"

	id "bulwark/pkg/domain"
	"bulwark/pkg/platform/attrs"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/requestcontext"
)

// AuditPublisher is the never-blocking sink used on the enforcement path.
// Emit never returns an error; the publisher buffers and retries internally.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// LogAudit writes one security event to the structured logger and the audit
// publisher. Identity fields (identifier, ip, user_id) are lifted out of the
// attribute pairs; everything else lands in the event's Details map, which the
// publisher scrubs before persisting.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}

	if logger != nil {
		args := append(attributes, "event", string(event), "severity", string(event.DefaultSeverity()), "log_type", "audit")
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}

	userID, _ := id.ParseUserID(attrs.ExtractString(attributes, "user_id")) //nolint:errcheck // best-effort extraction for audit

	publisher.Emit(ctx, audit.Event{
		Event:      event,
		Identifier: attrs.ExtractString(attributes, "identifier"),
		IPAddress:  attrs.ExtractString(attributes, "ip"),
		UserID:     userID,
		RequestID:  requestID,
		Details:    detailsFromAttrs(attributes),
	})
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
