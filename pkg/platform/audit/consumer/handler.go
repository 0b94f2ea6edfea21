// Package consumer ingests forwarded abuse events from the audit stream.
//
// Deployments that aggregate events from several gateways run this handler
// behind a Kafka group consumer; the enforcement path itself never depends
// on it.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"bulwark/internal/platform/kafka/consumer"
	audit "bulwark/pkg/platform/audit"
)

// EventStore is the persistence surface the handler writes to.
// Satisfied by the audit postgres store; appends are idempotent by event ID.
type EventStore interface {
	Append(ctx context.Context, event audit.Event) error
}

// Handler processes audit events from the stream and writes them to the store.
// It implements consumer.Handler for use with the Kafka consumer.
type Handler struct {
	store  EventStore
	logger *slog.Logger
}

// NewHandler creates a new audit event consumer handler.
func NewHandler(store EventStore, logger *slog.Logger) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	return &Handler{
		store:  store,
		logger: logger,
	}, nil
}

// Handle processes a single stream message containing an audit event.
// Malformed messages are logged and committed so they never block the
// partition; store failures return an error for redelivery.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logWarn(ctx, "skipping malformed audit payload",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if event.Event == "" {
		h.logWarn(ctx, "skipping audit payload without event name",
			"topic", msg.Topic,
			"offset", msg.Offset,
		)
		return nil
	}

	// The forwarder always ships normalized events, but a foreign producer
	// may not. Normalization here keeps IDs stable only when provided, so
	// at-least-once delivery stays idempotent for well-formed payloads.
	event = event.Normalized(msg.Timestamp)

	if err := h.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	return nil
}

func (h *Handler) logWarn(ctx context.Context, message string, attributes ...any) {
	if h.logger == nil {
		return
	}
	h.logger.WarnContext(ctx, message, attributes...)
}
