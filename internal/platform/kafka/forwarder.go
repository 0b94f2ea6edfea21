package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"bulwark/internal/platform/kafka/producer"
	"bulwark/pkg/platform/circuit"
)

// messageProducer is the producer surface the forwarder needs.
// Satisfied by producer.Producer and producer.NoopProducer.
type messageProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Forwarder publishes audit payloads to the abuse event stream.
// A circuit breaker stops it hammering an unreachable broker: while the
// circuit is open only every probeInterval-th call attempts delivery, the
// rest fail fast and rely on the local store.
type Forwarder struct {
	producer      messageProducer
	topic         string
	breaker       *circuit.Breaker
	logger        *slog.Logger
	probeInterval int64
	calls         int64
}

// ForwarderOption configures the Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets a logger for state change reporting.
func WithForwarderLogger(logger *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) ForwarderOption {
	return func(f *Forwarder) {
		if b != nil {
			f.breaker = b
		}
	}
}

// WithProbeInterval sets how often an open circuit lets a delivery through.
func WithProbeInterval(n int64) ForwarderOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.probeInterval = n
		}
	}
}

// NewForwarder creates a stream forwarder for the given topic.
func NewForwarder(p messageProducer, topic string, opts ...ForwarderOption) (*Forwarder, error) {
	if p == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if topic == "" {
		topic = DefaultAuditTopic
	}

	f := &Forwarder{
		producer:      p,
		topic:         topic,
		breaker:       circuit.New("audit-stream"),
		probeInterval: 10,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Forward publishes one payload keyed for per-identifier ordering.
// Returns an error without attempting delivery while the circuit is open,
// except for periodic probe calls that test broker recovery.
func (f *Forwarder) Forward(ctx context.Context, key string, payload []byte) error {
	n := atomic.AddInt64(&f.calls, 1)

	if f.breaker.IsOpen() && n%f.probeInterval != 0 {
		return fmt.Errorf("audit stream circuit open")
	}

	err := f.producer.Produce(ctx, &producer.Message{
		Topic: f.topic,
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		_, change := f.breaker.RecordFailure()
		if change.Opened && f.logger != nil {
			f.logger.Warn("audit stream circuit opened",
				"topic", f.topic,
				"error", err,
			)
		}
		return fmt.Errorf("forward to audit stream: %w", err)
	}

	_, change := f.breaker.RecordSuccess()
	if change.Closed && f.logger != nil {
		f.logger.Info("audit stream circuit closed", "topic", f.topic)
	}
	return nil
}
