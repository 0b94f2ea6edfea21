// Package security provides the async-buffered audit publisher used on the
// enforcement hot path.
//
// Publisher emits abuse events asynchronously with buffering and retry.
// Events are buffered in-memory and flushed to the store in batches.
// The caller never blocks on audit writes. Failed events are retried with
// exponential backoff. If the buffer is full, oldest events are dropped.
//
// Use for: rate_limit_exceeded, backoff_applied, lockouts, fail-open records.
package security

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	audit "bulwark/pkg/platform/audit"
)

// Forwarder fans persisted events out to an external stream.
// Forward failures never affect local persistence.
type Forwarder interface {
	Forward(ctx context.Context, key string, payload []byte) error
}

// Publisher emits abuse events asynchronously with buffering and retry.
type Publisher struct {
	store     audit.Store
	buffer    *RingBuffer
	forwarder Forwarder
	logger    *slog.Logger
	metrics   *Metrics

	// Retry configuration
	maxRetries   int
	retryBackoff time.Duration

	// Flush configuration
	flushInterval time.Duration
	batchSize     int

	// Background worker
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	flushed           int64
	retries           int64
	droppedAfterRetry int64
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithForwarder sets an external stream to fan persisted events out to.
func WithForwarder(f Forwarder) Option {
	return func(p *Publisher) {
		p.forwarder = f
	}
}

// WithBufferSize sets the buffer capacity.
func WithBufferSize(size int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(size)
	}
}

// WithMaxRetries sets the maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(p *Publisher) {
		p.maxRetries = n
	}
}

// WithRetryBackoff sets the base retry backoff duration.
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Publisher) {
		p.retryBackoff = d
	}
}

// WithFlushInterval sets the flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		p.flushInterval = d
	}
}

// WithBatchSize sets the batch size for flushing.
func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		p.batchSize = n
	}
}

// New creates a security publisher with background flushing.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        NewRingBuffer(10000), // default 10K
		maxRetries:    3,
		retryBackoff:  100 * time.Millisecond,
		flushInterval: 50 * time.Millisecond,
		batchSize:     100,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(p)
	}

	// Start background flusher
	p.wg.Add(1)
	go p.flushLoop()

	return p
}

// Emit queues an abuse event for async persistence.
// This method never blocks and does not return errors.
// Fire-and-forget from the caller's perspective.
func (p *Publisher) Emit(_ context.Context, event audit.Event) {
	normalized := event.Normalized(time.Now())

	// Non-blocking enqueue with drop-oldest semantics
	evicted := p.buffer.Enqueue(normalized)

	if p.metrics != nil {
		if evicted {
			p.metrics.IncDropped()
		}
		p.metrics.SetQueueDepth(int64(p.buffer.Len()))
	}
}

// Flush forces immediate flush of buffered events.
// Used during graceful shutdown.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.flushBatch(ctx)
}

// Close drains the buffer and shuts down the publisher.
func (p *Publisher) Close() error {
	p.cancel()
	p.wg.Wait()

	// Final drain
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for p.buffer.Len() > 0 {
		if err := p.flushBatch(ctx); err != nil {
			if p.logger != nil {
				p.logger.Warn("failed to drain audit buffer on shutdown", "error", err)
			}
			break
		}
	}

	return nil
}

// Stats returns buffer statistics for monitoring.
func (p *Publisher) Stats() BufferStats {
	return BufferStats{
		Queued:            int64(p.buffer.Len()),
		Flushed:           atomic.LoadInt64(&p.flushed),
		Dropped:           p.buffer.Dropped(),
		DroppedAfterRetry: atomic.LoadInt64(&p.droppedAfterRetry),
		Retries:           atomic.LoadInt64(&p.retries),
	}
}

// BufferStats holds buffer statistics.
type BufferStats struct {
	Queued            int64 // Events currently in buffer
	Flushed           int64 // Events successfully flushed
	Dropped           int64 // Events dropped due to buffer overflow
	DroppedAfterRetry int64 // Events dropped after exhausting retries
	Retries           int64 // Total retry attempts
}

func (p *Publisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			_ = p.flushBatch(p.ctx) //nolint:errcheck // periodic flush; errors logged internally
		}
	}
}

func (p *Publisher) flushBatch(ctx context.Context) error {
	events := p.buffer.DequeueBatch(p.batchSize)
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	for _, event := range events {
		p.persistWithRetry(ctx, event)
	}

	if p.metrics != nil {
		p.metrics.ObserveFlushDuration(time.Since(start))
		p.metrics.SetQueueDepth(int64(p.buffer.Len()))
	}

	return nil
}

func (p *Publisher) persistWithRetry(ctx context.Context, event audit.Event) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.store.Append(ctx, event); err != nil {
			lastErr = err
			atomic.AddInt64(&p.retries, 1)
			if p.metrics != nil {
				p.metrics.IncRetries()
			}

			// Exponential backoff
			backoff := p.retryBackoff * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		// Success
		atomic.AddInt64(&p.flushed, 1)
		if p.metrics != nil {
			p.metrics.IncFlushed()
		}
		p.forward(ctx, event)
		return
	}

	// All retries exhausted - log and drop
	atomic.AddInt64(&p.droppedAfterRetry, 1)
	if p.metrics != nil {
		p.metrics.IncDroppedAfterRetry()
	}
	if p.logger != nil {
		p.logger.WarnContext(ctx, "audit event dropped after retries",
			"event", event.Event,
			"identifier", event.Identifier,
			"error", lastErr,
		)
	}
}

// forward fans a persisted event out to the external stream, best-effort.
func (p *Publisher) forward(ctx context.Context, event audit.Event) {
	if p.forwarder == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "failed to encode audit event for forwarding",
				"event", event.Event,
				"error", err,
			)
		}
		return
	}

	// Key by identifier so one account's events stay ordered per partition.
	if err := p.forwarder.Forward(ctx, event.Identifier, payload); err != nil {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "failed to forward audit event",
				"event", event.Event,
				"identifier", event.Identifier,
				"error", err,
			)
		}
	}
}
