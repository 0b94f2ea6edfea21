package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps OpenTelemetry so the engine does not depend on its APIs
// throughout the codebase. The zero-config constructor uses the global
// provider; Noop returns a tracer that records nothing, for tests.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer backed by the global OpenTelemetry provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer("bulwark/ratelimit")}
}

// NewTracerWith injects a pre-configured OpenTelemetry tracer.
func NewTracerWith(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// StartCheck opens a span for one abuse check.
func (t *Tracer) StartCheck(ctx context.Context, action string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "bulwark.check",
		trace.WithAttributes(attribute.String("bulwark.action", action)))
	return ctx, &Span{span: span}
}

// Span wraps one in-flight trace span.
type Span struct {
	span trace.Span
}

// SetVerdict records the decision on the span.
func (s *Span) SetVerdict(allowed bool, layer string) {
	s.span.SetAttributes(
		attribute.Bool("bulwark.allowed", allowed),
		attribute.String("bulwark.layer", layer),
	)
}

// End completes the span, recording any error.
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
