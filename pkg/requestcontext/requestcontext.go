// Package requestcontext provides typed accessors for request-scoped values.
// Middleware seeds the context once at the edge; services read through these
// helpers instead of touching context keys directly.
package requestcontext

import (
	"context"
	"time"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	requestTsKey contextKey = "request_time"
	clientIPKey  contextKey = "client_ip"
	userAgentKey contextKey = "user_agent"
	userIDKey    contextKey = "user_id"
)

// WithRequestID returns a context carrying the correlation ID for this request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the correlation ID, or "" when the middleware did not run.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTime pins the observed request time so every decision inside one request
// shares a single clock reading.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTsKey, t)
}

// Now returns the pinned request time, falling back to the wall clock when no
// middleware pinned one (tests, background workers).
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTsKey).(time.Time); ok {
		return v
	}
	return time.Now()
}

// WithClientMetadata stores the resolved client IP and User-Agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIP returns the trusted-proxy-resolved client IP, or "" when absent.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// UserAgent returns the raw User-Agent header value, or "" when absent.
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID stores the authenticated subject when the caller resolved one.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated subject, or "" for anonymous traffic.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
