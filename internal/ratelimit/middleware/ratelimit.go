// Package middleware wires the abuse guard into chi routes.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bulwark/internal/ratelimit/models"
	"bulwark/pkg/platform/clientinfo"
	"bulwark/pkg/platform/httputil"
	"bulwark/pkg/platform/privacy"
	platformstrings "bulwark/pkg/platform/strings"
	"bulwark/pkg/requestcontext"
)

// maxPeekBytes bounds how much of a request body the middleware reads while
// looking for an identifier.
const maxPeekBytes = 64 * 1024

// Guard is the decision surface the middleware enforces.
// Satisfied by guard.Service.
type Guard interface {
	Check(ctx context.Context, req models.CheckRequest) models.Verdict
}

type Middleware struct {
	guard  Guard
	logger *slog.Logger
}

func New(guard Guard, logger *slog.Logger) *Middleware {
	return &Middleware{
		guard:  guard,
		logger: logger,
	}
}

// Protect enforces the action's abuse policy on every request through it.
// Rate limit headers are set on every response; denials get a 429 with a
// Retry-After header and a JSON body that never reveals whether a credential
// was correct.
func (m *Middleware) Protect(action models.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			verdict := m.guard.Check(ctx, models.CheckRequest{
				IP:         requestcontext.ClientIP(ctx),
				Identifier: m.peekIdentifier(r),
				UserID:     requestcontext.UserID(ctx),
				Action:     action,
				UserAgent:  requestcontext.UserAgent(ctx),
			})

			addRateLimitHeaders(w, verdict)

			if !verdict.Allowed {
				if m.logger != nil {
					m.logger.WarnContext(ctx, "request denied",
						"action", string(action),
						"layer", string(verdict.Layer),
						"locked", verdict.Locked,
						"retry_after", verdict.RetryAfter,
						"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
						"client", clientinfo.Summarize(requestcontext.UserAgent(ctx)),
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				writeDenial(w, verdict)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// peekIdentifier pulls the login identifier (email, else username) out of a
// JSON request body without consuming it: the read bytes are stitched back so
// the handler decodes the body as usual. Non-JSON and oversized bodies yield
// no identifier; the IP layer still applies.
func (m *Middleware) peekIdentifier(r *http.Request) string {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) > maxPeekBytes {
		return ""
	}

	var probe struct {
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}

	identifier := probe.Email
	if identifier == "" {
		identifier = probe.Username
	}
	return platformstrings.NormalizeIdentifier(identifier)
}

// addRateLimitHeaders sets the X-RateLimit-* trio on every response. Reset is
// RFC 3339 so clients need no epoch conversion.
func addRateLimitHeaders(w http.ResponseWriter, verdict models.Verdict) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(verdict.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(verdict.Remaining))
	w.Header().Set("X-RateLimit-Reset", verdict.ResetAt.Format(time.RFC3339))
}

func writeDenial(w http.ResponseWriter, verdict models.Verdict) {
	retryAfter := verdict.RetryAfter
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	response := models.DenialResponse{
		Error:           "rate_limit_exceeded",
		Message:         "Too many requests. Please try again later.",
		RetryAfter:      retryAfter,
		RequiresCaptcha: verdict.RequiresCaptcha,
		Locked:          verdict.Locked,
	}
	if verdict.Locked {
		response.Error = "account_locked"
		response.Message = "This account is temporarily locked. Please try again later."
	}
	httputil.WriteJSON(w, http.StatusTooManyRequests, response)
}
