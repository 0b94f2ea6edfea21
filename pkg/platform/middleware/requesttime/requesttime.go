// Package requesttime pins a single "now" per HTTP request. Every decision
// inside one request (window math, lock expiry, audit timestamps) reads the
// same clock value through requestcontext.Now.
package requesttime

import (
	"net/http"
	"time"

	"bulwark/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and stores
// it in the context. Register it before any handler or middleware that reads
// requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
