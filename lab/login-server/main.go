// Toy login server with the abuse engine embedded in-process. Everything runs
// on in-memory stores, so restarting resets all counters.
//
// Try it:
//
//	curl -i -X POST localhost:9000/login -d '{"email":"alice@example.com","password":"wrong"}'
//
// Five wrong passwords inside five minutes trips the rate limit; keep going
// and the account locks. A correct login ("hunter2") clears the counters.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"bulwark/internal/ratelimit/middleware"
	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/service/guard"
	"bulwark/internal/ratelimit/service/lockout"
	"bulwark/internal/ratelimit/service/tracker"
	"bulwark/internal/ratelimit/store/allowlist"
	"bulwark/internal/ratelimit/store/bucket"
	lockoutstore "bulwark/internal/ratelimit/store/lockout"
	"bulwark/pkg/platform/httputil"
	"bulwark/pkg/platform/middleware/metadata"
	"bulwark/pkg/platform/middleware/requesttime"
	"bulwark/pkg/requestcontext"
)

const demoPassword = "hunter2"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	trackerSvc, err := tracker.New(bucket.NewMemory(), tracker.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	lockoutSvc, err := lockout.New(lockoutstore.NewMemory(), lockout.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	guardSvc, err := guard.New(trackerSvc, lockoutSvc, allowlist.NewMemory(), guard.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	engine := middleware.New(guardSvc, logger)

	r := chi.NewRouter()
	r.Use(requesttime.Middleware)
	// Trust loopback so X-Forwarded-For works for local experiments with
	// several simulated client addresses.
	r.Use(metadata.NewMiddleware(&metadata.Config{
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")},
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, loginResponse{Message: "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(engine.Protect(models.ActionLogin))
		r.Post("/login", loginHandler(guardSvc, logger))
	})

	port := getenv("PORT", "9000")
	addr := fmt.Sprintf(":%s", port)
	log.Printf("toy login server listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func loginHandler(guardSvc *guard.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req, ok := httputil.DecodeJSON[loginRequest](w, r, logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}

		if req.Password != demoPassword {
			httputil.WriteJSON(w, http.StatusUnauthorized, loginResponse{Message: "invalid credentials"})
			return
		}

		// Verified success: wipe both layer buckets so the real user is not
		// haunted by an attacker's earlier failures from the same address.
		if err := guardSvc.ClearAll(ctx, requestcontext.ClientIP(ctx), req.Email, models.ActionLogin); err != nil {
			logger.WarnContext(ctx, "failed to clear buckets after login", "error", err)
		}

		httputil.WriteJSON(w, http.StatusOK, loginResponse{Message: "welcome back"})
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
