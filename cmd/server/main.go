// Command server runs the abuse prevention engine: the layered rate-limit
// guard, the admin API, the janitor, and the audit pipeline. Store backends
// are selected by configuration — memory for single-process deployments,
// postgres or redis for shared state.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bulwark/internal/platform/config"
	"bulwark/internal/platform/database"
	"bulwark/internal/platform/health"
	"bulwark/internal/platform/kafka"
	"bulwark/internal/platform/kafka/producer"
	"bulwark/internal/platform/logger"
	platformredis "bulwark/internal/platform/redis"
	"bulwark/internal/ratelimit/admin"
	ratelimitconfig "bulwark/internal/ratelimit/config"
	"bulwark/internal/ratelimit/handler"
	"bulwark/internal/ratelimit/metrics"
	ratelimitmw "bulwark/internal/ratelimit/middleware"
	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/observability"
	"bulwark/internal/ratelimit/ports"
	"bulwark/internal/ratelimit/service/guard"
	"bulwark/internal/ratelimit/service/lockout"
	"bulwark/internal/ratelimit/service/tracker"
	"bulwark/internal/ratelimit/store/allowlist"
	"bulwark/internal/ratelimit/store/bucket"
	lockoutstore "bulwark/internal/ratelimit/store/lockout"
	"bulwark/internal/ratelimit/workers/janitor"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/platform/audit/publisher"
	"bulwark/pkg/platform/audit/publishers/security"
	auditmemory "bulwark/pkg/platform/audit/store/memory"
	auditpostgres "bulwark/pkg/platform/audit/store/postgres"
	adminmw "bulwark/pkg/platform/middleware/admin"
	"bulwark/pkg/platform/middleware/metadata"
	request "bulwark/pkg/platform/middleware/request"
	"bulwark/pkg/platform/middleware/requesttime"
)

func main() {
	cfg := config.FromEnv()
	log := logger.NewWithLevel(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policies, err := loadPolicies(cfg, log)
	if err != nil {
		return err
	}

	// Shared backends. Both are nil when unconfigured.
	pool, err := database.New(databaseConfig(cfg))
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // shutdown path
	}

	redisClient, err := platformredis.New(platformredis.DefaultConfig(cfg.RedisURL))
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		go poolStatsLoop(ctx, redisClient)
	}

	// Audit pipeline: ring-buffered publisher over the most durable store
	// available, with optional stream fan-out.
	var auditStore audit.Store
	if pool != nil {
		auditStore = auditpostgres.New(pool.DB())
	} else {
		auditStore = auditmemory.New()
	}

	publisherOpts := []security.Option{
		security.WithLogger(log),
		security.WithMetrics(security.NewMetrics()),
	}
	if cfg.Kafka.Enabled {
		prod, err := producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Retries:         5,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			return err
		}
		defer prod.Close() //nolint:errcheck // shutdown path
		forwarder, err := kafka.NewForwarder(prod, cfg.Kafka.AuditTopic, kafka.WithForwarderLogger(log))
		if err != nil {
			return err
		}
		publisherOpts = append(publisherOpts, security.WithForwarder(forwarder))
	}
	auditPublisher := security.New(auditStore, publisherOpts...)
	defer auditPublisher.Close() //nolint:errcheck // drains the buffer

	// Engine assembly.
	engineMetrics := metrics.New()

	bucketStore := newBucketStore(pool, redisClient)
	lockStore := newLockoutStore(pool, redisClient)
	allowlistStore := newAllowlistStore(pool)

	trackerSvc, err := tracker.New(bucketStore,
		tracker.WithLogger(log),
		tracker.WithAuditPublisher(auditPublisher),
		tracker.WithMetrics(engineMetrics),
		tracker.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return err
	}

	lockoutSvc, err := lockout.New(lockStore,
		lockout.WithLogger(log),
		lockout.WithAuditPublisher(auditPublisher),
		lockout.WithMetrics(engineMetrics),
		lockout.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return err
	}

	guardSvc, err := guard.New(trackerSvc, lockoutSvc, allowlistStore,
		guard.WithLogger(log),
		guard.WithConfig(policies),
		guard.WithMetrics(engineMetrics),
		guard.WithTracer(observability.NewTracer()),
	)
	if err != nil {
		return err
	}

	jan := janitor.New(bucketStore, lockStore,
		janitor.WithLogger(log),
		janitor.WithInterval(cfg.JanitorInterval),
		janitor.WithMetrics(engineMetrics),
	)
	go func() {
		if err := jan.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("janitor stopped", "error", err)
		}
	}()

	// Operator actions are rare and must not be dropped, so the admin
	// surface writes its audit trail synchronously instead of going
	// through the engine's ring buffer.
	adminPublisher := publisher.NewPublisher(auditStore, publisher.WithPublisherLogger(log))
	defer adminPublisher.Close()

	adminSvc, err := admin.New(allowlistStore, bucketStore, lockoutSvc,
		admin.WithLogger(log),
		admin.WithAuditPublisher(syncAuditSink{adminPublisher, log}),
		admin.WithSweeper(jan),
		admin.WithAuditReader(auditStore),
	)
	if err != nil {
		return err
	}

	router := buildRouter(cfg, log, guardSvc, adminSvc, pool, redisClient)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildRouter(cfg config.Server, log *slog.Logger, guardSvc *guard.Service, adminSvc *admin.Service, pool *database.Pool, redisClient *platformredis.Client) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: trustedProxies(cfg, log)}).Handler)
	r.Use(request.Logger(log))
	r.Use(request.LatencyMiddleware(request.NewMetrics()))
	r.Use(request.Timeout(30 * time.Second))
	r.Use(request.ContentTypeJSON)

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}
	if cfg.Kafka.Enabled {
		kafkaCheck := kafka.NewHealthChecker(cfg.Kafka.Brokers)
		healthHandler.RegisterCheck("kafka", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return kafkaCheck.Check(ctx)
		})
	}
	healthHandler.Register(r)

	r.Handle("/metrics", promhttp.Handler())

	adminToken := cfg.AdminToken
	if cfg.AdminTokenHash != "" {
		adminToken = cfg.AdminTokenHash
	}
	if adminToken == "" {
		log.Warn("admin API disabled: no admin token configured")
		return r
	}

	adminHandler := handler.New(adminSvc, log)
	engine := ratelimitmw.New(guardSvc, log)
	r.Group(func(r chi.Router) {
		// The IP-keyed api policy in front of token auth throttles
		// brute-force guessing of the admin token itself.
		r.Use(engine.Protect(models.ActionAPI))
		r.Use(adminmw.RequireAdminToken(adminToken, log))
		adminHandler.RegisterAdmin(r)
	})

	return r
}

func loadPolicies(cfg config.Server, log *slog.Logger) (*ratelimitconfig.Config, error) {
	if cfg.PolicyFile == "" {
		return ratelimitconfig.DefaultConfig(), nil
	}
	policies, err := ratelimitconfig.LoadFile(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	log.Info("loaded policy overrides", "file", cfg.PolicyFile, "actions", len(policies.Actions()))
	return policies, nil
}

func databaseConfig(cfg config.Server) database.Config {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	return dbCfg
}

// Redis wins over postgres for bucket and lockout state: counter traffic is
// write-heavy and TTL-friendly. The allowlist is tiny and admin-managed, so it
// stays on postgres (or memory without one).
func newBucketStore(pool *database.Pool, redisClient *platformredis.Client) ports.BucketStore {
	switch {
	case redisClient != nil:
		return bucket.NewRedis(redisClient)
	case pool != nil:
		return bucket.NewPostgres(pool.DB())
	default:
		return bucket.NewMemory()
	}
}

func newLockoutStore(pool *database.Pool, redisClient *platformredis.Client) ports.LockoutStore {
	switch {
	case redisClient != nil:
		return lockoutstore.NewRedis(redisClient)
	case pool != nil:
		return lockoutstore.NewPostgres(pool.DB())
	default:
		return lockoutstore.NewMemory()
	}
}

func newAllowlistStore(pool *database.Pool) ports.AllowlistStore {
	if pool != nil {
		return allowlist.NewPostgres(pool.DB())
	}
	return allowlist.NewMemory()
}

func trustedProxies(cfg config.Server, log *slog.Logger) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, raw := range cfg.TrustedProxies {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			// A single-address entry without a mask is accepted too.
			addr, addrErr := netip.ParseAddr(raw)
			if addrErr != nil {
				log.Warn("ignoring invalid trusted proxy entry", "entry", raw, "error", err)
				continue
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}

// syncAuditSink adapts the synchronous admin publisher to the fire-and-forget
// sink interface the services expect. A failed append is logged, not surfaced:
// the operator action itself already succeeded.
type syncAuditSink struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

func (s syncAuditSink) Emit(ctx context.Context, event audit.Event) {
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "admin audit write failed", "event", string(event.Event), "error", err)
	}
}

func poolStatsLoop(ctx context.Context, client *platformredis.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.RecordPoolStats()
		}
	}
}
