package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "bulwark/pkg/platform/strings"
)

// Server captures process-level configuration. Per-action abuse policies live
// in the ratelimit config package; this covers the wiring around them.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	// AdminToken guards the operator API. When AdminTokenHash is set it takes
	// precedence and the plaintext token never needs to reach the process.
	AdminToken     string
	AdminTokenHash string

	// DatabaseURL selects the postgres-backed stores when non-empty.
	DatabaseURL string
	// RedisURL selects the redis-backed stores when non-empty.
	RedisURL string

	// TrustedProxies lists CIDR prefixes allowed to assert X-Forwarded-For.
	TrustedProxies []string

	// PolicyFile optionally points at a YAML file overriding per-action policies.
	PolicyFile string

	StoreTimeout    time.Duration
	JanitorInterval time.Duration

	Kafka Kafka
}

// Kafka holds the optional audit stream fan-out settings.
type Kafka struct {
	Enabled    bool
	Brokers    string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() Server {
	_ = godotenv.Load()

	return Server{
		Addr:           getEnv("BULWARK_ADDR", ":8080"),
		Environment:    getEnv("BULWARK_ENV", "development"),
		LogLevel:       getEnv("BULWARK_LOG_LEVEL", "info"),
		AdminToken:     os.Getenv("BULWARK_ADMIN_TOKEN"),
		AdminTokenHash: os.Getenv("BULWARK_ADMIN_TOKEN_HASH"),
		DatabaseURL:    os.Getenv("BULWARK_DATABASE_URL"),
		RedisURL:       os.Getenv("BULWARK_REDIS_URL"),
		TrustedProxies: pstrings.DedupeAndTrim(strings.Split(os.Getenv("BULWARK_TRUSTED_PROXIES"), ",")),
		PolicyFile:     os.Getenv("BULWARK_POLICY_FILE"),

		StoreTimeout:    getDuration("BULWARK_STORE_TIMEOUT", 3*time.Second),
		JanitorInterval: getDuration("BULWARK_JANITOR_INTERVAL", time.Hour),

		Kafka: Kafka{
			Enabled:    getBool("BULWARK_KAFKA_ENABLED", false),
			Brokers:    getEnv("BULWARK_KAFKA_BROKERS", "localhost:9092"),
			AuditTopic: getEnv("BULWARK_KAFKA_AUDIT_TOPIC", "bulwark.audit.security"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
