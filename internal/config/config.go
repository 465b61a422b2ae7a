package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	RunMigrations      bool
	CORSAllowedOrigins []string

	JWTSecret     string
	AuthIssuer    string
	AuthAudience  string
	AuthTokenTTL  time.Duration
	AuthClockSkew time.Duration

	CurrencyScale uint8
	Location      *time.Location

	CatalogCacheTTL    time.Duration
	ReportCacheTTL     time.Duration
	IdempotencyTTL     time.Duration
	DrawerLockTTL      time.Duration
	LockRetryBackoff   time.Duration
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration

	QueueName         string
	EventMaxAttempts  int
	EventTaskTimeout  time.Duration
	WorkerConcurrency int

	AdminBasicAuthUser string
	AdminBasicAuthPass string

	MaxBodyBytes        int64
	SecurityHeaders     bool
	HSTSEnabled         bool
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	Obs ObsConfig
}

// ObsConfig controls logging, metrics, tracing and profiling.
type ObsConfig struct {
	LogFormat         string
	LogLevel          string
	MetricsEnabled    bool
	MetricsNamespace  string
	MetricsBuckets    string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	SamplingRatio     float64
	PprofEnabled      bool
	ReadyDBTimeout    time.Duration
	ReadyRedisTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		RunMigrations:      parseBool(k.String("RUN_MIGRATIONS"), true),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		JWTSecret:          valueOrDefault(k.String("AUTH_JWT_SECRET"), k.String("JWT_SECRET")),
		AuthIssuer:         valueOrDefault(k.String("AUTH_ISSUER"), "caja"),
		AuthAudience:       valueOrDefault(k.String("AUTH_AUDIENCE"), "caja-terminals"),
		AuthTokenTTL:       parseDuration(k.String("AUTH_TOKEN_TTL"), "12h"),
		AuthClockSkew:      parseDuration(k.String("AUTH_CLOCK_SKEW"), "30s"),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		ReportCacheTTL:     parseDuration(k.String("REPORT_CACHE_TTL"), "10m"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		DrawerLockTTL:      parseDuration(k.String("DRAWER_LOCK_TTL"), "10s"),
		LockRetryBackoff:   parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		CheckoutRateLimit:  parseInt(k.String("CHECKOUT_RATE_LIMIT"), 120),
		CheckoutRateWindow: parseDuration(k.String("CHECKOUT_RATE_WINDOW"), "1m"),
		QueueName:          valueOrDefault(k.String("QUEUE_NAME"), "events"),
		EventMaxAttempts:   parseInt(k.String("EVENT_MAX_ATTEMPTS"), 10),
		EventTaskTimeout:   parseDuration(k.String("EVENT_TASK_TIMEOUT"), "30s"),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 10),
		AdminBasicAuthUser: strings.TrimSpace(k.String("ADMIN_BASIC_AUTH_USER")),
		AdminBasicAuthPass: strings.TrimSpace(k.String("ADMIN_BASIC_AUTH_PASS")),

		MaxBodyBytes:        int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 64<<10)),
		SecurityHeaders:     parseBool(k.String("SECURE_HEADERS_ENABLED"), true),
		HSTSEnabled:         parseBool(k.String("SECURE_HSTS_ENABLED"), false),
		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		Obs: ObsConfig{
			LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:    parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "caja"),
			MetricsBuckets:    k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:    parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:   valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:     parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			PprofEnabled:      parseBool(k.String("OBS_ENABLE_PPROF"), false),
			ReadyDBTimeout:    parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
			ReadyRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		},
	}

	scale := parseInt(k.String("CURRENCY_SCALE"), 2)
	if scale < 0 || scale > 6 {
		return nil, fmt.Errorf("CURRENCY_SCALE must be between 0 and 6, got %d", scale)
	}
	cfg.CurrencyScale = uint8(scale)

	loc, err := time.LoadLocation(valueOrDefault(k.String("LOCATION"), "UTC"))
	if err != nil {
		return nil, fmt.Errorf("LOCATION: %w", err)
	}
	cfg.Location = loc

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
