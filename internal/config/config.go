// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database selection, payment provider and
// auth credentials, photo storage, caching, rate limiting, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "settlement-showcase")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StripeConfig holds payment provider credentials and the subscription price.
type StripeConfig struct {
	SecretKey     string // STRIPE_SECRET_KEY
	PriceID       string // STRIPE_PRICE_ID (recurring price for the listing subscription)
	WebhookSecret string // STRIPE_WEBHOOK_SECRET (whsec_...)
}

// AuthConfig configures verification of access tokens minted by the hosted
// auth platform.
type AuthConfig struct {
	JWTSecret string        // AUTH_JWT_SECRET (HS256 shared secret)
	Issuer    string        // AUTH_JWT_ISSUER (optional)
	Audience  string        // AUTH_JWT_AUDIENCE
	Leeway    time.Duration // AUTH_JWT_LEEWAY

	// TrustHeaders accepts X-User-ID / X-User-Email as the caller identity
	// when JWTSecret is empty. Allowed only with GIN_MODE debug or test.
	TrustHeaders bool // AUTH_TRUST_HEADERS
}

// StorageConfig configures the S3-compatible photo bucket.
type StorageConfig struct {
	Endpoint  string        // MINIO_ENDPOINT (empty disables photo storage)
	AccessKey string        // MINIO_ACCESS_KEY
	SecretKey string        // MINIO_SECRET_KEY
	Bucket    string        // MINIO_BUCKET
	UseSSL    bool          // MINIO_USE_SSL
	URLTTL    time.Duration // PHOTO_URL_TTL
}

// CacheConfig selects the existence/session cache backend.
type CacheConfig struct {
	RedisAddr     string // REDIS_ADDR (empty -> in-process cache)
	RedisPassword string // REDIS_PASSWORD
	Prefix        string // CACHE_PREFIX
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// App
	PublicBaseURL              string        // default return URL for checkout redirects
	SubscriptionFallbackPeriod time.Duration // validity window when the provider reports none
	EmailCheckDebounce         time.Duration // quiet period for client email checks

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Integrations
	Stripe  StripeConfig
	Auth    AuthConfig
	Storage StorageConfig
	Cache   CacheConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: sysutil.FirstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN")),

		// App
		PublicBaseURL:              strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		SubscriptionFallbackPeriod: getdur("SUBSCRIPTION_FALLBACK_PERIOD", 365*24*time.Hour),
		EmailCheckDebounce:         getdur("EMAIL_CHECK_DEBOUNCE", 500*time.Millisecond),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Integrations
		Stripe: StripeConfig{
			SecretKey:     getenv("STRIPE_SECRET_KEY", ""),
			PriceID:       getenv("STRIPE_PRICE_ID", ""),
			WebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("AUTH_JWT_SECRET", ""),
			Issuer:    getenv("AUTH_JWT_ISSUER", ""),
			Audience:  getenv("AUTH_JWT_AUDIENCE", "authenticated"),
			Leeway:    getdur("AUTH_JWT_LEEWAY", 30*time.Second),

			TrustHeaders: getbool("AUTH_TRUST_HEADERS", false),
		},
		Storage: StorageConfig{
			Endpoint:  getenv("MINIO_ENDPOINT", ""),
			AccessKey: getenv("MINIO_ACCESS_KEY", ""),
			SecretKey: getenv("MINIO_SECRET_KEY", ""),
			Bucket:    getenv("MINIO_BUCKET", "settlement-photos"),
			UseSSL:    getbool("MINIO_USE_SSL", false),
			URLTTL:    getdur("PHOTO_URL_TTL", 15*time.Minute),
		},
		Cache: CacheConfig{
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			Prefix:        getenv("CACHE_PREFIX", "settlements"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "settlement-showcase"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, errors.New("PUBLIC_BASE_URL must be an absolute URL")
	}
	if cfg.SubscriptionFallbackPeriod <= 0 {
		return cfg, errors.New("SUBSCRIPTION_FALLBACK_PERIOD must be > 0")
	}
	if cfg.EmailCheckDebounce < 0 {
		return cfg, errors.New("EMAIL_CHECK_DEBOUNCE must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Auth.Leeway < 0 {
		return cfg, errors.New("AUTH_JWT_LEEWAY must be >= 0")
	}
	if cfg.Auth.TrustHeaders {
		if cfg.Auth.JWTSecret != "" {
			return cfg, errors.New("AUTH_TRUST_HEADERS cannot be combined with AUTH_JWT_SECRET")
		}
		if cfg.GinMode == "release" {
			return cfg, errors.New("AUTH_TRUST_HEADERS requires GIN_MODE=debug or test")
		}
	}
	// S3 presigned URLs are capped at 7 days.
	if cfg.Storage.URLTTL <= 0 || cfg.Storage.URLTTL > 7*24*time.Hour {
		return cfg, errors.New("PHOTO_URL_TTL must be in (0, 168h]")
	}
	if cfg.Storage.Endpoint != "" && strings.TrimSpace(cfg.Storage.Bucket) == "" {
		return cfg, errors.New("MINIO_BUCKET must not be empty when MINIO_ENDPOINT is set")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
