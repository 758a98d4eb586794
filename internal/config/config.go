package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/ethosprompt/backend/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	AdminAPIToken  string // Bearer token gating /api/admin
	DBQueryTimeout time.Duration

	// Cache settings
	CacheMaxSizeBytes        int64
	CacheMinSizeBytes        int64 // floor for memory-pressure capacity cuts
	CacheDefaultTTL          time.Duration
	CacheStaleTTL            time.Duration
	CacheCompression         bool
	CacheCompressThreshold   int64
	CacheSweepInterval       time.Duration
	CacheMemoryCheckInterval time.Duration // zero or negative disables the memory-pressure check
	CacheMemoryPressureRatio float64
	CacheDefaultNetwork      string // ECT-style hint used when a request carries none
	CacheDefaultSaveData     bool
	CachePreload             bool
	CacheRefreshSchedule     string // scheduler expression for re-warming the catalog; "off" disables

	// Circuit breaker around catalog queries
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration

	// Security settings
	CORSAllowedOrigins   []string
	RateLimitGlobal      float64 // requests per second globally
	RateLimitGlobalBurst int     // burst size for global rate limit
	RateLimitPerIP       float64 // requests per second per IP
	RateLimitPerIPBurst  int     // burst size for per-IP rate limit
	EnableRateLimit      bool

	// Observability settings
	LogLevel          string        // log level: debug, info, warn, error
	MetricsInterval   time.Duration // non-positive values fall back to the default
	OTELEnabled       bool          // enable OpenTelemetry tracing
	OTELEndpoint      string        // OpenTelemetry collector endpoint
	OTELSampleRate    float64       // trace sampling rate (0.0 to 1.0)
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string
	SentrySampleRate  float64
	ServiceVersion    string
}

const (
	mb                     = 1024 * 1024
	defaultMetricsInterval = 15 * time.Second
)

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	env := utils.GetEnvAsString("ENV", "development")
	cached = &Config{
		Env:            env,
		Port:           utils.GetEnvAsString("PORT", "8000"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AdminAPIToken:  strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		DBQueryTimeout: time.Duration(utils.GetEnvAsInt("DB_QUERY_TIMEOUT_MS", 5000)) * time.Millisecond,

		CacheMaxSizeBytes:        utils.GetEnvAsInt64("CACHE_MAX_SIZE_MB", 50) * mb,
		CacheMinSizeBytes:        utils.GetEnvAsInt64("CACHE_MIN_SIZE_MB", 10) * mb,
		CacheDefaultTTL:          utils.GetEnvAsSeconds("CACHE_DEFAULT_TTL_SEC", 30*time.Minute),
		CacheStaleTTL:            utils.GetEnvAsSeconds("CACHE_STALE_TTL_SEC", 24*time.Hour),
		CacheCompression:         utils.GetEnvAsBool("CACHE_COMPRESSION", true),
		CacheCompressThreshold:   utils.GetEnvAsInt64("CACHE_COMPRESS_THRESHOLD_BYTES", 1024),
		CacheSweepInterval:       utils.GetEnvAsSeconds("CACHE_SWEEP_INTERVAL_SEC", 5*time.Minute),
		CacheMemoryCheckInterval: utils.GetEnvAsSeconds("CACHE_MEMORY_CHECK_INTERVAL_SEC", 30*time.Second),
		CacheMemoryPressureRatio: utils.GetEnvAsFloat("CACHE_MEMORY_PRESSURE_RATIO", 0.8),
		CacheDefaultNetwork:      strings.ToLower(utils.GetEnvAsString("CACHE_DEFAULT_NETWORK", "")),
		CacheDefaultSaveData:     utils.GetEnvAsBool("CACHE_DEFAULT_SAVE_DATA", false),
		CachePreload:             utils.GetEnvAsBool("CACHE_PRELOAD", true),
		CacheRefreshSchedule:     strings.TrimSpace(utils.GetEnvAsString("CACHE_REFRESH_SCHEDULE", "@every 25m")),

		BreakerFailureThreshold: utils.GetEnvAsInt("DB_BREAKER_FAILURES", 5),
		BreakerTimeout:          utils.GetEnvAsSeconds("DB_BREAKER_TIMEOUT_SEC", 30*time.Second),

		CORSAllowedOrigins:   utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}, ","),
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),

		LogLevel:          strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		MetricsInterval:   utils.GetEnvAsSeconds("METRICS_INTERVAL_SEC", defaultMetricsInterval),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: utils.GetEnvAsString("SENTRY_ENVIRONMENT", env),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
		ServiceVersion:    utils.GetEnvAsString("SERVICE_VERSION", "dev"),
	}

	if cached.SentryRelease == "" {
		cached.SentryRelease = cached.ServiceVersion
	}
	if cached.MetricsInterval <= 0 {
		cached.MetricsInterval = defaultMetricsInterval
	}
	// The cache treats a zero interval as "use the default", so an explicit 0 is mapped to off.
	if cached.CacheMemoryCheckInterval <= 0 {
		cached.CacheMemoryCheckInterval = -1
	}
	if cached.CacheMinSizeBytes > cached.CacheMaxSizeBytes {
		cached.CacheMinSizeBytes = cached.CacheMaxSizeBytes
	}

	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// IsProduction reports whether ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
