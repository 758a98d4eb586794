package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of entries removed before being read again",
		},
		[]string{"cache", "reason"}, // reason: capacity, expired, pressure, corrupt
	)

	CacheCompressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_compressions_total",
			Help: "Outcome of compression attempts on stored values",
		},
		[]string{"cache", "result"}, // result: compressed, skipped, failed
	)

	CacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_fallback_total",
			Help: "Outcome of fetches performed on cache misses",
		},
		[]string{"cache", "outcome"}, // outcome: fresh, stale, error
	)

	CacheMemoryPressure = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_memory_pressure_total",
			Help: "Number of times the cache cut its capacity because of memory pressure",
		},
		[]string{"cache"},
	)

	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_size_bytes",
			Help: "Approximate size of live cache entries in bytes",
		},
		[]string{"cache"},
	)

	CacheMaxSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_max_size_bytes",
			Help: "Current effective cache capacity in bytes",
		},
		[]string{"cache"},
	)

	CacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_items",
			Help: "Current number of items in the cache",
		},
		[]string{"cache"},
	)

	CacheHitRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Hits divided by lookups since the last clear",
		},
		[]string{"cache"},
	)

	ProcessMemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_memory_in_use_bytes",
			Help: "Memory in use as seen by the cache pressure monitor",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// Catalog store metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	DBOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)
)
