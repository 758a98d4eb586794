package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/ethosprompt/backend/internal/errorreporting"
	"github.com/onnwee/ethosprompt/backend/internal/logger"
	"github.com/onnwee/ethosprompt/backend/internal/metrics"
)

const (
	reasonCapacity = "capacity"
	reasonExpired  = "expired"
	reasonPressure = "pressure"
	reasonCorrupt  = "corrupt"
)

// Config configures an AdaptiveCache. Zero fields take the package defaults.
type Config struct {
	Name                string
	MaxSizeBytes        int64
	DefaultTTL          time.Duration
	StaleTTL            time.Duration // lifetime of stale shadow copies; negative disables them
	DisableCompression  bool
	CompressThreshold   int64
	SweepInterval       time.Duration
	MemoryCheckInterval time.Duration // negative disables the memory-pressure check
	MemoryPressureRatio float64
	MinSizeBytes        int64
	PreloadConcurrency  int

	Clock  clock.Clock
	Probe  EnvironmentProbe
	Memory MemoryReader
	Logger *slog.Logger
}

// DefaultStaleTTL is how long stale shadow copies outlive a failed refresh.
const DefaultStaleTTL = 24 * time.Hour

type entry[V any] struct {
	key            string
	value          V
	packed         []byte // tagged compressed form; nil when value is stored raw
	createdAt      time.Time
	expiresAt      time.Time
	size           int64
	priority       Priority
	accessCount    uint64
	lastAccessedAt time.Time
}

// AdaptiveCache is a size-bounded in-memory cache with per-entry TTL, priorities,
// optional brotli compression and memory-pressure awareness. It is safe for concurrent use.
type AdaptiveCache[V any] struct {
	name string

	mu      sync.Mutex
	items   map[string]*entry[V]
	size    int64
	maxSize int64

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	defaultTTL         time.Duration
	staleTTL           time.Duration
	compress           bool
	compressThreshold  int64
	sweepInterval      time.Duration
	memoryInterval     time.Duration
	pressureRatio      float64
	minSize            int64
	preloadConcurrency int

	clock  clock.Clock
	probe  EnvironmentProbe
	memory MemoryReader
	log    *slog.Logger

	loads    singleflight.Group
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an AdaptiveCache. Call Start to run background maintenance.
func New[V any](cfg Config) *AdaptiveCache[V] {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.StaleTTL == 0 {
		cfg.StaleTTL = DefaultStaleTTL
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = DefaultCompressThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MemoryCheckInterval == 0 {
		cfg.MemoryCheckInterval = DefaultMemoryCheckInterval
	}
	if cfg.MemoryPressureRatio <= 0 || cfg.MemoryPressureRatio > 1 {
		cfg.MemoryPressureRatio = DefaultMemoryPressureRatio
	}
	if cfg.MinSizeBytes <= 0 {
		cfg.MinSizeBytes = DefaultMinSizeBytes
	}
	if cfg.PreloadConcurrency <= 0 {
		cfg.PreloadConcurrency = 4
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Probe == nil {
		cfg.Probe = StaticProbe{}
	}
	if cfg.Memory == nil {
		cfg.Memory = RuntimeMemory{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.WithComponent("cache")
	}

	c := &AdaptiveCache[V]{
		name:               cfg.Name,
		items:              make(map[string]*entry[V]),
		maxSize:            cfg.MaxSizeBytes,
		defaultTTL:         cfg.DefaultTTL,
		staleTTL:           cfg.StaleTTL,
		compress:           !cfg.DisableCompression,
		compressThreshold:  cfg.CompressThreshold,
		sweepInterval:      cfg.SweepInterval,
		memoryInterval:     cfg.MemoryCheckInterval,
		pressureRatio:      cfg.MemoryPressureRatio,
		minSize:            cfg.MinSizeBytes,
		preloadConcurrency: cfg.PreloadConcurrency,
		clock:              cfg.Clock,
		probe:              cfg.Probe,
		memory:             cfg.Memory,
		log:                cfg.Logger.With("cache", cfg.Name),
		stop:               make(chan struct{}),
	}
	metrics.CacheMaxSizeBytes.WithLabelValues(c.name).Set(float64(c.maxSize))
	return c
}

// Name identifies the cache in logs and metrics.
func (c *AdaptiveCache[V]) Name() string { return c.name }

// Set stores value under key, replacing any previous entry. Failures while
// compressing are logged and the value is stored uncompressed instead.
func (c *AdaptiveCache[V]) Set(key string, value V, opts SetOptions) {
	opts = opts.withDefaults(c.defaultTTL, c.compress)
	e := c.newEntry(key, value, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(e)
}

// newEntry builds the entry outside the lock so compression does not block readers.
func (c *AdaptiveCache[V]) newEntry(key string, value V, opts SetOptions) *entry[V] {
	now := c.clock.Now()
	e := &entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		expiresAt:      now.Add(opts.TTL),
		size:           estimateSize(value),
		priority:       opts.Priority,
		lastAccessedAt: now,
	}
	if !*opts.Compress || e.size <= c.compressThreshold {
		return e
	}

	packed, err := compress(value)
	switch {
	case err != nil:
		c.log.Warn("compression failed, storing raw value", "key", key, "error", err)
		metrics.CacheCompressions.WithLabelValues(c.name, "failed").Inc()
	case int64(len(packed)) >= e.size || !roundTrips(value, packed):
		metrics.CacheCompressions.WithLabelValues(c.name, "skipped").Inc()
	default:
		var zero V
		e.value = zero
		e.packed = packed
		e.size = int64(len(packed))
		metrics.CacheCompressions.WithLabelValues(c.name, "compressed").Inc()
	}
	return e
}

func (c *AdaptiveCache[V]) insertLocked(e *entry[V]) {
	if old, ok := c.items[e.key]; ok {
		c.removeLocked(old)
	}
	if c.size+e.size > c.maxSize {
		c.evictLocked(e.size, reasonCapacity)
	}
	c.items[e.key] = e
	c.size += e.size
}

func (c *AdaptiveCache[V]) removeLocked(e *entry[V]) {
	delete(c.items, e.key)
	c.size -= e.size
}

// Get returns the value stored under key. Expired entries are removed and
// reported as misses, as are entries whose compressed payload cannot be decoded.
func (c *AdaptiveCache[V]) Get(key string) (V, bool) {
	return c.get(key, true)
}

// Peek is Get without side effects on statistics: hit and miss counters,
// accessCount and recency are left alone. Expired entries are still removed.
func (c *AdaptiveCache[V]) Peek(key string) (V, bool) {
	return c.get(key, false)
}

func (c *AdaptiveCache[V]) get(key string, record bool) (V, bool) {
	var zero V

	c.mu.Lock()
	e, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		c.recordMiss(record)
		return zero, false
	}
	now := c.clock.Now()
	if now.After(e.expiresAt) {
		c.removeLocked(e)
		c.mu.Unlock()
		c.expirations.Add(1)
		metrics.CacheEvictions.WithLabelValues(c.name, reasonExpired).Inc()
		c.recordMiss(record)
		return zero, false
	}
	if record {
		e.accessCount++
		e.lastAccessedAt = now
	}
	value, packed := e.value, e.packed
	c.mu.Unlock()

	if packed != nil {
		v, err := decompress[V](packed)
		if err != nil {
			c.dropCorrupt(e, err)
			c.recordMiss(record)
			return zero, false
		}
		value = v
	}
	if record {
		c.hits.Add(1)
		metrics.CacheHits.WithLabelValues(c.name).Inc()
	}
	return value, true
}

func (c *AdaptiveCache[V]) recordMiss(record bool) {
	if !record {
		return
	}
	c.misses.Add(1)
	metrics.CacheMisses.WithLabelValues(c.name).Inc()
}

// dropCorrupt removes e unless it was replaced while it was being decoded.
func (c *AdaptiveCache[V]) dropCorrupt(e *entry[V], err error) {
	c.mu.Lock()
	if cur, ok := c.items[e.key]; ok && cur == e {
		c.removeLocked(e)
	}
	c.mu.Unlock()

	c.log.Warn("dropping undecodable cache entry", "key", e.key, "error", err)
	metrics.CacheEvictions.WithLabelValues(c.name, reasonCorrupt).Inc()
	errorreporting.CaptureErrorWithContext(err,
		map[string]string{"component": "cache", "cache": c.name},
		map[string]interface{}{"key": e.key},
	)
}

// Has reports whether key holds an unexpired entry without touching access statistics.
func (c *AdaptiveCache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	return ok && !c.clock.Now().After(e.expiresAt)
}

// Delete removes key and reports whether an entry was removed.
func (c *AdaptiveCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if ok {
		c.removeLocked(e)
	}
	return ok
}

// Clear removes every entry and resets the hit and miss counters.
func (c *AdaptiveCache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*entry[V])
	c.size = 0
	c.mu.Unlock()

	c.hits.Store(0)
	c.misses.Store(0)
}

// Sweep removes every entry whose expiry lies in the past.
func (c *AdaptiveCache[V]) Sweep() int {
	now := c.clock.Now()
	removed := 0

	c.mu.Lock()
	for _, e := range c.items {
		if e.expiresAt.Before(now) {
			c.removeLocked(e)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.expirations.Add(uint64(removed))
		metrics.CacheEvictions.WithLabelValues(c.name, reasonExpired).Add(float64(removed))
		c.log.Debug("swept expired entries", "removed", removed)
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *AdaptiveCache[V]) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		Size:    c.size,
		MaxSize: c.maxSize,
		Items:   int64(len(c.items)),
	}
	c.mu.Unlock()

	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	s.Evictions = c.evictions.Load()
	s.Expirations = c.expirations.Load()
	s.MemoryUsage, s.MemoryLimit, s.MemoryKnown = c.memory.ReadMemory()
	return s
}

// CollectMetrics publishes the cache gauges.
func (c *AdaptiveCache[V]) CollectMetrics() error {
	s := c.Stats()
	metrics.CacheSizeBytes.WithLabelValues(c.name).Set(float64(s.Size))
	metrics.CacheMaxSizeBytes.WithLabelValues(c.name).Set(float64(s.MaxSize))
	metrics.CacheItems.WithLabelValues(c.name).Set(float64(s.Items))
	metrics.CacheHitRatio.WithLabelValues(c.name).Set(s.HitRate)
	if s.MemoryKnown {
		metrics.ProcessMemoryUsage.Set(float64(s.MemoryUsage))
	}
	return nil
}

// Start runs the expiry sweep and the memory-pressure check until ctx is done
// or Close is called. It blocks; run it in its own goroutine.
func (c *AdaptiveCache[V]) Start(ctx context.Context) {
	sweep := c.clock.Ticker(c.sweepInterval)
	defer sweep.Stop()

	var memC <-chan time.Time
	if c.memoryInterval > 0 {
		memTicker := c.clock.Ticker(c.memoryInterval)
		defer memTicker.Stop()
		memC = memTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-sweep.C:
			c.Sweep()
		case <-memC:
			c.checkMemory()
		}
	}
}

// Close stops the maintenance loop started by Start.
func (c *AdaptiveCache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// checkMemory halves the capacity (down to the floor) when memory use crosses
// the pressure ratio, then sweeps. It reports whether pressure was detected.
func (c *AdaptiveCache[V]) checkMemory() bool {
	used, limit, ok := c.memory.ReadMemory()
	if !ok || limit == 0 {
		return false
	}
	if float64(used) <= c.pressureRatio*float64(limit) {
		return false
	}

	c.mu.Lock()
	before := c.maxSize
	target := c.maxSize / 2
	if target < c.minSize {
		target = c.minSize
	}
	if target < c.maxSize {
		c.maxSize = target
		if c.size > c.maxSize {
			c.evictLocked(0, reasonPressure)
		}
	}
	after := c.maxSize
	c.mu.Unlock()

	metrics.CacheMemoryPressure.WithLabelValues(c.name).Inc()
	metrics.CacheMaxSizeBytes.WithLabelValues(c.name).Set(float64(after))
	c.log.Warn("memory pressure detected",
		"used_bytes", used,
		"limit_bytes", limit,
		"max_size_before", before,
		"max_size_after", after,
	)
	c.Sweep()
	return true
}
