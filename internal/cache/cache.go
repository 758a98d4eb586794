package cache

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxSizeBytes is the capacity used when Config.MaxSizeBytes is zero.
	DefaultMaxSizeBytes int64 = 50 * 1024 * 1024
	// DefaultTTL is applied when SetOptions.TTL is zero.
	DefaultTTL = 30 * time.Minute
	// DefaultCompressThreshold is the estimated size above which values are compressed.
	DefaultCompressThreshold int64 = 1024
	// DefaultSweepInterval is how often expired entries are purged in the background.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultMemoryCheckInterval is how often process memory is compared to its ceiling.
	DefaultMemoryCheckInterval = 30 * time.Second
	// DefaultMemoryPressureRatio is the used/limit ratio that triggers a capacity cut.
	DefaultMemoryPressureRatio = 0.8
	// DefaultMinSizeBytes is the floor for pressure-driven capacity cuts.
	DefaultMinSizeBytes int64 = 10 * 1024 * 1024

	// StaleSuffix is appended to a key to address its stale shadow copy.
	StaleSuffix = "_stale"
)

// Cache is the part of AdaptiveCache that does not depend on the value type.
// Admin handlers and the metrics collector work against it.
type Cache interface {
	// Name identifies the cache in logs and metrics.
	Name() string

	// Has reports whether key holds a live entry. It does not touch access statistics.
	Has(key string) bool

	// Delete removes key and reports whether an entry was removed.
	Delete(key string) bool

	// Clear removes every entry and resets hit/miss counters.
	Clear()

	// Sweep removes expired entries and returns how many were removed.
	Sweep() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats represents cache statistics.
type Stats struct {
	Size        int64   // Approximate size of live entries in bytes
	MaxSize     int64   // Current effective capacity in bytes
	Items       int64   // Current number of items
	Hits        uint64  // Hits since creation or the last Clear
	Misses      uint64  // Misses since creation or the last Clear
	HitRate     float64 // Hits / (Hits + Misses), zero before the first access
	Evictions   uint64  // Entries removed to make room or under memory pressure
	Expirations uint64  // Entries removed because their TTL ran out
	MemoryUsage uint64  // Process memory in use, when MemoryKnown
	MemoryLimit uint64  // Process memory ceiling, when MemoryKnown
	MemoryKnown bool
}

// Priority orders entries for eviction. Lower priorities are evicted first.
type Priority int

const (
	priorityUnset Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unset"
	}
}

// ParsePriority converts "low", "medium" or "high" to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium", "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return priorityUnset, fmt.Errorf("unknown cache priority %q", s)
	}
}

// SetOptions controls how a single value is stored.
// The zero value means: default TTL, medium priority, compress if the cache supports it.
type SetOptions struct {
	TTL      time.Duration
	Priority Priority
	// Compress overrides the cache-wide compression setting when non-nil.
	Compress *bool
}

// Bool returns a pointer to b, for use with SetOptions.Compress.
func Bool(b bool) *bool { return &b }

func (o SetOptions) withDefaults(defaultTTL time.Duration, compress bool) SetOptions {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.Priority == priorityUnset {
		o.Priority = PriorityMedium
	}
	if o.Compress == nil {
		o.Compress = Bool(compress)
	}
	return o
}
