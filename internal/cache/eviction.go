package cache

import (
	"sort"

	"github.com/onnwee/ethosprompt/backend/internal/metrics"
)

// evictsBefore orders entries for eviction: lower priority first, then least
// recently accessed, then by key so the order is total.
func evictsBefore[V any](a, b *entry[V]) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if !a.lastAccessedAt.Equal(b.lastAccessedAt) {
		return a.lastAccessedAt.Before(b.lastAccessedAt)
	}
	return a.key < b.key
}

// evictLocked removes entries in eviction order until incoming more bytes fit
// within maxSize or the cache is empty. An incoming entry larger than maxSize
// therefore empties the cache. Callers must hold c.mu.
func (c *AdaptiveCache[V]) evictLocked(incoming int64, reason string) int {
	candidates := make([]*entry[V], 0, len(c.items))
	for _, e := range c.items {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return evictsBefore(candidates[i], candidates[j])
	})

	evicted := 0
	var freed int64
	for _, e := range candidates {
		if c.size+incoming <= c.maxSize {
			break
		}
		c.removeLocked(e)
		freed += e.size
		evicted++
	}
	if evicted == 0 {
		return 0
	}

	c.evictions.Add(uint64(evicted))
	metrics.CacheEvictions.WithLabelValues(c.name, reason).Add(float64(evicted))
	c.log.Debug("evicted entries",
		"reason", reason,
		"count", evicted,
		"freed_bytes", freed,
		"incoming_bytes", incoming,
	)
	return evicted
}
