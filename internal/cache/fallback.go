package cache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/ethosprompt/backend/internal/errorreporting"
	"github.com/onnwee/ethosprompt/backend/internal/metrics"
	"github.com/onnwee/ethosprompt/backend/internal/tracing"
)

// Fetcher produces the value for a key on a cache miss.
type Fetcher[V any] func(ctx context.Context) (V, error)

// GetWithFallback returns the cached value for key, or calls fetch on a miss
// and stores the result with AdaptiveSet. Every successful fetch also refreshes
// the stale shadow copy under key+StaleSuffix. When fetch fails the stale copy
// is returned instead; the fetch error is returned only if there is none.
// Errors wrapped with Permanent skip the stale copy and are returned unwrapped.
//
// Concurrent misses on the same key share one fetch.
func (c *AdaptiveCache[V]) GetWithFallback(ctx context.Context, key string, fetch Fetcher[V], opts SetOptions) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ctx, span := tracing.StartSpan(ctx, "cache.fetch",
		trace.WithAttributes(
			attribute.String("cache.name", c.name),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	res, err, shared := c.loads.Do(key, func() (any, error) {
		// Another caller may have stored it between our miss and acquiring the flight.
		if v, ok := c.get(key, false); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.AdaptiveSet(ctx, key, v, opts)
		c.setStale(key, v, opts)
		return v, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared_fetch", shared))

	if err == nil {
		metrics.CacheFallbacks.WithLabelValues(c.name, "fresh").Inc()
		v, _ := res.(V)
		return v, nil
	}

	span.RecordError(err)
	if cause := permanentCause(err); cause != nil {
		c.Delete(key + StaleSuffix)
		metrics.CacheFallbacks.WithLabelValues(c.name, "error").Inc()
		var zero V
		return zero, cause
	}
	if stale, ok := c.get(key+StaleSuffix, false); ok {
		span.SetAttributes(attribute.Bool("cache.stale", true))
		metrics.CacheFallbacks.WithLabelValues(c.name, "stale").Inc()
		c.log.Warn("fetch failed, serving stale copy", "key", key, "error", err)
		return stale, nil
	}

	span.SetStatus(codes.Error, err.Error())
	metrics.CacheFallbacks.WithLabelValues(c.name, "error").Inc()
	c.log.Error("fetch failed and no stale copy exists", "key", key, "error", err)
	errorreporting.CaptureErrorWithContext(err,
		map[string]string{"component": "cache", "cache": c.name},
		map[string]interface{}{"key": key},
	)
	var zero V
	return zero, err
}

// setStale refreshes the shadow copy of key. It is a no-op when stale copies are disabled.
func (c *AdaptiveCache[V]) setStale(key string, v V, opts SetOptions) {
	if c.staleTTL <= 0 {
		return
	}
	c.Set(key+StaleSuffix, v, SetOptions{
		TTL:      c.staleTTL,
		Priority: PriorityLow,
		Compress: opts.Compress,
	})
}
