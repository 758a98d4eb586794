package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// PreloadItem describes one value to warm the cache with.
type PreloadItem[V any] struct {
	Key     string
	Fetch   func(ctx context.Context) (V, error)
	Options SetOptions
}

// Preload fetches and stores every item whose key is not already live.
// Preloaded entries are always stored with high priority. Items fail
// independently: errors are logged and the remaining items still load.
// It returns the number of items stored.
func (c *AdaptiveCache[V]) Preload(ctx context.Context, items []PreloadItem[V]) int {
	n := c.load(ctx, items, false)
	c.log.Info("preload finished", "requested", len(items), "loaded", n)
	return n
}

// Refresh refetches every item, live or not, and replaces the cached value
// and its stale copy on success. A failed fetch leaves the current entry alone.
// It returns the number of items refreshed.
func (c *AdaptiveCache[V]) Refresh(ctx context.Context, items []PreloadItem[V]) int {
	n := c.load(ctx, items, true)
	c.log.Info("refresh finished", "requested", len(items), "refreshed", n)
	return n
}

func (c *AdaptiveCache[V]) load(ctx context.Context, items []PreloadItem[V], refresh bool) int {
	var loaded atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.preloadConcurrency)
	for _, item := range items {
		if !refresh && c.Has(item.Key) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				c.log.Warn("load skipped", "key", item.Key, "error", err)
				return nil
			}
			v, err := item.Fetch(ctx)
			if err != nil {
				c.log.Warn("load failed", "key", item.Key, "error", err)
				return nil
			}
			opts := item.Options
			opts.Priority = PriorityHigh
			c.Set(item.Key, v, opts)
			if refresh {
				c.setStale(item.Key, v, opts)
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(loaded.Load())
}
