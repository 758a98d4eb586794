package cache

import (
	"context"
	"time"
)

// AdaptiveSet stores value like Set but tunes the options to the environment:
// TTL is doubled on very slow networks and halved on fast ones, and compression
// is used only when the device has ample memory or the client asked to save
// data. An explicit Compress of false always wins, and a cache built with
// DisableCompression never compresses.
//
// The probe comes from ctx (see WithProbe) and falls back to the cache's own.
func (c *AdaptiveCache[V]) AdaptiveSet(ctx context.Context, key string, value V, opts SetOptions) {
	c.Set(key, value, adaptOptions(opts, c.probeFor(ctx), c.defaultTTL, c.compress))
}

func (c *AdaptiveCache[V]) probeFor(ctx context.Context) EnvironmentProbe {
	if p, ok := ProbeFromContext(ctx); ok {
		return p
	}
	return c.probe
}

func adaptOptions(opts SetOptions, p EnvironmentProbe, defaultTTL time.Duration, capable bool) SetOptions {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	switch p.NetworkClass() {
	case NetworkVerySlow:
		opts.TTL *= 2
	case NetworkFast:
		opts.TTL /= 2
	}

	allowed := capable && (opts.Compress == nil || *opts.Compress)
	wanted := p.DeviceMemoryClass() == MemoryAmple || p.SaveDataRequested()
	opts.Compress = Bool(allowed && wanted)
	return opts
}
