package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Source publishes its own gauges when asked.
type Source interface {
	Name() string
	CollectMetrics() error
}

// Collector periodically collects and updates Prometheus metrics
type Collector struct {
	sources  []Source
	interval time.Duration
	stop     chan struct{}
}

// DefaultInterval is used when NewCollector is given a non-positive interval.
const DefaultInterval = 15 * time.Second

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, sources ...Source) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Collector{
		sources:  sources,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Collect initial metrics
	c.Collect()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stop)
}

// Collect asks every source to publish. A failing source does not stop the others.
func (c *Collector) Collect() {
	for _, s := range c.sources {
		if err := collectOne(s); err != nil {
			slog.Default().Warn("metrics collection failed", "source", s.Name(), "error", err)
			MetricsCollectionErrors.WithLabelValues(s.Name()).Inc()
		}
	}
}

func collectOne(s Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.CollectMetrics()
}
