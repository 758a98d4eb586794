package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	name  string
	calls atomic.Int32
	err   error
	panic bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) CollectMetrics() error {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	return f.err
}

func TestCollectorCollectsEverySource(t *testing.T) {
	ok := &fakeSource{name: "ok"}
	failing := &fakeSource{name: "failing_source", err: errors.New("unavailable")}
	panicking := &fakeSource{name: "panicking_source", panic: true}

	before := testutil.ToFloat64(MetricsCollectionErrors.WithLabelValues("failing_source"))

	c := NewCollector(time.Hour, failing, panicking, ok)
	c.Collect()

	if ok.calls.Load() != 1 {
		t.Error("Expected the healthy source to be collected despite earlier failures")
	}
	if got := testutil.ToFloat64(MetricsCollectionErrors.WithLabelValues("failing_source")); got != before+1 {
		t.Errorf("Expected error counter to increase by 1, got %v -> %v", before, got)
	}
	if got := testutil.ToFloat64(MetricsCollectionErrors.WithLabelValues("panicking_source")); got < 1 {
		t.Error("Expected panics to be counted as collection errors")
	}
}

func TestCollectorStartCollectsImmediately(t *testing.T) {
	src := &fakeSource{name: "start"}
	c := NewCollector(time.Hour, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for src.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Start did not collect on startup")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Start did not return after context cancellation")
	}
}

func TestCollectorStop(t *testing.T) {
	c := NewCollector(time.Hour)
	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	c.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Start did not return after Stop")
	}
}

func TestNewCollectorDefaultsNonPositiveInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		if c := NewCollector(d); c.interval != DefaultInterval {
			t.Errorf("NewCollector(%v) interval = %v, want %v", d, c.interval, DefaultInterval)
		}
	}
}
