package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEndpoint is the OTLP HTTP collector address used when none is configured.
const DefaultEndpoint = "localhost:4318"

var tracer trace.Tracer

// Options controls tracer setup.
type Options struct {
	Enabled    bool
	Endpoint   string // host:port, no scheme
	SampleRate float64
	Version    string
}

// Init initializes OpenTelemetry tracing and returns its shutdown function.
// When tracing is disabled the returned function is a no-op.
func Init(serviceName string, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	// WithInsecure selects plain HTTP; the collector normally runs as a local sidecar.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(clampRate(opts.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(serviceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func clampRate(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// GetTracer returns the global tracer, or a no-op tracer before Init.
func GetTracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("noop")
	}
	return tracer
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName, opts...)
}
