package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/mintfolio/xauth"

// Config configures instrumentation providers. Nil providers fall back to
// no-op implementations so instrumentation can stay wired in environments
// without a collector.
type Config struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Instrumentation bundles the meter, tracer, and pre-built metric
// instruments for the subsystem.
type Instrumentation struct {
	meter  metric.Meter
	tracer trace.Tracer

	// Metrics holds the instrument set. Safe to pass around on its own.
	Metrics *Metrics
}

// New creates instrumentation from the given config.
func New(cfg *Config) (*Instrumentation, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	meterProvider := cfg.MeterProvider
	if meterProvider == nil {
		meterProvider = metricnoop.NewMeterProvider()
	}
	tracerProvider := cfg.TracerProvider
	if tracerProvider == nil {
		tracerProvider = tracenoop.NewTracerProvider()
	}

	meter := meterProvider.Meter(instrumentationName)
	metrics, err := newMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Instrumentation{
		meter:   meter,
		tracer:  tracerProvider.Tracer(instrumentationName),
		Metrics: metrics,
	}, nil
}

// NewTracerProvider builds an SDK tracer provider with the service identity
// attached. Callers add exporters via their own span processors and are
// responsible for Shutdown.
func NewTracerProvider(serviceName string) (*sdktrace.TracerProvider, error) {
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
}
