package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Provider implements Telemetry using the OpenTelemetry SDK with stdout
// exporters. Instruments are created lazily and cached per name.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
}

// New creates a Telemetry from the configuration. Disabled configurations
// yield the no-op implementation.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	res, err := sdkresource.Merge(sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion)))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(cfg.ExportInterval),
			sdkmetric.WithTimeout(cfg.ExportTimeout))))

	traceExporter, err := stdouttrace.New()
	if err != nil {
		shutdownErr := meterProvider.Shutdown(context.Background())
		return nil, errors.Join(fmt.Errorf("create trace exporter: %w", err), shutdownErr)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithBatcher(traceExporter))

	return &Provider{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		meter:          meterProvider.Meter(cfg.ServiceName),
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		histograms:     make(map[string]metric.Float64Histogram),
		counters:       make(map[string]metric.Int64Counter),
	}, nil
}

// RecordHistogram records a histogram value with optional attributes.
func (p *Provider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	hist, err := p.histogram(name)
	if err != nil {
		return
	}
	hist.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordCounter records a counter increment with optional attributes.
func (p *Provider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	counter, err := p.counter(name)
	if err != nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// StartSpan creates a new tracing span with the given name and attributes.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return p.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.meterProvider.Shutdown(ctx),
		p.tracerProvider.Shutdown(ctx))
}

func (p *Provider) histogram(name string) (metric.Float64Histogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hist, ok := p.histograms[name]; ok {
		return hist, nil
	}
	hist, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	p.histograms[name] = hist
	return hist, nil
}

func (p *Provider) counter(name string) (metric.Int64Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if counter, ok := p.counters[name]; ok {
		return counter, nil
	}
	counter, err := p.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	p.counters[name] = counter
	return counter, nil
}
