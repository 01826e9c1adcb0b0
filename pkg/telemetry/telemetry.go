// Package telemetry provides the metric and tracing abstraction flatkv
// components record into, with a no-op implementation for when telemetry is
// disabled and an OpenTelemetry-backed provider for when it is not.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the abstraction components use to record metrics and spans
// without depending on OpenTelemetry directly.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown gracefully shuts down providers and flushes remaining data.
	Shutdown(ctx context.Context) error
}

// NoopTelemetry records nothing.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

// RecordHistogram is a no-op.
func (n *NoopTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
}

// RecordCounter is a no-op.
func (n *NoopTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
}

// StartSpan returns the original context and a no-op span.
func (n *NoopTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

// Shutdown is a no-op.
func (n *NoopTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

// RecordDuration records the time since start in a histogram, in seconds.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// Common attribute keys for consistent naming across components
const (
	AttrOperation = "operation"
	AttrComponent = "component"
	AttrSuccess   = "success"
	AttrErrorType = "error.type"
)
