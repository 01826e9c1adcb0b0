package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flatkv/flatkv/pkg/telemetry"
)

// Metrics is the store-level telemetry sink. Operations record their
// latency and outcome through it; the default is a no-op so the store adds
// no overhead when telemetry is disabled.
type Metrics interface {
	// RecordOperation records one store operation with its duration and outcome.
	RecordOperation(operation string, duration time.Duration, success bool)

	// RecordChainScan records how many slots a scan visited before settling.
	RecordChainScan(operation string, slots uint64)

	// Close releases any underlying telemetry resources.
	Close() error
}

// storeMetrics implements Metrics over the telemetry abstraction.
type storeMetrics struct {
	tel telemetry.Telemetry
}

// NewMetrics creates a Metrics backed by the given telemetry provider.
func NewMetrics(tel telemetry.Telemetry) Metrics {
	return &storeMetrics{tel: tel}
}

// NewNopMetrics creates a Metrics that records nothing.
func NewNopMetrics() Metrics {
	return &nopMetrics{}
}

func (m *storeMetrics) RecordOperation(operation string, duration time.Duration, success bool) {
	if m.tel == nil {
		return
	}
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	}
	m.tel.RecordHistogram(ctx, "flatkv.store.operation.duration_ms",
		float64(duration.Nanoseconds())/1e6, attrs...)
	m.tel.RecordCounter(ctx, "flatkv.store.operation.count", 1, attrs...)
	if !success {
		m.tel.RecordCounter(ctx, "flatkv.store.operation.errors", 1,
			attribute.String("operation", operation))
	}
}

func (m *storeMetrics) RecordChainScan(operation string, slots uint64) {
	if m.tel == nil {
		return
	}
	m.tel.RecordHistogram(context.Background(), "flatkv.store.scan.slots",
		float64(slots), attribute.String("operation", operation))
}

func (m *storeMetrics) Close() error {
	if m.tel == nil {
		return nil
	}
	return m.tel.Shutdown(context.Background())
}

type nopMetrics struct{}

func (n *nopMetrics) RecordOperation(string, time.Duration, bool) {}
func (n *nopMetrics) RecordChainScan(string, uint64)              {}
func (n *nopMetrics) Close() error                                { return nil }
