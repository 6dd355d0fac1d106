package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records store metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when
// disabled.
type MetricsRecorder interface {
	// RecordOperation records a store operation with its duration and
	// error status.
	RecordOperation(ctx context.Context, storeID, op string, duration time.Duration, err error)

	// RecordConflict records an access request rejected or abandoned
	// because of the borrow discipline.
	RecordConflict(ctx context.Context, storeID, op string)

	// RecordPoisoned records an entry entering quarantine.
	RecordPoisoned(ctx context.Context, storeID string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	opCount   metric.Int64Counter
	opLatency metric.Float64Histogram
	opErrors  metric.Int64Counter
	conflicts metric.Int64Counter
	poisoned  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("custody")

	opCount, err := meter.Int64Counter("custody.op.count",
		metric.WithDescription("Number of store operations"),
	)
	if err != nil {
		return nil, err
	}

	opLatency, err := meter.Float64Histogram("custody.op.latency_ms",
		metric.WithDescription("Store operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	opErrors, err := meter.Int64Counter("custody.op.errors",
		metric.WithDescription("Number of failed store operations"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter("custody.op.conflicts",
		metric.WithDescription("Number of borrow conflicts"),
	)
	if err != nil {
		return nil, err
	}

	poisoned, err := meter.Int64Counter("custody.entries.poisoned",
		metric.WithDescription("Number of entries quarantined after a panic mid-mutation"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		opCount:   opCount,
		opLatency: opLatency,
		opErrors:  opErrors,
		conflicts: conflicts,
		poisoned:  poisoned,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordOperation records a store operation.
func (m *otelMetrics) RecordOperation(ctx context.Context, storeID, op string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("store_id", storeID),
		attribute.String("op", op),
	}

	m.opCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.opLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.opErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordConflict records a borrow conflict.
func (m *otelMetrics) RecordConflict(ctx context.Context, storeID, op string) {
	m.conflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store_id", storeID),
		attribute.String("op", op),
	))
}

// RecordPoisoned records an entry entering quarantine.
func (m *otelMetrics) RecordPoisoned(ctx context.Context, storeID string) {
	m.poisoned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store_id", storeID),
	))
}
