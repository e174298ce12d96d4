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

// MetricsRecorder records eventplane metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordBufferGrowth records a stream buffer capacity expansion.
	RecordBufferGrowth(ctx context.Context, newCapacity int)

	// RecordBufferExceeded records a refused expansion.
	RecordBufferExceeded(ctx context.Context, maxSize int)

	// RecordBytesConsumed records bytes pulled forward from a source.
	RecordBytesConsumed(ctx context.Context, n int)

	// RecordPolicyInvocation records one policy node invocation.
	RecordPolicyInvocation(ctx context.Context, policy string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	bufferGrowth   metric.Int64Counter
	bufferCapacity metric.Int64Histogram
	bufferExceeded metric.Int64Counter
	bytesConsumed  metric.Int64Counter
	policyCalls    metric.Int64Counter
	policyLatency  metric.Float64Histogram
	policyErrors   metric.Int64Counter
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
	meter := otel.Meter("eventplane")

	bufferGrowth, err := meter.Int64Counter("eventplane.buffer.grow",
		metric.WithDescription("Number of stream buffer expansions"),
	)
	if err != nil {
		return nil, err
	}

	bufferCapacity, err := meter.Int64Histogram("eventplane.buffer.capacity_bytes",
		metric.WithDescription("Stream buffer capacity after expansion"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	bufferExceeded, err := meter.Int64Counter("eventplane.buffer.exceeded",
		metric.WithDescription("Number of refused stream buffer expansions"),
	)
	if err != nil {
		return nil, err
	}

	bytesConsumed, err := meter.Int64Counter("eventplane.buffer.bytes_consumed",
		metric.WithDescription("Bytes pulled forward from source streams"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	policyCalls, err := meter.Int64Counter("eventplane.policy.invocations",
		metric.WithDescription("Number of policy node invocations"),
	)
	if err != nil {
		return nil, err
	}

	policyLatency, err := meter.Float64Histogram("eventplane.policy.latency_ms",
		metric.WithDescription("Policy node latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	policyErrors, err := meter.Int64Counter("eventplane.policy.errors",
		metric.WithDescription("Number of policy node invocations returning an error"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		bufferGrowth:   bufferGrowth,
		bufferCapacity: bufferCapacity,
		bufferExceeded: bufferExceeded,
		bytesConsumed:  bytesConsumed,
		policyCalls:    policyCalls,
		policyLatency:  policyLatency,
		policyErrors:   policyErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
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

// RecordBufferGrowth records a buffer expansion.
func (m *otelMetrics) RecordBufferGrowth(ctx context.Context, newCapacity int) {
	m.bufferGrowth.Add(ctx, 1)
	m.bufferCapacity.Record(ctx, int64(newCapacity))
}

// RecordBufferExceeded records a refused expansion.
func (m *otelMetrics) RecordBufferExceeded(ctx context.Context, maxSize int) {
	m.bufferExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("max_bytes", maxSize),
	))
}

// RecordBytesConsumed records bytes read from a source.
func (m *otelMetrics) RecordBytesConsumed(ctx context.Context, n int) {
	m.bytesConsumed.Add(ctx, int64(n))
}

// RecordPolicyInvocation records a policy node invocation.
func (m *otelMetrics) RecordPolicyInvocation(ctx context.Context, policy string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("policy", policy),
	}

	m.policyCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.policyLatency.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))

	if err != nil {
		m.policyErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
