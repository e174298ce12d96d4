package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordBufferGrowth does nothing.
func (NoopMetrics) RecordBufferGrowth(_ context.Context, _ int) {}

// RecordBufferExceeded does nothing.
func (NoopMetrics) RecordBufferExceeded(_ context.Context, _ int) {}

// RecordBytesConsumed does nothing.
func (NoopMetrics) RecordBytesConsumed(_ context.Context, _ int) {}

// RecordPolicyInvocation does nothing.
func (NoopMetrics) RecordPolicyInvocation(_ context.Context, _ string, _ time.Duration, _ error) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartPolicySpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartPolicySpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
