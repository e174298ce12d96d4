// Package observability provides structured logging, metrics, and tracing
// for eventplane buffers and policy chains.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every helper accepts a nil logger and does nothing with it.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds policy chain context to a logger.
// Returns a new logger with execution_id and policy fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "exec-123", "retry")
//	enriched.Info("invoking next") // includes execution_id, policy
func EnrichLogger(logger *slog.Logger, executionID, policy string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("execution_id", executionID),
		slog.String("policy", policy),
	)
}

// LogBufferGrow logs a capacity expansion of a stream buffer.
func LogBufferGrow(logger *slog.Logger, from, to int) {
	if logger == nil {
		return
	}
	logger.Debug("stream buffer expanded",
		slog.Int("from_bytes", from),
		slog.Int("to_bytes", to),
	)
}

// LogBufferExceeded logs a refused expansion.
func LogBufferExceeded(logger *slog.Logger, maxSize, wanted int) {
	if logger == nil {
		return
	}
	logger.Warn("stream buffer size exceeded",
		slog.Int("max_bytes", maxSize),
		slog.Int("wanted_bytes", wanted),
	)
}

// LogSourceError logs a failure of the underlying source stream.
func LogSourceError(logger *slog.Logger, tip int64, err error) {
	if logger == nil {
		return
	}
	logger.Error("stream source read failed",
		slog.Int64("tip", tip),
		slog.String("error", err.Error()),
	)
}

// LogBufferExhausted logs that the source has been fully consumed.
func LogBufferExhausted(logger *slog.Logger, tip int64) {
	if logger == nil {
		return
	}
	logger.Debug("stream source exhausted",
		slog.Int64("tip", tip),
	)
}

// LogPolicyStart logs a policy invocation start.
func LogPolicyStart(logger *slog.Logger, policy string) {
	if logger == nil {
		return
	}
	logger.Debug("policy starting",
		slog.String("policy", policy),
	)
}

// LogPolicyComplete logs successful policy completion with its duration in
// milliseconds.
func LogPolicyComplete(logger *slog.Logger, policy string, elapsed time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("policy completed",
		slog.String("policy", policy),
		slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	)
}

// LogPolicyError logs a policy invocation that returned an error.
func LogPolicyError(logger *slog.Logger, policy string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("policy failed",
		slog.String("policy", policy),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
