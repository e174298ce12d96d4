package policies

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// Logging logs each event before and after the rest of the chain runs.
func Logging(logger *slog.Logger) policy.Policy {
	return policy.NewPolicy("logging", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		if logger == nil {
			return next(ctx, evt)
		}
		l := logger.With(
			slog.String("execution_id", policy.ExecutionID(ctx)),
			slog.String("event_id", evt.ID),
			slog.String("correlation_id", evt.CorrelationID),
		)

		l.Info("event received")
		start := time.Now()
		out, err := next(ctx, evt)
		duration := time.Since(start)

		if err != nil {
			l.Error("event failed",
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
			)
			return out, err
		}
		l.Info("event processed", slog.Duration("duration", duration))
		return out, nil
	})
}
