package policies

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/observability"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// Tracing annotates the current span with the event's identity and marks
// the call into the rest of the chain.
func Tracing(spans observability.SpanManager) policy.Policy {
	if spans == nil {
		spans = observability.NoopSpanManager{}
	}
	return policy.NewPolicy("tracing", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("event.id", evt.ID),
			attribute.String("event.correlation_id", evt.CorrelationID),
		)
		if evt.Target != nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("event.target", evt.Target.Name()))
		}

		spans.AddSpanEvent(ctx, "next.invoke")
		out, err := next(ctx, evt)
		spans.AddSpanEvent(ctx, "next.return", attribute.Bool("error", err != nil))
		return out, err
	})
}
