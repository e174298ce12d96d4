package policies

import (
	"context"

	"github.com/randalmurphal/eventplane/pkg/eventplane/errors"
	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// AttemptKey is the execution state key holding the current attempt number.
const AttemptKey = "attempt"

// Retry re-invokes the rest of the chain while it fails with a retryable
// error. The 1-based attempt number is kept in the execution state under
// AttemptKey for inner policies.
func Retry(cfg errors.RetryConfig) policy.Policy {
	return policy.NewPolicy("retry", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		state := policy.StateFrom(ctx)
		result := errors.WithRetryContext(ctx, cfg, func(ctx context.Context, attempt int) (*event.Event, error) {
			if state != nil {
				state.Set(AttemptKey, attempt)
			}
			return next(ctx, evt)
		})
		return result.Value, result.Err
	})
}

// Attempt returns the current attempt number recorded by Retry, or 1.
func Attempt(ctx context.Context) int {
	if state := policy.StateFrom(ctx); state != nil {
		if v, ok := state.Get(AttemptKey); ok {
			if n, ok := v.(int); ok {
				return n
			}
		}
	}
	return 1
}
