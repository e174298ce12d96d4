package policies

import (
	"context"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// Recovery converts a panic in the rest of the chain into a
// *policy.PolicyError.
func Recovery() policy.Policy {
	return policy.NewPolicy("recovery", func(ctx context.Context, evt *event.Event, next policy.Next) (out *event.Event, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, policy.PanicError("recovery", r)
			}
		}()
		return next(ctx, evt)
	})
}
