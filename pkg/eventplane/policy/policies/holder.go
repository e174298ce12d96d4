package policies

import (
	"context"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/holder"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// EventError carries the current event as it stood when the rest of the
// chain failed, with the failure attached as its exception payload.
// Error and Unwrap are those of the underlying failure.
type EventError struct {
	Event *event.Event
	Err   error
}

func (e *EventError) Error() string {
	return e.Err.Error()
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// Holder enters a fresh current-event holder for the rest of the chain and
// continues with the stored copy of the event. The slot is cleared when the
// chain returns. On failure the returned error is an *EventError holding the
// last current event, including any message rewrites made downstream.
func Holder(opts ...holder.Option) policy.Policy {
	return policy.NewPolicy("holder", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		ctx, h := holder.Enter(ctx, opts...)
		defer h.Exit()

		out, err := next(ctx, h.Set(evt))
		if err == nil {
			return out, nil
		}

		h.SetExceptionPayload(&event.ExceptionPayload{Err: err})
		failed := h.Get()
		if failed == nil {
			return out, err
		}
		return out, &EventError{Event: failed, Err: err}
	})
}
