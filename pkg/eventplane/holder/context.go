package holder

import (
	"context"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
)

// The functions below resolve the holder from ctx. Without a holder, Get
// returns nil and mutators return their input unchanged.

// Set stores a safe copy of evt in the context's holder.
func Set(ctx context.Context, evt *event.Event) *event.Event {
	h := FromContext(ctx)
	if h == nil {
		return evt
	}
	return h.Set(evt)
}

// Get returns the context's current event, or nil.
func Get(ctx context.Context) *event.Event {
	return FromContext(ctx).Get()
}

// Clear empties the context's holder.
func Clear(ctx context.Context) {
	FromContext(ctx).Clear()
}

// RewriteMessage rewrites the message of the context's current event.
func RewriteMessage(ctx context.Context, msg *event.Message, safe bool) *event.Message {
	h := FromContext(ctx)
	if h == nil {
		return msg
	}
	return h.RewriteMessage(msg, safe)
}

// SetExceptionPayload attaches p to the context's current event.
func SetExceptionPayload(ctx context.Context, p *event.ExceptionPayload) {
	if h := FromContext(ctx); h != nil {
		h.SetExceptionPayload(p)
	}
}

// ExceptionPayload returns the context's current exception payload, or nil.
func ExceptionPayload(ctx context.Context) *event.ExceptionPayload {
	return FromContext(ctx).ExceptionPayload()
}
