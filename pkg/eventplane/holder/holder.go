// Package holder provides the current-event slot for a unit of work.
//
// Go has no thread-local storage, so the slot is an explicit *Holder carried
// on a context.Context. Each goroutine that processes an event enters its own
// holder, reads and rewrites the current event through it, and clears it when
// the work is done:
//
//	ctx, h := holder.Enter(ctx)
//	defer h.Exit()
//
//	h.Set(evt)
//	...
//	cur := holder.Get(ctx)
//
// A Holder must not be shared between goroutines. Confinement replaces
// locking: a goroutine that hands work to another calls Enter again in the
// new goroutine and Set with the event it received, which stores a copy.
package holder

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
)

type holderKey struct{}

// Holder is one goroutine's current-event slot.
type Holder struct {
	current *event.Event
	logger  *slog.Logger
}

// Option configures a Holder.
type Option func(*Holder)

// WithLogger logs slot changes at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Holder) {
		h.logger = logger
	}
}

// New creates an empty holder.
func New(opts ...Option) *Holder {
	h := &Holder{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enter creates a fresh holder and returns a context carrying it.
func Enter(ctx context.Context, opts ...Option) (context.Context, *Holder) {
	h := New(opts...)
	return NewContext(ctx, h), h
}

// NewContext returns a context carrying h.
func NewContext(ctx context.Context, h *Holder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// FromContext returns the holder carried by ctx, or nil.
func FromContext(ctx context.Context) *Holder {
	if ctx == nil {
		return nil
	}
	h, _ := ctx.Value(holderKey{}).(*Holder)
	return h
}

// Set stores a safe copy of evt and returns the stored copy.
// The caller must continue with the returned event. Set(nil) clears.
// On a nil Holder the copy is returned without being stored.
func (h *Holder) Set(evt *event.Event) *event.Event {
	if evt == nil {
		h.Clear()
		return nil
	}
	cp, _ := evt.NewThreadCopy().(*event.Event)
	if h == nil {
		return cp
	}
	h.store(cp)
	return cp
}

// Get returns the current event without copying, or nil.
func (h *Holder) Get() *event.Event {
	if h == nil {
		return nil
	}
	return h.current
}

// Clear empties the slot. Clearing an empty slot is a no-op.
func (h *Holder) Clear() {
	if h == nil || h.current == nil {
		return
	}
	h.current = nil
	if h.logger != nil {
		h.logger.Debug("current event cleared")
	}
}

// Exit clears the slot. It is meant for defer.
func (h *Holder) Exit() {
	h.Clear()
}

// RewriteMessage replaces the current event's message with a copy of msg and
// returns that copy. With safe set the copy is made writable for this
// goroutine. With no current event, msg is returned unchanged.
func (h *Holder) RewriteMessage(msg *event.Message, safe bool) *event.Message {
	if msg == nil || h.Get() == nil {
		return msg
	}
	cp := msg.Copy()
	if safe {
		cp.ResetAccessControl()
	}
	h.store(h.current.WithMessage(cp))
	return cp
}

// SetExceptionPayload attaches p to a safe copy of the current event and
// stores it. It does nothing when the slot is empty.
func (h *Holder) SetExceptionPayload(p *event.ExceptionPayload) {
	if h.Get() == nil {
		return
	}
	cp, _ := h.current.NewThreadCopy().(*event.Event)
	if cp.Message == nil {
		cp.Message = event.NewMessage(nil)
	}
	cp.Message.ExceptionPayload = p
	h.store(cp)
}

// ExceptionPayload returns the current event's exception payload, or nil.
func (h *Holder) ExceptionPayload() *event.ExceptionPayload {
	cur := h.Get()
	if cur == nil || cur.Message == nil {
		return nil
	}
	return cur.Message.ExceptionPayload
}

func (h *Holder) store(evt *event.Event) {
	h.current = evt
	if h.logger != nil {
		h.logger.Debug("current event set",
			slog.String("event_id", evt.ID),
			slog.String("correlation_id", evt.CorrelationID),
		)
	}
}

// SafeMessageCopy returns a copy of msg suitable for another goroutine.
func SafeMessageCopy(msg *event.Message) *event.Message {
	return msg.Copy()
}

// CloneAndUpdateTarget returns a new event with a deep-copied message and a
// fresh session. The target is replaced only when target is outbound.
func CloneAndUpdateTarget(evt *event.Event, target event.Endpoint) *event.Event {
	if evt == nil {
		return nil
	}
	cp := *evt
	cp.Message = evt.Message.Copy()
	cp.Session = event.NewSession()
	if event.IsOutbound(target) {
		cp.Target = target
	}
	return &cp
}

// UpdateTarget returns an event routed to target when target is outbound,
// reusing the message and session. Otherwise evt is returned unchanged.
func UpdateTarget(evt *event.Event, target event.Endpoint) *event.Event {
	if evt == nil || !event.IsOutbound(target) {
		return evt
	}
	cp := *evt
	cp.Target = target
	return &cp
}
