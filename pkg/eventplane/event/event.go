package event

import (
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
)

// ErrReadOnly is returned when writing to a frozen message.
var ErrReadOnly = errors.New("message is read-only")

// ThreadSafeAccess is implemented by values that can be handed to another
// goroutine by copy.
type ThreadSafeAccess interface {
	// NewThreadCopy returns a copy safe for use by another goroutine.
	NewThreadCopy() any

	// ResetAccessControl makes the value writable by its current owner.
	ResetAccessControl()
}

// Compile-time interface checks.
var (
	_ ThreadSafeAccess = (*Event)(nil)
	_ ThreadSafeAccess = (*Message)(nil)
)

// ExceptionPayload describes a failure attached to a message.
type ExceptionPayload struct {
	Err  error
	Code int
	Info map[string]any
}

// Copy returns a copy with a distinct Info map.
func (p *ExceptionPayload) Copy() *ExceptionPayload {
	if p == nil {
		return nil
	}
	return &ExceptionPayload{
		Err:  p.Err,
		Code: p.Code,
		Info: maps.Clone(p.Info),
	}
}

// Error returns the wrapped error's message.
func (p *ExceptionPayload) Error() string {
	if p == nil || p.Err == nil {
		return ""
	}
	return p.Err.Error()
}

// Message is the payload part of an event.
type Message struct {
	Payload          any
	Properties       map[string]any
	ExceptionPayload *ExceptionPayload

	frozen bool
}

// NewMessage creates a writable message around payload.
func NewMessage(payload any) *Message {
	return &Message{
		Payload:    payload,
		Properties: make(map[string]any),
	}
}

// Copy returns a deep copy of the message metadata. The payload is shared.
// The copy keeps the frozen state of the original.
func (m *Message) Copy() *Message {
	if m == nil {
		return nil
	}
	props := maps.Clone(m.Properties)
	if props == nil {
		props = make(map[string]any)
	}
	return &Message{
		Payload:          m.Payload,
		Properties:       props,
		ExceptionPayload: m.ExceptionPayload.Copy(),
		frozen:           m.frozen,
	}
}

// NewThreadCopy implements ThreadSafeAccess.
func (m *Message) NewThreadCopy() any {
	return m.Copy()
}

// ResetAccessControl implements ThreadSafeAccess.
func (m *Message) ResetAccessControl() {
	if m != nil {
		m.frozen = false
	}
}

// Freeze marks the message read-only.
func (m *Message) Freeze() {
	m.frozen = true
}

// Frozen reports whether writes are currently refused.
func (m *Message) Frozen() bool {
	return m.frozen
}

// SetProperty sets a property, failing with ErrReadOnly when frozen.
func (m *Message) SetProperty(key string, value any) error {
	if m.frozen {
		return ErrReadOnly
	}
	if m.Properties == nil {
		m.Properties = make(map[string]any)
	}
	m.Properties[key] = value
	return nil
}

// Property returns a property value.
func (m *Message) Property(key string) (any, bool) {
	v, ok := m.Properties[key]
	return v, ok
}

// Session is a conversation-scoped attribute bag.
type Session struct {
	ID         string
	Attributes map[string]any
}

// NewSession creates an empty session with a fresh ID.
func NewSession() *Session {
	return &Session{
		ID:         uuid.New().String(),
		Attributes: make(map[string]any),
	}
}

// Copy returns a session with the same ID and a distinct attribute map.
func (s *Session) Copy() *Session {
	if s == nil {
		return nil
	}
	attrs := maps.Clone(s.Attributes)
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Session{ID: s.ID, Attributes: attrs}
}

// Event is the envelope that flows through a chain.
type Event struct {
	ID            string
	CorrelationID string
	Timestamp     time.Time
	Message       *Message
	Session       *Session
	Target        Endpoint
}

// Option configures event creation.
type Option func(*Event)

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithCorrelationID sets the correlation ID.
func WithCorrelationID(id string) Option {
	return func(e *Event) {
		e.CorrelationID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) {
		e.Timestamp = t
	}
}

// WithSession attaches an existing session.
func WithSession(s *Session) Option {
	return func(e *Event) {
		e.Session = s
	}
}

// WithTarget sets the routing target.
func WithTarget(target Endpoint) Option {
	return func(e *Event) {
		e.Target = target
	}
}

// WithProperty sets a message property.
func WithProperty(key string, value any) Option {
	return func(e *Event) {
		e.Message.Properties[key] = value
	}
}

// New creates an event carrying payload.
func New(payload any, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Message:   NewMessage(payload),
	}
	for _, opt := range opts {
		opt(e)
	}
	// Root events correlate to themselves.
	if e.CorrelationID == "" {
		e.CorrelationID = e.ID
	}
	if e.Session == nil {
		e.Session = NewSession()
	}
	return e
}

// Payload returns the message payload, or nil.
func (e *Event) Payload() any {
	if e == nil || e.Message == nil {
		return nil
	}
	return e.Message.Payload
}

// WithMessage returns a shallow copy of the envelope carrying msg.
func (e *Event) WithMessage(msg *Message) *Event {
	cp := *e
	cp.Message = msg
	return &cp
}

// NewThreadCopy implements ThreadSafeAccess.
func (e *Event) NewThreadCopy() any {
	if e == nil {
		return (*Event)(nil)
	}
	cp := *e
	cp.Message = e.Message.Copy()
	cp.Session = e.Session.Copy()
	return &cp
}

// ResetAccessControl implements ThreadSafeAccess.
func (e *Event) ResetAccessControl() {
	if e != nil {
		e.Message.ResetAccessControl()
	}
}

// SafeCopy returns a thread copy of v when it supports one, otherwise v.
func SafeCopy(v any) any {
	if t, ok := v.(ThreadSafeAccess); ok {
		return t.NewThreadCopy()
	}
	return v
}
