// Package event defines the in-flight data model of eventplane.
//
// # Overview
//
// An Event is the envelope that travels through a processing chain:
//
//   - Identity: ID, CorrelationID, Timestamp
//   - Message: payload, properties, optional exception payload
//   - Session: attribute bag scoped to a conversation
//   - Target: the endpoint the event is routed to
//
// # Safe Copies
//
// Events cross goroutine boundaries by copy, never by sharing. Types that
// support this implement ThreadSafeAccess:
//
//	cp := evt.NewThreadCopy().(*event.Event)
//
// A copy has distinct properties, session attributes and exception payload.
// The payload value itself is shared, so a payload backed by a stream buffer
// keeps reading from the same bytes.
//
// # Access Control
//
// A Message can be frozen once it has been handed off. Writes to a frozen
// message fail with ErrReadOnly until ResetAccessControl is called on a copy
// owned by the new goroutine.
package event
