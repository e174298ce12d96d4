package event

// Endpoint is a routing target.
type Endpoint interface {
	Name() string
}

// OutboundEndpoint is an endpoint that sends events out of the process.
// Only outbound endpoints replace an event's target.
type OutboundEndpoint interface {
	Endpoint
	Outbound()
}

// Inbound is a named endpoint that receives events.
type Inbound string

// Name implements Endpoint.
func (e Inbound) Name() string { return string(e) }

// Outbound is a named outbound endpoint.
type Outbound string

// Name implements Endpoint.
func (e Outbound) Name() string { return string(e) }

// Outbound implements OutboundEndpoint.
func (Outbound) Outbound() {}

// IsOutbound reports whether target is an outbound endpoint.
func IsOutbound(target Endpoint) bool {
	_, ok := target.(OutboundEndpoint)
	return ok
}
