package policy

import (
	"context"
	"fmt"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
)

// Operation processes an event.
type Operation interface {
	Process(ctx context.Context, evt *event.Event) (*event.Event, error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, evt *event.Event) (*event.Event, error)

// Process implements Operation.
func (f OperationFunc) Process(ctx context.Context, evt *event.Event) (*event.Event, error) {
	return f(ctx, evt)
}

// Next invokes the rest of the chain.
type Next func(ctx context.Context, evt *event.Event) (*event.Event, error)

// Policy intercepts an operation.
type Policy interface {
	// Name identifies the policy in logs, metrics and spans.
	Name() string

	// Apply handles evt, calling next zero or more times.
	Apply(ctx context.Context, evt *event.Event, next Next) (*event.Event, error)
}

// ApplyFunc is the function form of Policy.Apply.
type ApplyFunc func(ctx context.Context, evt *event.Event, next Next) (*event.Event, error)

type funcPolicy struct {
	name  string
	apply ApplyFunc
}

func (p funcPolicy) Name() string { return p.name }

func (p funcPolicy) Apply(ctx context.Context, evt *event.Event, next Next) (*event.Event, error) {
	return p.apply(ctx, evt, next)
}

// NewPolicy creates a named policy from a function.
func NewPolicy(name string, fn ApplyFunc) Policy {
	return funcPolicy{name: name, apply: fn}
}

// PolicyError reports a failure raised by a policy itself rather than by
// the operation it wraps.
type PolicyError struct {
	Policy string
	Err    error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %s: %v", e.Policy, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}
