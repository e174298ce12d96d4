// Package policy wraps operations in chains of interception policies.
//
// # Overview
//
// An Operation processes an event. A Policy wraps an operation: it receives
// the event and a Next continuation, and decides whether and how to call it.
// Policies can run logic before and after the wrapped call, change the event
// or the result, translate errors, or skip the call entirely.
//
//	factory := policy.NewFactory(policy.WithLogger(logger))
//	op := policy.Chain(factory, target, audit, retry)
//
//	out, err := op.Process(ctx, evt) // audit -> retry -> target
//
// The first policy given to Chain is the outermost.
//
// # Execution State
//
// Every invocation of a chain belongs to an execution, identified by an ID
// on the context. Set one with WithExecutionID, or let the outermost node
// assign a UUID. Nodes of the same execution share one State, which policies
// reach through StateFrom:
//
//	state := policy.StateFrom(ctx)
//	state.Set("attempt", 2)
//
// The node that created the state for an execution removes it when its
// invocation returns, including on error or panic, so the store does not
// grow with completed executions.
//
// # Observability
//
// Each node logs start and completion at debug level, records
// eventplane.policy.* metrics, and wraps the policy in a span named
// eventplane.policy.<name>. All three default to no-ops.
package policy
