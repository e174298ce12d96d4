package policy

import "context"

type (
	executionIDKey struct{}
	stateKey       struct{}
)

// WithExecutionID returns a context whose chain invocations belong to the
// execution id.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, id)
}

// ExecutionID returns the execution ID carried by ctx, or "".
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}

// StateFrom returns the execution state visible to a policy, or nil outside
// a chain.
func StateFrom(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}
