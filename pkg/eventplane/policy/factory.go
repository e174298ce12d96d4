package policy

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/observability"
)

// NextChaining decides which operation a node's Next reaches. The default
// reaches the node's target unchanged.
type NextChaining func(target Operation) Operation

// Factory builds policy nodes that share one state store.
type Factory struct {
	states   *StateStore
	chaining NextChaining
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithStateStore shares an existing state store.
func WithStateStore(s *StateStore) FactoryOption {
	return func(f *Factory) {
		if s != nil {
			f.states = s
		}
	}
}

// WithNextChaining sets the hook that resolves each node's Next.
func WithNextChaining(c NextChaining) FactoryOption {
	return func(f *Factory) {
		if c != nil {
			f.chaining = c
		}
	}
}

// WithLogger sets the logger used by nodes.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics recorder used by nodes.
func WithMetrics(m observability.MetricsRecorder) FactoryOption {
	return func(f *Factory) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithSpanManager sets the span manager used by nodes.
func WithSpanManager(s observability.SpanManager) FactoryOption {
	return func(f *Factory) {
		if s != nil {
			f.spans = s
		}
	}
}

// NewFactory creates a factory. Without options nodes share a fresh state
// store and do not log, record metrics or trace.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		states:   NewStateStore(),
		chaining: func(target Operation) Operation { return target },
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// States returns the factory's state store.
func (f *Factory) States() *StateStore {
	return f.states
}

// Build wraps target in p. It panics when either is nil.
func (f *Factory) Build(p Policy, target Operation) Operation {
	if p == nil {
		panic("policy: Build called with nil policy")
	}
	if target == nil {
		panic("policy: Build called with nil target")
	}
	return &node{factory: f, policy: p, next: f.chaining(target)}
}

// Chain wraps target in policies, the first policy outermost.
func (f *Factory) Chain(target Operation, policies ...Policy) Operation {
	op := target
	for i := len(policies) - 1; i >= 0; i-- {
		op = f.Build(policies[i], op)
	}
	return op
}

// Chain wraps target in policies using factory, the first policy outermost.
func Chain(factory *Factory, target Operation, policies ...Policy) Operation {
	return factory.Chain(target, policies...)
}

// node is one policy applied to its target.
type node struct {
	factory *Factory
	policy  Policy
	next    Operation
}

// Process implements Operation.
func (n *node) Process(ctx context.Context, evt *event.Event) (out *event.Event, err error) {
	f := n.factory
	name := n.policy.Name()

	id := ExecutionID(ctx)
	if id == "" {
		id = uuid.New().String()
		ctx = WithExecutionID(ctx, id)
	}
	state, created := f.states.acquire(id)
	if created {
		defer f.states.Delete(id)
	}
	ctx = context.WithValue(ctx, stateKey{}, state)

	logger := observability.EnrichLogger(f.logger, id, name)
	ctx, span := f.spans.StartPolicySpan(ctx, name, id)
	done := observability.TimedOperation()
	observability.LogPolicyStart(logger, name)

	defer func() {
		if r := recover(); r != nil {
			f.spans.EndSpanWithError(span, PanicError(name, r))
			panic(r)
		}
		elapsed := done()
		f.metrics.RecordPolicyInvocation(ctx, name, elapsed, err)
		f.spans.EndSpanWithError(span, err)
		if err != nil {
			observability.LogPolicyError(logger, name, err)
			return
		}
		observability.LogPolicyComplete(logger, name, elapsed)
	}()

	return n.policy.Apply(ctx, evt, n.next.Process)
}
