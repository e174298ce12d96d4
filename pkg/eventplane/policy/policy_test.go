package policy_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/observability"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// countingTarget counts invocations and upper-cases string payloads.
type countingTarget struct {
	calls atomic.Int32
	err   error
}

func (c *countingTarget) Process(_ context.Context, evt *event.Event) (*event.Event, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	s, _ := evt.Payload().(string)
	return evt.WithMessage(event.NewMessage(s + "!")), nil
}

func passThrough(name string) policy.Policy {
	return policy.NewPolicy(name, func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		return next(ctx, evt)
	})
}

func TestBuild_PassThroughMatchesTarget(t *testing.T) {
	target := &countingTarget{}
	evt := event.New("hello")

	direct, err := target.Process(context.Background(), evt)
	require.NoError(t, err)

	op := policy.NewFactory().Build(passThrough("noop"), target)
	wrapped, err := op.Process(context.Background(), evt)
	require.NoError(t, err)

	assert.Equal(t, direct.Payload(), wrapped.Payload())
	assert.Equal(t, int32(2), target.calls.Load())
}

func TestBuild_ShortCircuit(t *testing.T) {
	target := &countingTarget{}
	reject := policy.NewPolicy("reject", func(context.Context, *event.Event, policy.Next) (*event.Event, error) {
		return nil, errors.New("rejected")
	})

	op := policy.NewFactory().Build(reject, target)
	_, err := op.Process(context.Background(), event.New("x"))

	assert.EqualError(t, err, "rejected")
	assert.Equal(t, int32(0), target.calls.Load())
}

func TestBuild_ErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("boom")
	target := &countingTarget{err: boom}

	op := policy.Chain(policy.NewFactory(), target, passThrough("a"), passThrough("b"))
	_, err := op.Process(context.Background(), event.New("x"))

	assert.Same(t, boom, err)
}

func TestBuild_PanicsOnNil(t *testing.T) {
	f := policy.NewFactory()
	assert.Panics(t, func() { f.Build(nil, &countingTarget{}) })
	assert.Panics(t, func() { f.Build(passThrough("p"), nil) })
}

func TestChain_Order(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	tracing := func(name string) policy.Policy {
		return policy.NewPolicy(name, func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
			record(name + ":before")
			out, err := next(ctx, evt)
			record(name + ":after")
			return out, err
		})
	}
	target := policy.OperationFunc(func(_ context.Context, evt *event.Event) (*event.Event, error) {
		record("target")
		return evt, nil
	})

	op := policy.Chain(policy.NewFactory(), target, tracing("outer"), tracing("inner"))
	_, err := op.Process(context.Background(), event.New("x"))
	require.NoError(t, err)

	assert.Equal(t, []string{"outer:before", "inner:before", "target", "inner:after", "outer:after"}, order)
}

func TestChain_Empty(t *testing.T) {
	target := &countingTarget{}
	op := policy.Chain(policy.NewFactory(), target)
	assert.Same(t, target, op)
}

func TestExecutionState_SharedAndReleased(t *testing.T) {
	f := policy.NewFactory()
	var outerState, innerState *policy.State
	var outerID, innerID string

	outer := policy.NewPolicy("outer", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		outerState = policy.StateFrom(ctx)
		outerID = policy.ExecutionID(ctx)
		outerState.Set("seen", "outer")
		return next(ctx, evt)
	})
	inner := policy.NewPolicy("inner", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		innerState = policy.StateFrom(ctx)
		innerID = policy.ExecutionID(ctx)
		assert.Equal(t, 1, f.States().Len())
		return next(ctx, evt)
	})

	op := policy.Chain(f, &countingTarget{}, outer, inner)
	_, err := op.Process(context.Background(), event.New("x"))
	require.NoError(t, err)

	assert.NotEmpty(t, outerID, "outermost node assigns an execution ID")
	assert.Equal(t, outerID, innerID)
	assert.Same(t, outerState, innerState)
	v, ok := innerState.Get("seen")
	assert.True(t, ok)
	assert.Equal(t, "outer", v)
	assert.Equal(t, 0, f.States().Len(), "state released after completion")
}

func TestExecutionState_ExplicitID(t *testing.T) {
	f := policy.NewFactory()
	var seen string
	p := policy.NewPolicy("p", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		seen = policy.ExecutionID(ctx)
		_, live := f.States().Get("exec-1")
		assert.True(t, live)
		return next(ctx, evt)
	})

	ctx := policy.WithExecutionID(context.Background(), "exec-1")
	_, err := f.Build(p, &countingTarget{}).Process(ctx, event.New("x"))
	require.NoError(t, err)

	assert.Equal(t, "exec-1", seen)
	_, live := f.States().Get("exec-1")
	assert.False(t, live)
}

func TestExecutionState_ReleasedOnErrorAndPanic(t *testing.T) {
	f := policy.NewFactory()

	failing := f.Build(passThrough("p"), &countingTarget{err: errors.New("x")})
	_, err := failing.Process(context.Background(), event.New("x"))
	require.Error(t, err)
	assert.Equal(t, 0, f.States().Len())

	panicking := f.Build(passThrough("p"), policy.OperationFunc(func(context.Context, *event.Event) (*event.Event, error) {
		panic("kaboom")
	}))
	assert.Panics(t, func() {
		_, _ = panicking.Process(context.Background(), event.New("x"))
	})
	assert.Equal(t, 0, f.States().Len())
}

func TestExecutionState_ConcurrentExecutions(t *testing.T) {
	f := policy.NewFactory()
	p := policy.NewPolicy("p", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		state := policy.StateFrom(ctx)
		state.Set("id", policy.ExecutionID(ctx))
		time.Sleep(time.Millisecond)
		if v, _ := state.Get("id"); v != policy.ExecutionID(ctx) {
			return nil, errors.New("state shared across executions")
		}
		return next(ctx, evt)
	})
	op := f.Build(p, &countingTarget{})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := op.Process(context.Background(), event.New("x")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 0, f.States().Len())
}

func TestNextChaining(t *testing.T) {
	var redirected atomic.Int32
	alt := policy.OperationFunc(func(_ context.Context, evt *event.Event) (*event.Event, error) {
		redirected.Add(1)
		return evt, nil
	})
	target := &countingTarget{}

	f := policy.NewFactory(policy.WithNextChaining(func(policy.Operation) policy.Operation { return alt }))
	_, err := f.Build(passThrough("p"), target).Process(context.Background(), event.New("x"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), redirected.Load())
	assert.Equal(t, int32(0), target.calls.Load())
}

func TestNode_Observability(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := policy.NewFactory(
		policy.WithLogger(logger),
		policy.WithSpanManager(observability.NewSpanManager()),
	)
	ctx := policy.WithExecutionID(context.Background(), "exec-7")

	_, err := f.Build(passThrough("audit"), &countingTarget{}).Process(ctx, event.New("x"))
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"msg":"policy starting"`)
	assert.Contains(t, out, `"msg":"policy completed"`)
	assert.Contains(t, out, `"execution_id":"exec-7"`)

	_, err = f.Build(passThrough("audit"), &countingTarget{err: errors.New("down")}).Process(ctx, event.New("x"))
	require.Error(t, err)
	assert.Contains(t, logs.String(), `"msg":"policy failed"`)

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "eventplane.policy.audit", spans[0].Name)
}

func TestNode_LogsDuration(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := policy.NewFactory(policy.WithLogger(logger))

	slow := policy.NewPolicy("slow", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		time.Sleep(5 * time.Millisecond)
		return next(ctx, evt)
	})
	_, err := f.Build(slow, &countingTarget{}).Process(context.Background(), event.New("x"))
	require.NoError(t, err)

	var completed map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		if record["msg"] == "policy completed" {
			completed = record
		}
	}
	require.NotNil(t, completed)
	assert.Equal(t, "slow", completed["policy"])
	assert.GreaterOrEqual(t, completed["duration_ms"], 5.0)
}

func TestPolicyError(t *testing.T) {
	inner := errors.New("bad")
	err := &policy.PolicyError{Policy: "retry", Err: inner}
	assert.Equal(t, "policy retry: bad", err.Error())
	assert.ErrorIs(t, err, inner)

	pe := policy.PanicError("recovery", "oops")
	assert.Equal(t, "policy recovery: panic: oops", pe.Error())

	pe = policy.PanicError("recovery", inner)
	assert.ErrorIs(t, pe, inner)
}

func TestStateFrom_OutsideChain(t *testing.T) {
	assert.Nil(t, policy.StateFrom(context.Background()))
	assert.Equal(t, "", policy.ExecutionID(context.Background()))
}

func TestState(t *testing.T) {
	f := policy.NewFactory()
	var keys []string
	p := policy.NewPolicy("p", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		s := policy.StateFrom(ctx)
		s.Set("b", 1)
		s.Set("a", 2)
		s.Set("a", 3)
		s.Set("c", 4)
		s.Delete("c")
		keys = s.Keys()
		return next(ctx, evt)
	})
	_, err := f.Build(p, &countingTarget{}).Process(context.Background(), event.New("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}
