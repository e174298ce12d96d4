package policies_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eperrors "github.com/randalmurphal/eventplane/pkg/eventplane/errors"
	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/holder"
	"github.com/randalmurphal/eventplane/pkg/eventplane/journal"
	"github.com/randalmurphal/eventplane/pkg/eventplane/observability"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy/policies"
)

// echo appends "!" to string payloads and counts calls.
type echo struct {
	calls atomic.Int32
	fail  func(call int32) error
}

func (e *echo) Process(_ context.Context, evt *event.Event) (*event.Event, error) {
	n := e.calls.Add(1)
	if e.fail != nil {
		if err := e.fail(n); err != nil {
			return nil, err
		}
	}
	s, _ := evt.Payload().(string)
	return evt.WithMessage(event.NewMessage(s + "!")), nil
}

var fastRetry = eperrors.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
	BackoffFactor:  2,
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	t.Run("logs received and processed", func(t *testing.T) {
		buf.Reset()
		op := policy.Chain(policy.NewFactory(), &echo{}, policies.Logging(logger))
		out, err := op.Process(context.Background(), event.New("hi", event.WithEventID("evt-1")))
		require.NoError(t, err)
		assert.Equal(t, "hi!", out.Payload())

		logs := buf.String()
		assert.Contains(t, logs, `"msg":"event received"`)
		assert.Contains(t, logs, `"msg":"event processed"`)
		assert.Contains(t, logs, `"event_id":"evt-1"`)
	})

	t.Run("logs failures", func(t *testing.T) {
		buf.Reset()
		target := &echo{fail: func(int32) error { return errors.New("downstream broke") }}
		op := policy.Chain(policy.NewFactory(), target, policies.Logging(logger))
		_, err := op.Process(context.Background(), event.New("hi"))
		require.Error(t, err)

		logs := buf.String()
		assert.Contains(t, logs, `"msg":"event failed"`)
		assert.Contains(t, logs, "downstream broke")
	})

	t.Run("nil logger passes through", func(t *testing.T) {
		op := policy.Chain(policy.NewFactory(), &echo{}, policies.Logging(nil))
		out, err := op.Process(context.Background(), event.New("a"))
		require.NoError(t, err)
		assert.Equal(t, "a!", out.Payload())
	})
}

func TestTracing_NoopPassesThrough(t *testing.T) {
	op := policy.Chain(policy.NewFactory(), &echo{}, policies.Tracing(nil))
	out, err := op.Process(context.Background(), event.New("a", event.WithTarget(event.Outbound("orders"))))
	require.NoError(t, err)
	assert.Equal(t, "a!", out.Payload())

	op = policy.Chain(policy.NewFactory(), &echo{}, policies.Tracing(observability.NoopSpanManager{}))
	_, err = op.Process(context.Background(), event.New("b"))
	require.NoError(t, err)
}

func TestRetry(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		target := &echo{fail: func(n int32) error {
			if n < 3 {
				return eperrors.Transient(errors.New("flaky"), "echo")
			}
			return nil
		}}
		op := policy.Chain(policy.NewFactory(), target, policies.Retry(fastRetry))

		out, err := op.Process(context.Background(), event.New("x"))
		require.NoError(t, err)
		assert.Equal(t, "x!", out.Payload())
		assert.Equal(t, int32(3), target.calls.Load())
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		perm := errors.New("bad input")
		target := &echo{fail: func(int32) error { return perm }}
		op := policy.Chain(policy.NewFactory(), target, policies.Retry(fastRetry))

		_, err := op.Process(context.Background(), event.New("x"))
		assert.Same(t, perm, err)
		assert.Equal(t, int32(1), target.calls.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		target := &echo{fail: func(int32) error { return eperrors.Transient(errors.New("down"), "echo") }}
		op := policy.Chain(policy.NewFactory(), target, policies.Retry(fastRetry))

		_, err := op.Process(context.Background(), event.New("x"))
		require.Error(t, err)
		var ce *eperrors.CategorizedError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 3, ce.Retries)
		assert.Equal(t, int32(3), target.calls.Load())
	})

	t.Run("inner policies see the attempt number", func(t *testing.T) {
		var seen []int
		record := policy.NewPolicy("record", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
			seen = append(seen, policies.Attempt(ctx))
			return next(ctx, evt)
		})
		target := &echo{fail: func(n int32) error {
			if n == 1 {
				return eperrors.Transient(errors.New("once"), "echo")
			}
			return nil
		}}
		op := policy.Chain(policy.NewFactory(), target, policies.Retry(fastRetry), record)

		_, err := op.Process(context.Background(), event.New("x"))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, seen)
	})

	t.Run("attempt defaults to one outside retry", func(t *testing.T) {
		assert.Equal(t, 1, policies.Attempt(context.Background()))
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("rejects beyond burst", func(t *testing.T) {
		target := &echo{}
		op := policy.Chain(policy.NewFactory(), target, policies.RateLimit(0.001, 2, policies.Global))

		for range 2 {
			_, err := op.Process(context.Background(), event.New("x"))
			require.NoError(t, err)
		}
		_, err := op.Process(context.Background(), event.New("x"))
		require.ErrorIs(t, err, policies.ErrThrottled)
		assert.True(t, eperrors.IsRetryable(err))
		assert.Equal(t, int32(2), target.calls.Load())
	})

	t.Run("keys have separate buckets", func(t *testing.T) {
		op := policy.Chain(policy.NewFactory(), &echo{}, policies.RateLimit(0.001, 1, policies.ByCorrelationID))

		_, err := op.Process(context.Background(), event.New("a", event.WithCorrelationID("c1")))
		require.NoError(t, err)
		_, err = op.Process(context.Background(), event.New("b", event.WithCorrelationID("c2")))
		require.NoError(t, err)
		_, err = op.Process(context.Background(), event.New("c", event.WithCorrelationID("c1")))
		require.ErrorIs(t, err, policies.ErrThrottled)

		var te *policies.ThrottledError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "c1", te.Key)
	})

	t.Run("keys by property", func(t *testing.T) {
		keyFn := policies.ByProperty("tenant")
		assert.Equal(t, "acme", keyFn(event.New("x", event.WithProperty("tenant", "acme"))))
		assert.Equal(t, "", keyFn(event.New("x")))
	})
}

func TestDistributedRateLimit_MemoryStore(t *testing.T) {
	store := policies.NewMemoryLimiterStore()
	op := policy.Chain(policy.NewFactory(), &echo{},
		policies.DistributedRateLimit(store, policies.Limit{PerSecond: 0.001, Burst: 1}, nil))

	_, err := op.Process(context.Background(), event.New("x"))
	require.NoError(t, err)
	_, err = op.Process(context.Background(), event.New("x"))
	require.ErrorIs(t, err, policies.ErrThrottled)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, policies.Limit, int) (bool, error) {
	return false, errors.New("store offline")
}

func TestDistributedRateLimit_StoreErrorFailsClosed(t *testing.T) {
	target := &echo{}
	op := policy.Chain(policy.NewFactory(), target,
		policies.DistributedRateLimit(failingStore{}, policies.Limit{PerSecond: 1, Burst: 1}, nil))

	_, err := op.Process(context.Background(), event.New("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
	assert.Equal(t, int32(0), target.calls.Load())
}

func TestRecovery(t *testing.T) {
	target := policy.OperationFunc(func(context.Context, *event.Event) (*event.Event, error) {
		panic("kaboom")
	})
	op := policy.Chain(policy.NewFactory(), target, policies.Recovery())

	var out *event.Event
	var err error
	require.NotPanics(t, func() {
		out, err = op.Process(context.Background(), event.New("x"))
	})
	assert.Nil(t, out)

	var pe *policy.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "recovery", pe.Policy)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestJournal(t *testing.T) {
	stores := map[string]func(t *testing.T) journal.Store{
		"memory": func(*testing.T) journal.Store { return journal.NewMemoryStore() },
		"sqlite": func(t *testing.T) journal.Store {
			s, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
			require.NoError(t, err)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()

			target := &echo{fail: func(n int32) error {
				if n == 2 {
					return errors.New("second fails")
				}
				return nil
			}}
			op := policy.Chain(policy.NewFactory(), target, policies.Journal(store, "ingest"))

			ctx := policy.WithExecutionID(context.Background(), "exec-j")
			_, err := op.Process(ctx, event.New("a", event.WithEventID("e1")))
			require.NoError(t, err)
			_, err = op.Process(ctx, event.New("b", event.WithEventID("e2")))
			require.Error(t, err)

			records, err := store.List("exec-j")
			require.NoError(t, err)
			require.Len(t, records, 2)

			assert.Equal(t, "e1", records[0].EventID)
			assert.Equal(t, journal.OutcomeOK, records[0].Outcome)
			assert.Equal(t, "ingest", records[0].Chain)
			assert.Equal(t, "e2", records[1].EventID)
			assert.Equal(t, journal.OutcomeError, records[1].Outcome)
			assert.Equal(t, "second fails", records[1].Error)
		})
	}
}

func TestJournal_AppendFailureJoined(t *testing.T) {
	store := journal.NewMemoryStore()
	require.NoError(t, store.Close())

	op := policy.Chain(policy.NewFactory(), &echo{}, policies.Journal(store, "c"))
	out, err := op.Process(context.Background(), event.New("x"))
	require.ErrorIs(t, err, journal.ErrStoreClosed)
	require.NotNil(t, out)
	assert.Equal(t, "x!", out.Payload())
}

func TestHolder(t *testing.T) {
	t.Run("downstream sees a copy as current", func(t *testing.T) {
		original := event.New("x")
		var current *event.Event
		target := policy.OperationFunc(func(ctx context.Context, evt *event.Event) (*event.Event, error) {
			current = holder.Get(ctx)
			assert.Same(t, current, evt)
			return evt, nil
		})
		op := policy.Chain(policy.NewFactory(), target, policies.Holder())

		_, err := op.Process(context.Background(), original)
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.NotSame(t, original, current)
		assert.Equal(t, original.ID, current.ID)
	})

	t.Run("slot is cleared afterwards", func(t *testing.T) {
		var h *holder.Holder
		target := policy.OperationFunc(func(ctx context.Context, evt *event.Event) (*event.Event, error) {
			h = holder.FromContext(ctx)
			return evt, nil
		})
		op := policy.Chain(policy.NewFactory(), target, policies.Holder())

		_, err := op.Process(context.Background(), event.New("x"))
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Nil(t, h.Get())
	})

	t.Run("failure returns the current event with its exception payload", func(t *testing.T) {
		boom := eperrors.Transient(errors.New("boom"), "target")
		var h *holder.Holder
		target := policy.OperationFunc(func(ctx context.Context, evt *event.Event) (*event.Event, error) {
			h = holder.FromContext(ctx)
			holder.RewriteMessage(ctx, event.NewMessage("rewritten"), true)
			return nil, boom
		})
		outer := policy.NewPolicy("outer", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
			out, err := next(ctx, evt)
			var ee *policies.EventError
			require.ErrorAs(t, err, &ee)
			require.NotNil(t, ee.Event)
			require.NotNil(t, ee.Event.Message.ExceptionPayload)
			assert.Same(t, boom, ee.Event.Message.ExceptionPayload.Err)
			assert.Equal(t, "rewritten", ee.Event.Payload())
			assert.Equal(t, evt.ID, ee.Event.ID)
			return out, err
		})
		op := policy.Chain(policy.NewFactory(), target, outer, policies.Holder())

		_, err := op.Process(context.Background(), event.New("x"))
		require.ErrorIs(t, err, boom)
		assert.EqualError(t, err, boom.Error())
		assert.True(t, eperrors.IsRetryable(err))
		require.NotNil(t, h)
		assert.Nil(t, h.Get())
	})

	t.Run("failure after the slot was cleared passes the error through", func(t *testing.T) {
		boom := errors.New("boom")
		target := policy.OperationFunc(func(ctx context.Context, evt *event.Event) (*event.Event, error) {
			holder.Clear(ctx)
			return nil, boom
		})
		op := policy.Chain(policy.NewFactory(), target, policies.Holder())

		_, err := op.Process(context.Background(), event.New("x"))
		assert.Same(t, boom, err)
	})

	t.Run("does not leak into the caller context", func(t *testing.T) {
		op := policy.Chain(policy.NewFactory(), &echo{}, policies.Holder())
		ctx := context.Background()
		_, err := op.Process(ctx, event.New("x"))
		require.NoError(t, err)
		assert.Nil(t, holder.Get(ctx))
	})
}

func TestChain_Composition(t *testing.T) {
	store := journal.NewMemoryStore()
	target := &echo{fail: func(n int32) error {
		if n == 1 {
			return eperrors.Transient(errors.New("warming up"), "echo")
		}
		return nil
	}}

	op := policy.Chain(policy.NewFactory(), target,
		policies.Recovery(),
		policies.Journal(store, "composed"),
		policies.Retry(fastRetry),
		policies.RateLimit(1000, 10, policies.Global),
		policies.Holder(),
	)

	ctx := policy.WithExecutionID(context.Background(), "exec-c")
	out, err := op.Process(ctx, event.New("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello!", out.Payload())
	assert.Equal(t, int32(2), target.calls.Load())

	records, err := store.List("exec-c")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, journal.OutcomeOK, records[0].Outcome)
}
