package policies

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	eperrors "github.com/randalmurphal/eventplane/pkg/eventplane/errors"
	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// ErrDeadLetterFull is returned by Enqueue when the queue is at capacity.
var ErrDeadLetterFull = errors.New("dead letter queue is full")

// FailedEvent is an event the chain gave up on.
type FailedEvent struct {
	Event       *event.Event
	ExecutionID string
	Err         error
	Category    eperrors.Category
	FailedAt    time.Time
}

// DeadLetterQueue parks failed events for inspection or replay.
type DeadLetterQueue interface {
	Enqueue(ctx context.Context, failed FailedEvent) error
}

// DeadLetter parks events whose failure is not retryable. Transient
// failures are left to an enclosing Retry. The original error is always
// returned; a failed enqueue is joined to it.
func DeadLetter(queue DeadLetterQueue) policy.Policy {
	return policy.NewPolicy("deadletter", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		out, err := next(ctx, evt)
		if err == nil || eperrors.IsRetryable(err) {
			return out, err
		}

		failed := FailedEvent{
			Event:       evt.NewThreadCopy().(*event.Event),
			ExecutionID: policy.ExecutionID(ctx),
			Err:         err,
			Category:    eperrors.Categorize(err),
			FailedAt:    time.Now(),
		}
		if qerr := queue.Enqueue(ctx, failed); qerr != nil {
			return out, errors.Join(err, qerr)
		}
		return out, err
	})
}

// MemoryDeadLetterQueue is a bounded in-process DeadLetterQueue.
type MemoryDeadLetterQueue struct {
	mu      sync.Mutex
	events  []FailedEvent
	maxSize int
	onPark  func(FailedEvent)
}

// NewMemoryDeadLetterQueue creates a queue holding at most maxSize events.
// A non-positive maxSize defaults to 10000. onPark, when set, is called for
// every parked event.
func NewMemoryDeadLetterQueue(maxSize int, onPark func(FailedEvent)) *MemoryDeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryDeadLetterQueue{maxSize: maxSize, onPark: onPark}
}

// Enqueue implements DeadLetterQueue.
func (q *MemoryDeadLetterQueue) Enqueue(_ context.Context, failed FailedEvent) error {
	q.mu.Lock()
	if len(q.events) >= q.maxSize {
		q.mu.Unlock()
		return ErrDeadLetterFull
	}
	q.events = append(q.events, failed)
	q.mu.Unlock()

	if q.onPark != nil {
		q.onPark(failed)
	}
	return nil
}

// Drain removes and returns up to limit parked events, oldest first.
// A non-positive limit drains everything.
func (q *MemoryDeadLetterQueue) Drain(limit int) []FailedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || limit > len(q.events) {
		limit = len(q.events)
	}
	out := slices.Clone(q.events[:limit])
	q.events = slices.Delete(q.events, 0, limit)
	return out
}

// Len returns the number of parked events.
func (q *MemoryDeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
