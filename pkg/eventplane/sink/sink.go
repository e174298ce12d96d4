// Package sink provides a signal sink that buffers emissions until a
// subscriber attaches.
//
// Producers may call Emit, Fail and Complete before anything is listening.
// Those signals are recorded in order and replayed once, in the same order,
// when Attach installs a subscriber. After the replay signals are forwarded
// directly.
//
//	s := sink.New[*event.Event]()
//	s.Emit(evt)           // recorded
//	s.Attach(subscriber)  // replays evt, then forwards live signals
package sink

import "sync"

// Subscriber receives the signals forwarded by a Sink.
type Subscriber[T any] interface {
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Sink records signals until a Subscriber attaches.
// All methods are safe for concurrent use.
type Sink[T any] struct {
	mu       sync.Mutex
	sub      Subscriber[T]
	pending  []func(Subscriber[T])
	draining bool
}

// New creates a sink with no subscriber.
func New[T any]() *Sink[T] {
	return &Sink[T]{}
}

// Attach installs sub and replays every recorded signal to it in order.
// Signals raised while the replay runs are queued behind it.
// Attaching again replaces the subscriber; signals already forwarded are not
// replayed. Attach(nil) detaches, and later signals are recorded again.
func (s *Sink[T]) Attach(sub Subscriber[T]) {
	s.mu.Lock()
	s.sub = sub
	if sub == nil || s.draining || len(s.pending) == 0 {
		// An in-progress replay picks up the new subscriber on its next batch.
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		cur := s.sub
		if cur == nil || len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, signal := range batch {
			signal(cur)
		}
	}
}

// Emit forwards v, or records it when no subscriber is attached.
func (s *Sink[T]) Emit(v T) {
	s.dispatch(func(sub Subscriber[T]) { sub.OnNext(v) })
}

// Fail forwards err, or records it when no subscriber is attached.
func (s *Sink[T]) Fail(err error) {
	s.dispatch(func(sub Subscriber[T]) { sub.OnError(err) })
}

// Complete forwards completion, or records it when no subscriber is attached.
func (s *Sink[T]) Complete() {
	s.dispatch(func(sub Subscriber[T]) { sub.OnComplete() })
}

// Handle returns the attached subscriber, or nil before attachment.
func (s *Sink[T]) Handle() Subscriber[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// Pending returns the number of recorded signals not yet delivered.
func (s *Sink[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Sink[T]) dispatch(signal func(Subscriber[T])) {
	s.mu.Lock()
	if s.sub == nil || s.draining {
		s.pending = append(s.pending, signal)
		s.mu.Unlock()
		return
	}
	sub := s.sub
	s.mu.Unlock()
	signal(sub)
}
