package sink

// SubscriberFuncs adapts plain functions to Subscriber. Nil fields are
// skipped.
type SubscriberFuncs[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

// OnNext implements Subscriber.
func (f SubscriberFuncs[T]) OnNext(v T) {
	if f.Next != nil {
		f.Next(v)
	}
}

// OnError implements Subscriber.
func (f SubscriberFuncs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// OnComplete implements Subscriber.
func (f SubscriberFuncs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// SignalKind identifies the type of a Signal.
type SignalKind string

const (
	KindNext     SignalKind = "next"
	KindError    SignalKind = "error"
	KindComplete SignalKind = "complete"
)

// Signal is one delivered signal.
type Signal[T any] struct {
	Kind  SignalKind
	Value T
	Err   error
}

// ChanSubscriber delivers signals to a channel.
// Sends block when the channel is full.
type ChanSubscriber[T any] struct {
	C chan Signal[T]
}

// NewChanSubscriber creates a ChanSubscriber with the given channel buffer.
func NewChanSubscriber[T any](buffer int) *ChanSubscriber[T] {
	return &ChanSubscriber[T]{C: make(chan Signal[T], buffer)}
}

// OnNext implements Subscriber.
func (c *ChanSubscriber[T]) OnNext(v T) {
	c.C <- Signal[T]{Kind: KindNext, Value: v}
}

// OnError implements Subscriber.
func (c *ChanSubscriber[T]) OnError(err error) {
	c.C <- Signal[T]{Kind: KindError, Err: err}
}

// OnComplete implements Subscriber.
func (c *ChanSubscriber[T]) OnComplete() {
	c.C <- Signal[T]{Kind: KindComplete}
}
