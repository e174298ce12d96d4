package streambuf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/randalmurphal/eventplane/pkg/eventplane/observability"
)

const (
	// streamFinishedPeek sizes the peek read used when growth is disabled.
	// A positive read into it means the buffer would have to grow.
	streamFinishedPeek = 10

	// maxConsecutiveEmptyReads bounds (0, nil) reads from a misbehaving source.
	maxConsecutiveEmptyReads = 100
)

// Buffer is a growable in-memory buffer over a forward-only source.
type Buffer struct {
	mu        sync.RWMutex
	src       io.Reader
	alloc     Allocator
	cfg       Config
	region    []byte // len(region) is the capacity; content is region[:tip]
	tip       int
	exhausted bool
	closed    bool
	failure   error // sticky capacity failure
	empty     int   // consecutive (0, nil) source reads

	refMu sync.Mutex
	refs  int

	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithLogger sets the logger for growth and source events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Buffer) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(b *Buffer) {
		if m != nil {
			b.metrics = m
		}
	}
}

// New creates a buffer over src. The initial region is allocated
// immediately. A nil alloc uses HeapAllocator.
func New(src io.Reader, cfg Config, alloc Allocator, opts ...Option) (*Buffer, error) {
	if src == nil {
		return nil, errors.New("stream buffer source is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if alloc == nil {
		alloc = HeapAllocator{}
	}

	b := &Buffer{
		src:     src,
		alloc:   alloc,
		cfg:     cfg,
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.region = alloc.Allocate(cfg.InitialBufferSize)
	return b, nil
}

// Read returns length bytes starting at position, blocking until the source
// has been pulled that far. The result is shorter than length only when the
// source is exhausted first; past its end Read returns an empty slice and a
// nil error. Ranges that are already buffered are served under a shared lock.
//
// The result must be treated as read-only and is valid until Close.
func (b *Buffer) Read(position int64, length int) ([]byte, error) {
	if position < 0 || length < 0 {
		return nil, misuseError{fmt.Errorf("%w: position %d, length %d", ErrInvalidRange, position, length)}
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, errClosed
	}
	if length == 0 {
		b.mu.RUnlock()
		return []byte{}, nil
	}
	if b.exhausted || int64(b.tip) >= position+int64(length) {
		data := b.fromCurrent(position, length)
		b.mu.RUnlock()
		return data, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errClosed
	}
	required := position + int64(length)
	for !b.exhausted && int64(b.tip) < required {
		if b.failure != nil {
			return nil, b.failure
		}
		if err := b.consumeForward(); err != nil {
			return nil, err
		}
	}

	return b.fromCurrent(position, length), nil
}

// fromCurrent serves a read from buffered content, trimmed at the tip.
// Callers hold mu.
func (b *Buffer) fromCurrent(position int64, length int) []byte {
	tip := int64(b.tip)
	if position >= tip {
		return []byte{}
	}
	n := int(min(int64(length), tip-position))
	return b.slice(int(position), n)
}

func (b *Buffer) slice(offset, n int) []byte {
	if b.canSoftCopy() {
		return b.region[offset : offset+n : offset+n]
	}
	out := make([]byte, n)
	copy(out, b.region[offset:offset+n])
	return out
}

// canSoftCopy reports whether the region can no longer be reallocated, so
// views into it stay valid until Close.
func (b *Buffer) canSoftCopy() bool {
	return b.exhausted ||
		!b.cfg.growable() ||
		(b.cfg.MaxBufferSize > 0 && len(b.region) >= b.cfg.MaxBufferSize)
}

// consumeForward performs one source read. Callers hold mu exclusively.
func (b *Buffer) consumeForward() error {
	if b.tip < len(b.region) {
		n, err := b.src.Read(b.region[b.tip:])
		b.advance(n)
		return b.afterRead(n, err)
	}

	peekSize := b.cfg.BufferSizeIncrement
	if peekSize <= 0 {
		peekSize = streamFinishedPeek
	}
	peek := b.alloc.Allocate(peekSize)
	defer b.alloc.Release(peek)

	n, err := b.src.Read(peek)
	if n > 0 {
		if xerr := b.expand(); xerr != nil {
			return xerr
		}
		copy(b.region[b.tip:], peek[:n])
		b.advance(n)
	}
	return b.afterRead(n, err)
}

func (b *Buffer) advance(n int) {
	if n <= 0 {
		return
	}
	b.tip += n
	b.empty = 0
	b.metrics.RecordBytesConsumed(context.Background(), n)
}

func (b *Buffer) afterRead(n int, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		b.exhausted = true
		observability.LogBufferExhausted(b.logger, int64(b.tip))
		return nil
	case err != nil:
		observability.LogSourceError(b.logger, int64(b.tip), err)
		return &SourceError{Tip: int64(b.tip), Err: err}
	case n == 0:
		b.empty++
		if b.empty >= maxConsecutiveEmptyReads {
			b.empty = 0
			return &SourceError{Tip: int64(b.tip), Err: io.ErrNoProgress}
		}
	}
	return nil
}

// expand grows the region by one increment or records a sticky failure.
func (b *Buffer) expand() error {
	oldSize := len(b.region)
	newSize := oldSize + b.cfg.BufferSizeIncrement
	if !b.canBeExpandedTo(newSize) {
		observability.LogBufferExceeded(b.logger, b.cfg.MaxBufferSize, newSize)
		b.metrics.RecordBufferExceeded(context.Background(), b.cfg.MaxBufferSize)
		b.failure = &BufferSizeExceededError{MaxBufferSize: b.cfg.MaxBufferSize}
		return b.failure
	}

	grown := b.alloc.Allocate(newSize)
	copy(grown, b.region[:b.tip])
	b.alloc.Release(b.region)
	b.region = grown

	observability.LogBufferGrow(b.logger, oldSize, newSize)
	b.metrics.RecordBufferGrowth(context.Background(), newSize)
	return nil
}

func (b *Buffer) canBeExpandedTo(newSize int) bool {
	if !b.cfg.growable() {
		return false
	}
	return b.cfg.MaxBufferSize == 0 || newSize <= b.cfg.MaxBufferSize
}

// Size pulls the source to its end and returns its total length.
func (b *Buffer) Size() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errClosed
	}
	for !b.exhausted {
		if b.failure != nil {
			return 0, b.failure
		}
		if err := b.consumeForward(); err != nil {
			return 0, err
		}
	}
	return int64(b.tip), nil
}

// Close releases the backing region. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.alloc.Release(b.region)
	b.region = nil
	return nil
}

// Tip returns the number of bytes consumed from the source.
func (b *Buffer) Tip() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(b.tip)
}

// Exhausted reports whether the source has reached end of stream.
func (b *Buffer) Exhausted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exhausted
}

// Capacity returns the current region size, or zero after Close.
func (b *Buffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.region)
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
