package streambuf

import (
	"errors"
	"fmt"

	eperrors "github.com/randalmurphal/eventplane/pkg/eventplane/errors"
)

// Sentinel errors for stream buffers.
var (
	// ErrBufferSizeExceeded matches every *BufferSizeExceededError.
	ErrBufferSizeExceeded = errors.New("stream buffer size exceeded")

	// ErrBufferClosed is returned by reads on a closed buffer.
	ErrBufferClosed = errors.New("stream buffer is closed")

	// ErrCursorClosed is returned by operations on a closed cursor.
	ErrCursorClosed = errors.New("cursor is closed")

	// ErrInvalidRange is returned for negative positions or lengths.
	ErrInvalidRange = errors.New("invalid read range")
)

// BufferSizeExceededError reports that the buffer would have to grow past
// its configured maximum, or grow at all with growth disabled.
type BufferSizeExceededError struct {
	MaxBufferSize int
}

func (e *BufferSizeExceededError) Error() string {
	return fmt.Sprintf("stream buffer size exceeded: max is %d bytes", e.MaxBufferSize)
}

// Is matches ErrBufferSizeExceeded.
func (e *BufferSizeExceededError) Is(target error) bool {
	return target == ErrBufferSizeExceeded
}

// Category implements errors.Categorized. Capacity exhaustion is fatal to
// the buffer.
func (e *BufferSizeExceededError) Category() eperrors.Category {
	return eperrors.CategoryFatal
}

// SourceError wraps a failure of the underlying source stream.
type SourceError struct {
	// Tip is the number of bytes consumed before the failure.
	Tip int64
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("could not read stream at byte %d: %v", e.Tip, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Category implements errors.Categorized.
func (e *SourceError) Category() eperrors.Category {
	return eperrors.CategoryTransient
}

// misuseError marks programming errors such as reading a closed buffer.
type misuseError struct {
	err error
}

func (e misuseError) Error() string               { return e.err.Error() }
func (e misuseError) Unwrap() error               { return e.err }
func (e misuseError) Category() eperrors.Category { return eperrors.CategoryMisuse }

var (
	errClosed       error = misuseError{ErrBufferClosed}
	errCursorClosed error = misuseError{ErrCursorClosed}
)
