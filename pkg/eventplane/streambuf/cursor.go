package streambuf

import (
	"errors"
	"io"
)

// Compile-time interface checks.
var (
	_ io.ReadSeekCloser = (*Cursor)(nil)
	_ io.ReaderAt       = (*Cursor)(nil)
)

// Cursor is a positioned read handle on a Buffer.
type Cursor struct {
	buf    *Buffer
	pos    int64
	closed bool
}

// OpenCursor returns a cursor at position zero. Once any cursor has been
// opened, the buffer closes itself when the last open cursor closes.
func (b *Buffer) OpenCursor() (*Cursor, error) {
	b.refMu.Lock()
	defer b.refMu.Unlock()

	if b.Closed() {
		return nil, errClosed
	}
	b.refs++
	return &Cursor{buf: b}, nil
}

func (b *Buffer) releaseCursor() error {
	b.refMu.Lock()
	defer b.refMu.Unlock()

	b.refs--
	if b.refs > 0 {
		return nil
	}
	return b.Close()
}

// Read implements io.Reader.
func (c *Cursor) Read(p []byte) (int, error) {
	if c.closed {
		return 0, errCursorClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	data, err := c.buf.Read(c.pos, len(p))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, data)
	c.pos += int64(n)
	return n, nil
}

// ReadAt implements io.ReaderAt. It does not move the cursor.
func (c *Cursor) ReadAt(p []byte, off int64) (int, error) {
	if c.closed {
		return 0, errCursorClosed
	}
	n := 0
	for n < len(p) {
		data, err := c.buf.Read(off+int64(n), len(p)-n)
		if err != nil {
			return n, err
		}
		if len(data) == 0 {
			return n, io.EOF
		}
		n += copy(p[n:], data)
	}
	return n, nil
}

// Seek implements io.Seeker. Seeking relative to the end pulls the whole
// source into the buffer.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	if c.closed {
		return 0, errCursorClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.pos + offset
	case io.SeekEnd:
		size, err := c.buf.Size()
		if err != nil {
			return 0, err
		}
		abs = size + offset
	default:
		return 0, errors.New("streambuf: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("streambuf: negative position")
	}
	c.pos = abs
	return abs, nil
}

// Position returns the cursor's absolute position.
func (c *Cursor) Position() int64 {
	return c.pos
}

// Close releases the cursor. Closing the last cursor closes the buffer.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.buf.releaseCursor()
}
