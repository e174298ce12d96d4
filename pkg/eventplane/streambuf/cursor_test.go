package streambuf_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventplane/pkg/eventplane/streambuf"
)

func TestCursor_ReadAll(t *testing.T) {
	data := source(5000)
	buf := newBuffer(t, bytes.NewReader(data), 64, 64, 0)

	c, err := buf.OpenCursor()
	require.NoError(t, err)
	defer c.Close()

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), c.Position())
}

func TestCursor_IndependentPositions(t *testing.T) {
	data := source(200)
	buf := newBuffer(t, bytes.NewReader(data), 32, 32, 0)

	a, err := buf.OpenCursor()
	require.NoError(t, err)
	b, err := buf.OpenCursor()
	require.NoError(t, err)

	p := make([]byte, 50)
	n, err := a.Read(p)
	require.NoError(t, err)
	assert.Equal(t, data[:n], p[:n])

	n, err = b.Read(p[:10])
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[:10], p[:10])
	assert.Equal(t, int64(10), b.Position())
	assert.Equal(t, int64(50), a.Position())
}

func TestCursor_ReadAt(t *testing.T) {
	data := source(100)
	buf := newBuffer(t, bytes.NewReader(data), 16, 16, 0)

	c, err := buf.OpenCursor()
	require.NoError(t, err)
	defer c.Close()

	p := make([]byte, 30)
	n, err := c.ReadAt(p, 40)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, data[40:70], p)
	assert.Equal(t, int64(0), c.Position(), "ReadAt does not move the cursor")

	n, err = c.ReadAt(p, 90)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[90:], p[:n])
}

func TestCursor_Seek(t *testing.T) {
	data := source(100)
	buf := newBuffer(t, bytes.NewReader(data), 16, 16, 0)

	c, err := buf.OpenCursor()
	require.NoError(t, err)
	defer c.Close()

	pos, err := c.Seek(20, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(20), pos)

	pos, err = c.Seek(5, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(25), pos)

	pos, err = c.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(90), pos)
	assert.True(t, buf.Exhausted())

	rest, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, data[90:], rest)

	_, err = c.Seek(-1, io.SeekStart)
	assert.Error(t, err)
	_, err = c.Seek(0, 42)
	assert.Error(t, err)
}

func TestCursor_SeekEndExceedsMax(t *testing.T) {
	buf := newBuffer(t, bytes.NewReader(source(100)), 16, 16, 32)

	c, err := buf.OpenCursor()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Seek(0, io.SeekEnd)
	assert.ErrorIs(t, err, streambuf.ErrBufferSizeExceeded)
}

func TestCursor_LastCloseClosesBuffer(t *testing.T) {
	alloc := streambuf.NewPoolAllocator()
	buf, err := streambuf.New(bytes.NewReader(source(10)), streambuf.Config{InitialBufferSize: 16}, alloc)
	require.NoError(t, err)

	a, err := buf.OpenCursor()
	require.NoError(t, err)
	b, err := buf.OpenCursor()
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.False(t, buf.Closed())
	require.NoError(t, a.Close(), "close is idempotent")
	assert.False(t, buf.Closed(), "double close does not drop a second reference")

	require.NoError(t, b.Close())
	assert.True(t, buf.Closed())
	assert.Equal(t, int64(0), alloc.Outstanding())

	_, err = buf.OpenCursor()
	assert.ErrorIs(t, err, streambuf.ErrBufferClosed)
}

func TestCursor_ClosedOperations(t *testing.T) {
	buf := newBuffer(t, bytes.NewReader(source(10)), 16, 0, 0)
	c, err := buf.OpenCursor()
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, streambuf.ErrCursorClosed)
	_, err = c.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, streambuf.ErrCursorClosed)
	_, err = c.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, streambuf.ErrCursorClosed)
}

func TestCursor_ReadAfterBufferClose(t *testing.T) {
	buf := newBuffer(t, bytes.NewReader(source(10)), 16, 0, 0)
	c, err := buf.OpenCursor()
	require.NoError(t, err)

	require.NoError(t, buf.Close())
	_, err = c.Read(make([]byte, 4))
	assert.ErrorIs(t, err, streambuf.ErrBufferClosed)
}
