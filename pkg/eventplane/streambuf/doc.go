// Package streambuf provides a random-access in-memory buffer over a
// forward-only source stream.
//
// # Overview
//
// A Buffer pulls bytes from an io.Reader on demand and keeps everything it
// has pulled, so that any number of readers can address the stream by
// absolute position:
//
//	buf, err := streambuf.New(src, streambuf.Config{
//	    InitialBufferSize:   16 << 10,
//	    BufferSizeIncrement: 16 << 10,
//	    MaxBufferSize:       1 << 20,
//	}, streambuf.HeapAllocator{})
//	if err != nil {
//	    return err
//	}
//	defer buf.Close()
//
//	data, err := buf.Read(4096, 512)
//
// # Lifecycle
//
// A buffer moves from empty to consuming as reads pull the source forward,
// to exhausted once the source reports end of stream, and finally to
// closed. Close is terminal from any state and releases the backing region
// to the Allocator exactly once. Reads after Close fail with ErrBufferClosed.
//
// # Growth
//
// The backing region starts at InitialBufferSize. When it is full the buffer
// reads into a peek region the size of BufferSizeIncrement and only grows
// once that read returns data. Growth beyond MaxBufferSize, or any growth
// when BufferSizeIncrement is zero, fails with *BufferSizeExceededError.
// That failure is fatal to the buffer: content already buffered stays
// readable, but the stream cannot be advanced further.
//
// # Returned Slices
//
// Read may return a view into the backing region when the region can no
// longer be reallocated (source exhausted, maximum size reached, or growth
// disabled), and a private copy otherwise. Callers must treat the result as
// read-only and must not use it after Close.
//
// # Cursors
//
// Cursor adapts a Buffer to io.Reader, io.ReaderAt and io.Seeker. Buffers
// opened through cursors are reference counted and close themselves when
// the last cursor closes.
//
// # Concurrency
//
// Buffer is safe for concurrent use. Reads of already buffered content run
// in parallel under a shared lock; pulling the source forward is exclusive.
// A Cursor is not safe for concurrent use; open one cursor per goroutine.
package streambuf
