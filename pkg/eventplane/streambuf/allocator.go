package streambuf

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// Allocator provides backing regions for buffers.
// Allocate returns a slice of exactly size bytes. Release returns a region
// obtained from Allocate; it is called at most once per region.
type Allocator interface {
	Allocate(size int) []byte
	Release(b []byte)
}

// HeapAllocator allocates from the Go heap and lets the garbage collector
// reclaim released regions.
type HeapAllocator struct{}

// Allocate implements Allocator.
func (HeapAllocator) Allocate(size int) []byte {
	return make([]byte, size)
}

// Release implements Allocator.
func (HeapAllocator) Release([]byte) {}

// PoolAllocator recycles regions in power-of-two size classes.
// It is safe for concurrent use.
type PoolAllocator struct {
	pools       sync.Map // size class -> *sync.Pool
	outstanding atomic.Int64
	allocated   atomic.Int64
}

// NewPoolAllocator creates an empty pool allocator.
func NewPoolAllocator() *PoolAllocator {
	return &PoolAllocator{}
}

func sizeClass(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

func (p *PoolAllocator) pool(class int) *sync.Pool {
	if v, ok := p.pools.Load(class); ok {
		return v.(*sync.Pool)
	}
	v, _ := p.pools.LoadOrStore(class, &sync.Pool{
		New: func() any {
			p.allocated.Add(1)
			b := make([]byte, class)
			return &b
		},
	})
	return v.(*sync.Pool)
}

// Allocate implements Allocator.
func (p *PoolAllocator) Allocate(size int) []byte {
	class := sizeClass(size)
	bp := p.pool(class).Get().(*[]byte)
	p.outstanding.Add(1)
	b := (*bp)[:size]
	clear(b)
	return b
}

// Release implements Allocator.
func (p *PoolAllocator) Release(b []byte) {
	if b == nil {
		return
	}
	p.outstanding.Add(-1)
	class := cap(b)
	if class != sizeClass(class) {
		// Not one of ours.
		return
	}
	b = b[:class]
	p.pool(class).Put(&b)
}

// Outstanding returns the number of regions allocated and not yet released.
func (p *PoolAllocator) Outstanding() int64 {
	return p.outstanding.Load()
}

// Allocated returns the number of regions created because no pooled region
// was available.
func (p *PoolAllocator) Allocated() int64 {
	return p.allocated.Load()
}
