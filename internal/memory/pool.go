// Package memory provides named, pooled host workspaces for per-call
// temporaries and the layer output cache.
package memory

import "sync"

// BufferSize represents the size categories used for pooling.
type BufferSize int

const (
	// SmallBuffer for slabs < 4KB.
	SmallBuffer BufferSize = iota
	// MediumBuffer for slabs 4KB-1MB.
	MediumBuffer
	// LargeBuffer for slabs > 1MB.
	LargeBuffer
)

const (
	smallThreshold  = 4 * 1024
	mediumThreshold = 1024 * 1024
	maxPoolSize     = 32 // per category
)

// BufferPool recycles byte slabs by size category.
type BufferPool struct {
	mu    sync.Mutex
	pools [3][][]byte

	allocated uint64
	released  uint64
	hits      uint64
	misses    uint64
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

func categorize(size int) BufferSize {
	switch {
	case size < smallThreshold:
		return SmallBuffer
	case size < mediumThreshold:
		return MediumBuffer
	default:
		return LargeBuffer
	}
}

// Acquire returns a zeroed slab of exactly size bytes, reusing a pooled slab
// with enough capacity when one exists.
func (p *BufferPool) Acquire(size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	cat := categorize(size)
	pool := p.pools[cat]
	for i, buf := range pool {
		if cap(buf) >= size {
			p.pools[cat] = append(pool[:i], pool[i+1:]...)
			p.hits++
			buf = buf[:size]
			clear(buf)
			return buf
		}
	}
	p.misses++
	p.allocated++
	return make([]byte, size)
}

// Release returns a slab to the pool. Slabs beyond the pool capacity are
// dropped for the garbage collector.
func (p *BufferPool) Release(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released++
	cat := categorize(cap(buf))
	if len(p.pools[cat]) >= maxPoolSize {
		return
	}
	p.pools[cat] = append(p.pools[cat], buf[:0])
}

// Clear drops all pooled slabs.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.pools {
		p.pools[i] = nil
	}
}

// Stats returns statistics about pool usage.
func (p *BufferPool) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pool := range p.pools {
		pooledCount += len(pool)
	}
	return p.allocated, p.released, p.hits, p.misses, pooledCount
}
