package arena

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// CachedSource keeps up to a fixed number of freed blocks of exactly
// blockSize bytes and hands them out again before asking the inner source.
// Slots are claimed and filled with compare-and-swap; no locks are taken.
// Requests of any other size go straight to the inner source.
type CachedSource struct {
	inner     BlockSource
	blockSize uintptr
	slots     []atomic.Pointer[byte]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedSource wraps inner with a cache of capacity blocks of blockSize bytes.
func NewCachedSource(inner BlockSource, blockSize, capacity int) (*CachedSource, error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrInvalidCacheSize, "got %d", capacity)
	}
	if blockSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidBlockSize, "got %d", blockSize)
	}
	return &CachedSource{
		inner:     inner,
		blockSize: uintptr(blockSize),
		slots:     make([]atomic.Pointer[byte], capacity),
	}, nil
}

func (c *CachedSource) Malloc(size, align uintptr) (unsafe.Pointer, error) {
	if size != c.blockSize {
		return c.inner.Malloc(size, align)
	}
	for i := range c.slots {
		p := c.slots[i].Load()
		if p == nil || !c.slots[i].CompareAndSwap(p, nil) {
			continue
		}
		if align > 1 && uintptr(unsafe.Pointer(p))&(align-1) != 0 {
			// Parked by a user with weaker alignment.
			c.park(unsafe.Pointer(p))
			break
		}
		c.hits.Add(1)
		return unsafe.Pointer(p), nil
	}
	c.misses.Add(1)
	return c.inner.Malloc(size, align)
}

func (c *CachedSource) Free(p unsafe.Pointer, size uintptr) {
	if size == c.blockSize {
		c.park(p)
		return
	}
	c.inner.Free(p, size)
}

// park stores p in a free slot, or releases it to the inner source when the cache is full.
func (c *CachedSource) park(p unsafe.Pointer) {
	for i := range c.slots {
		if c.slots[i].Load() == nil && c.slots[i].CompareAndSwap(nil, (*byte)(p)) {
			return
		}
	}
	c.inner.Free(p, c.blockSize)
}

// Drain returns every parked block to the inner source.
func (c *CachedSource) Drain() int {
	n := 0
	for i := range c.slots {
		if p := c.slots[i].Swap(nil); p != nil {
			c.inner.Free(unsafe.Pointer(p), c.blockSize)
			n++
		}
	}
	return n
}

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Hits     int64 // block requests served from the cache
	Misses   int64 // block requests forwarded to the inner source
	Parked   int   // blocks currently held
	Capacity int
}

// Stats returns a snapshot of cache activity.
func (c *CachedSource) Stats() CacheStats {
	parked := 0
	for i := range c.slots {
		if c.slots[i].Load() != nil {
			parked++
		}
	}
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Parked:   parked,
		Capacity: len(c.slots),
	}
}
