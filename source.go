package arena

import (
	"math"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// BlockSource supplies and reclaims raw memory blocks.
//
// Malloc returns at least size bytes aligned to align (a power of two).
// Free receives the same size that was passed to Malloc.
// Implementations must be safe for concurrent use.
type BlockSource interface {
	Malloc(size, align uintptr) (unsafe.Pointer, error)
	Free(p unsafe.Pointer, size uintptr)
}

// maxSourceRequest bounds a single request so size arithmetic cannot overflow.
const maxSourceRequest = math.MaxInt64 / 4

// HeapSource serves blocks from the Go heap. Blocks are over-allocated by
// align-1 bytes and aligned within the backing slice. The slice is kept in a
// registry until Free so the collector does not reclaim memory that is only
// referenced by arena bookkeeping.
type HeapSource struct {
	mu   sync.Mutex
	live map[uintptr][]byte
}

// NewHeapSource creates an empty HeapSource.
func NewHeapSource() *HeapSource {
	return &HeapSource{live: make(map[uintptr][]byte)}
}

func (h *HeapSource) Malloc(size, align uintptr) (unsafe.Pointer, error) {
	if align == 0 {
		align = 1
	}
	if size > maxSourceRequest || align > maxSourceRequest {
		return nil, errors.Wrapf(ErrOutOfMemory, "heap: %d bytes aligned to %d", size, align)
	}
	buf := make([]byte, size+align-1)
	base := unsafe.Pointer(unsafe.SliceData(buf))
	p := unsafe.Add(base, alignUp(uintptr(base), align)-uintptr(base))

	h.mu.Lock()
	h.live[uintptr(p)] = buf
	h.mu.Unlock()
	return p, nil
}

func (h *HeapSource) Free(p unsafe.Pointer, size uintptr) {
	h.mu.Lock()
	_, ok := h.live[uintptr(p)]
	delete(h.live, uintptr(p))
	h.mu.Unlock()
	if !ok {
		assertf("arena: heap source freeing unknown block %p (%d bytes)", p, size)
	}
}

// Live returns the number of blocks currently handed out.
func (h *HeapSource) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// DefaultCacheBlocks is the page cache capacity used by DefaultSource.
const DefaultCacheBlocks = 64

var (
	defaultSourcesMu sync.Mutex
	defaultSources   = map[int]*CachedSource{}
)

// DefaultSource returns the process-wide source for blocks of blockSize:
// a CachedSource over NewMmapSource, created on first use.
func DefaultSource(blockSize int) *CachedSource {
	defaultSourcesMu.Lock()
	defer defaultSourcesMu.Unlock()
	if s, ok := defaultSources[blockSize]; ok {
		return s
	}
	s, err := NewCachedSource(NewMmapSource(), blockSize, DefaultCacheBlocks)
	if err != nil {
		panic(err)
	}
	defaultSources[blockSize] = s
	return s
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
