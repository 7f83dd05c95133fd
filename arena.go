// Package arena implements a concurrent linear (bump) allocator with
// block-based lifetime tracking.
package arena

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// DefaultAlignment is used when Malloc is called with alignment 0.
const DefaultAlignment = unsafe.Sizeof(uintptr(0))

// Allocator is the malloc/free/realloc surface shared by Arena and Local.
type Allocator interface {
	Malloc(size, align uintptr) unsafe.Pointer
	Free(p unsafe.Pointer)
	Realloc(p unsafe.Pointer, size, align uintptr) unsafe.Pointer
	AllocationSize(p unsafe.Pointer) uintptr
}

var (
	_ Allocator = (*Arena)(nil)
	_ Allocator = (*Local)(nil)
)

// Arena hands out memory from fixed-size blocks. Allocation happens through
// a goroutine-local Local that owns one open block; any goroutine may Free.
// A block goes back to its source once it has been retired by its Local and
// every allocation carved from it has been freed.
type Arena struct {
	blockSize uintptr
	source    BlockSource
	layout    layout
	poisoner  Poisoner
	tracker   Tracker
	logger    *slog.Logger

	plain             bool
	disallowOversized bool

	single *Local
	pool   sync.Pool
	stats  counters
}

// NewArena creates an Arena. The zero Options select a 64 KiB block size, the
// process-wide DefaultSource and header-free allocations.
func NewArena(opts Options) (*Arena, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	a := &Arena{
		blockSize:         uintptr(opts.BlockSize),
		source:            opts.Source,
		poisoner:          opts.Poisoner,
		tracker:           opts.Tracker,
		logger:            opts.Logger,
		plain:             opts.SingleThreaded,
		disallowOversized: opts.DisallowOversized,
	}
	if opts.fastPath() {
		a.layout = maskLayout{blockSize: a.blockSize}
		a.poisoner = nopPoisoner{}
	} else {
		if a.poisoner == nil {
			a.poisoner = nopPoisoner{}
		}
		a.layout = headerLayout{poisoner: a.poisoner}
	}
	if opts.SingleThreaded {
		// No cleanup: the arena references this Local, so it could never run.
		a.single = &Local{st: &localState{a: a}}
	} else {
		a.pool.New = func() any { return a.NewLocal() }
	}
	return a, nil
}

// NewLocal returns an allocation handle owned by the calling goroutine.
// If the handle becomes unreachable without Close, its open block is
// retired by a runtime cleanup.
func (a *Arena) NewLocal() *Local {
	st := &localState{a: a}
	l := &Local{st: st}
	runtime.AddCleanup(l, (*localState).retire, st)
	return l
}

// Malloc returns size bytes aligned to align (0 means DefaultAlignment),
// allocated through a pooled Local. It returns nil if the block source
// fails. Alignments that are not a power of two or exceed MaxAlignment panic.
func (a *Arena) Malloc(size, align uintptr) unsafe.Pointer {
	if a.single != nil {
		return a.single.st.malloc(size, align)
	}
	l := a.pool.Get().(*Local)
	p := l.st.malloc(size, align)
	a.pool.Put(l)
	return p
}

// Free releases p. Freeing nil is a no-op. p must come from this arena.
func (a *Arena) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.tracker.TrackFree(p)
	h := a.layout.release(p)
	if a.release(h, 1) == 0 {
		a.destroyBlock(h)
	}
}

// Realloc moves the allocation at p into a fresh allocation of size bytes,
// copying min(size, AllocationSize(p)) bytes. It never resizes in place.
// A nil p behaves like Malloc and a zero size frees p and returns nil.
// On failure nil is returned and p stays valid.
func (a *Arena) Realloc(p unsafe.Pointer, size, align uintptr) unsafe.Pointer {
	return realloc(a, p, size, align)
}

// AllocationSize returns the usable size of the allocation at p. Without
// allocation headers this is the distance to the end of the owning block,
// an upper bound of the requested size.
func (a *Arena) AllocationSize(p unsafe.Pointer) uintptr {
	if p == nil {
		return 0
	}
	return a.layout.sizeOf(p)
}

// AllocBytes returns an n-byte slice in arena memory, or nil if n <= 0.
func (a *Arena) AllocBytes(n int) []byte {
	return allocBytes(a, n)
}

// FreeBytes frees a slice returned by AllocBytes.
func (a *Arena) FreeBytes(b []byte) {
	if cap(b) > 0 {
		a.Free(unsafe.Pointer(unsafe.SliceData(b)))
	}
}

// Close retires the shared Local of a SingleThreaded arena. Locals borrowed by
// Malloc in concurrent mode are pooled and retire their blocks when the pool
// drops them; use NewLocal and Local.Close for deterministic retirement.
func (a *Arena) Close() {
	if a.single != nil {
		a.single.Close()
	}
}

func (a *Arena) checkAlign(align uintptr) uintptr {
	if align == 0 {
		align = DefaultAlignment
	}
	if align&(align-1) != 0 || align > a.MaxAlignment() {
		assertf("arena: invalid alignment %d (max %d)", align, a.MaxAlignment())
	}
	return max(align, a.layout.minAlign())
}

// oversized reports whether a request cannot fit a fresh pool block.
func (a *Arena) oversized(size, align uintptr) bool {
	return size > a.blockSize || a.layout.lead(align)+size > a.blockSize
}

// release subtracts n from the live count of h and returns the new count.
func (a *Arena) release(h *blockHeader, n uint32) uint32 {
	if a.plain {
		h.numAllocations -= n
		return h.numAllocations
	}
	return atomic.AddUint32(&h.numAllocations, ^(n - 1))
}

// acquireBlock obtains and initializes a block of size bytes. It returns nil
// when the source fails.
func (a *Arena) acquireBlock(size uintptr) *blockHeader {
	oversized := size != a.blockSize
	align := a.layout.blockAlign()
	p, err := a.source.Malloc(size, align)
	if err == nil && uintptr(p)&(align-1) != 0 {
		a.source.Free(p, size)
		err = ErrMisalignedBlock
	}
	if err != nil {
		a.stats.sourceFailures.Add(1)
		a.logger.Error("arena: block source failed", "size", size, "align", align, "err", err)
		return nil
	}

	h := (*blockHeader)(p)
	*h = blockHeader{numAllocations: sentinel, next: blockHeaderSize, size: size}
	a.poisoner.Poison(unsafe.Add(p, blockHeaderSize), size-blockHeaderSize)
	a.stats.acquired(size, oversized)
	a.logger.Debug("arena: block acquired", "block", p, "size", size, "oversized", oversized)
	return h
}

func (a *Arena) destroyBlock(h *blockHeader) {
	size := h.size
	p := h.base()
	a.poisoner.Unpoison(p, size)
	a.stats.destroyed(size, size != a.blockSize)
	a.logger.Debug("arena: block destroyed", "block", p, "size", size)
	a.source.Free(p, size)
}

// mallocOversized serves a request from a dedicated block whose live count
// starts at exactly one.
func (a *Arena) mallocOversized(size, align uintptr) unsafe.Pointer {
	if a.disallowOversized {
		assertf("arena: %d-byte request aligned to %d exceeds block size %d", size, align, a.blockSize)
	}
	total := a.layout.lead(align) + size
	if total < size || total > maxSourceRequest {
		a.stats.sourceFailures.Add(1)
		a.logger.Error("arena: oversized request too large", "size", size, "align", align)
		return nil
	}
	h := a.acquireBlock(total)
	if h == nil {
		return nil
	}
	p, ok := a.layout.place(h, size, align)
	if !ok {
		assertf("arena: oversized block of %d bytes cannot hold %d bytes", total, size)
	}
	h.next = h.size
	h.numAllocations = 1
	a.tracker.TrackAlloc(p, size)
	return p
}

func realloc(a Allocator, p unsafe.Pointer, size, align uintptr) unsafe.Pointer {
	if p == nil {
		return a.Malloc(size, align)
	}
	if size == 0 {
		a.Free(p)
		return nil
	}
	np := a.Malloc(size, align)
	if np == nil {
		return nil
	}
	n := min(size, a.AllocationSize(p))
	copy(unsafe.Slice((*byte)(np), n), unsafe.Slice((*byte)(p), n))
	a.Free(p)
	return np
}

func allocBytes(a Allocator, n int) []byte {
	if n <= 0 {
		return nil
	}
	p := a.Malloc(uintptr(n), 0)
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}
