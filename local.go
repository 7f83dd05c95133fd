package arena

import "unsafe"

// Local is a goroutine-owned allocation handle. It holds at most one open
// block and bump-allocates from it without touching shared state. A Local
// must not be used by two goroutines at once. Memory it hands out may be
// freed from any goroutine.
type Local struct {
	st *localState
}

// localState is kept apart from Local so the cleanup registered on Local
// can reach it after Local itself is unreachable.
type localState struct {
	a     *Arena
	block *blockHeader
}

// Malloc returns size bytes aligned to align (0 means DefaultAlignment), or
// nil if the block source fails.
func (l *Local) Malloc(size, align uintptr) unsafe.Pointer {
	return l.st.malloc(size, align)
}

// Free releases p; it is the same as Arena.Free.
func (l *Local) Free(p unsafe.Pointer) {
	l.st.a.Free(p)
}

// Realloc is Arena.Realloc, allocating through l.
func (l *Local) Realloc(p unsafe.Pointer, size, align uintptr) unsafe.Pointer {
	return realloc(l, p, size, align)
}

func (l *Local) AllocationSize(p unsafe.Pointer) uintptr {
	return l.st.a.AllocationSize(p)
}

// AllocBytes returns an n-byte slice in arena memory, or nil if n <= 0.
func (l *Local) AllocBytes(n int) []byte {
	return allocBytes(l, n)
}

// Close retires the open block. The Local stays usable; the next Malloc
// opens a new block.
func (l *Local) Close() {
	l.st.retire()
}

func (s *localState) malloc(size, align uintptr) unsafe.Pointer {
	a := s.a
	align = a.checkAlign(align)
	if size == 0 {
		size = 1
	}
	if h := s.block; h != nil {
		if p, ok := a.layout.place(h, size, align); ok {
			h.num++
			a.tracker.TrackAlloc(p, size)
			return p
		}
	}
	return s.mallocSlow(size, align)
}

func (s *localState) mallocSlow(size, align uintptr) unsafe.Pointer {
	a := s.a
	if a.oversized(size, align) {
		return a.mallocOversized(size, align)
	}

	s.retire()
	h := a.acquireBlock(a.blockSize)
	if h == nil {
		return nil
	}
	s.block = h
	p, ok := a.layout.place(h, size, align)
	if !ok {
		assertf("arena: fresh block cannot hold %d bytes aligned to %d", size, align)
	}
	h.num++
	a.tracker.TrackAlloc(p, size)
	return p
}

// retire closes the open block: no further allocation will come from it and
// the allocations made so far are reconciled against the sentinel. If they
// have all been freed already, the block is destroyed here.
func (s *localState) retire() {
	h := s.block
	if h == nil {
		return
	}
	s.block = nil
	h.next = h.size
	if s.a.release(h, sentinel-h.num) == 0 {
		s.a.destroyBlock(h)
	}
}
