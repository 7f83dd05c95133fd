package arena

import (
	"math"
	"unsafe"
)

// sentinel is the initial live count of an open block. The owning Local
// subtracts (sentinel - num) once when it retires the block, so allocation
// never touches the shared counter.
const sentinel = math.MaxUint32

// blockHeader sits at the start of every block. numAllocations is shared and
// only modified with atomic RMW (or plain arithmetic in single-threaded mode);
// num and next belong to the owning Local until retirement.
type blockHeader struct {
	numAllocations uint32
	num            uint32
	next           uintptr // offset of the next free byte
	size           uintptr // bytes obtained from the source
}

const blockHeaderSize = (unsafe.Sizeof(blockHeader{}) + 15) &^ 15

// allocHeader precedes each allocation when headers are enabled.
type allocHeader struct {
	offset uintptr // distance back to the block header
	size   uintptr
}

const (
	allocHeaderSize  = unsafe.Sizeof(allocHeader{})
	allocHeaderAlign = unsafe.Alignof(allocHeader{})
)

func (h *blockHeader) base() unsafe.Pointer {
	return unsafe.Pointer(h)
}

// layout decides where allocations go inside a block and how a pointer is
// mapped back to its block. It is chosen once per Arena.
type layout interface {
	// place bump-allocates size bytes aligned to align from h.
	place(h *blockHeader, size, align uintptr) (unsafe.Pointer, bool)
	// release returns the block owning p, which is being freed.
	release(p unsafe.Pointer) *blockHeader
	// sizeOf returns the usable size of the allocation at p.
	sizeOf(p unsafe.Pointer) uintptr
	// lead is the most space a fresh block can lose in front of an
	// allocation aligned to align: block header, allocation header, padding.
	lead(align uintptr) uintptr
	// minAlign is the smallest alignment the layout hands out.
	minAlign() uintptr
	// blockAlign is the alignment requested from the block source.
	blockAlign() uintptr
}

// maskLayout needs no per-allocation header: blocks are aligned to their pool
// size, so rounding a pointer down to that boundary finds the block header.
type maskLayout struct {
	blockSize uintptr
}

func (l maskLayout) place(h *blockHeader, size, align uintptr) (unsafe.Pointer, bool) {
	off := alignUp(h.next, align)
	end := off + size
	if end > h.size || end < off {
		return nil, false
	}
	h.next = end
	return unsafe.Add(h.base(), off), true
}

// owner recovers the block header from any pointer handed out by place.
// Every allocation starts less than blockSize bytes past its block's start,
// oversized blocks included.
func (l maskLayout) owner(p unsafe.Pointer) *blockHeader {
	return (*blockHeader)(unsafe.Add(p, -int(uintptr(p)&(l.blockSize-1))))
}

func (l maskLayout) release(p unsafe.Pointer) *blockHeader {
	return l.owner(p)
}

// sizeOf over-reports: it is the distance to the end of the block.
func (l maskLayout) sizeOf(p unsafe.Pointer) uintptr {
	h := l.owner(p)
	return h.size - (uintptr(p) - uintptr(h.base()))
}

func (maskLayout) lead(align uintptr) uintptr { return alignUp(blockHeaderSize, align) }
func (maskLayout) minAlign() uintptr          { return 1 }
func (l maskLayout) blockAlign() uintptr      { return l.blockSize }

// headerLayout writes an allocHeader in front of each allocation. Blocks
// only need headerBlockAlign, so alignment is computed on addresses rather
// than offsets. Sizes are exact. Headers stay poisoned except while being
// read or written.
type headerLayout struct {
	poisoner Poisoner
}

func (l headerLayout) place(h *blockHeader, size, align uintptr) (unsafe.Pointer, bool) {
	base := uintptr(h.base())
	off := alignUp(base+h.next+allocHeaderSize, align) - base
	end := off + size
	if end > h.size || end < off {
		return nil, false
	}
	h.next = end

	p := unsafe.Add(h.base(), off)
	hdr := unsafe.Add(p, -int(allocHeaderSize))
	l.poisoner.Unpoison(hdr, allocHeaderSize)
	*(*allocHeader)(hdr) = allocHeader{offset: off, size: size}
	l.poisoner.Poison(hdr, allocHeaderSize)
	l.poisoner.Unpoison(p, size)
	return p, true
}

func (l headerLayout) read(p unsafe.Pointer) (unsafe.Pointer, allocHeader) {
	hdr := unsafe.Add(p, -int(allocHeaderSize))
	l.poisoner.Unpoison(hdr, allocHeaderSize)
	return hdr, *(*allocHeader)(hdr)
}

func (l headerLayout) release(p unsafe.Pointer) *blockHeader {
	hdr, ah := l.read(p)
	l.poisoner.Poison(hdr, allocHeaderSize+ah.size)
	return (*blockHeader)(unsafe.Add(p, -int(ah.offset)))
}

func (l headerLayout) sizeOf(p unsafe.Pointer) uintptr {
	hdr, ah := l.read(p)
	l.poisoner.Poison(hdr, allocHeaderSize)
	return ah.size
}

const headerBlockAlign = 16

func (headerLayout) lead(align uintptr) uintptr {
	return blockHeaderSize + allocHeaderSize + max(align, headerBlockAlign) - headerBlockAlign
}

func (headerLayout) minAlign() uintptr   { return allocHeaderAlign }
func (headerLayout) blockAlign() uintptr { return headerBlockAlign }
