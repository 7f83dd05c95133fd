//go:build linux || darwin

package arena

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

type mmapSource struct {
	pageSize uintptr
}

// NewMmapSource returns a BlockSource backed by anonymous private mappings.
// The memory lives outside the Go heap. Alignments above the page size are
// obtained by over-mapping and unmapping the unaligned head and tail.
func NewMmapSource() BlockSource {
	return &mmapSource{pageSize: uintptr(unix.Getpagesize())}
}

func (m *mmapSource) Malloc(size, align uintptr) (unsafe.Pointer, error) {
	if size > maxSourceRequest || align > maxSourceRequest {
		return nil, errors.Wrapf(ErrOutOfMemory, "mmap: %d bytes aligned to %d", size, align)
	}
	length := alignUp(size, m.pageSize)
	if align <= m.pageSize {
		return m.mmap(length)
	}

	total := length + align
	base, err := m.mmap(total)
	if err != nil {
		return nil, err
	}
	head := alignUp(uintptr(base), align) - uintptr(base)
	p := unsafe.Add(base, head)
	if head > 0 {
		m.munmap(base, head)
	}
	if tail := total - head - length; tail > 0 {
		m.munmap(unsafe.Add(p, length), tail)
	}
	return p, nil
}

func (m *mmapSource) Free(p unsafe.Pointer, size uintptr) {
	m.munmap(p, alignUp(size, m.pageSize))
}

func (m *mmapSource) mmap(length uintptr) (unsafe.Pointer, error) {
	p, err := unix.MmapPtr(-1, 0, nil, length,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "mmap %d bytes", length), ErrOutOfMemory)
	}
	return p, nil
}

func (m *mmapSource) munmap(p unsafe.Pointer, length uintptr) {
	if err := unix.MunmapPtr(p, length); err != nil {
		panic(errors.Wrapf(err, "arena: munmap %p (%d bytes)", p, length))
	}
}
