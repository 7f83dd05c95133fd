package arena

import (
	"sync/atomic"
	"unsafe"
)

// Destroyer is implemented by values that need teardown before their memory
// is released by Bulk.BulkDelete.
type Destroyer interface {
	Destroy()
}

type bulkNode struct {
	next    *bulkNode
	p       unsafe.Pointer
	destroy func()
}

// Bulk records every allocation made through it in a lock-free list so that
// BulkDelete can destroy and free all of them at once. It is safe for
// concurrent use.
//
// Nodes live on the Go heap rather than in the arena because they hold
// func values the collector must see.
type Bulk struct {
	alloc Allocator
	head  atomic.Pointer[bulkNode]
}

// NewBulk returns a Bulk allocating from a.
func NewBulk(a Allocator) *Bulk {
	return &Bulk{alloc: a}
}

// Malloc allocates raw memory that BulkDelete will free.
func (b *Bulk) Malloc(size, align uintptr) unsafe.Pointer {
	p := b.alloc.Malloc(size, align)
	if p != nil {
		b.push(&bulkNode{p: p})
	}
	return p
}

// MallocZeroed is Malloc followed by zeroing.
func (b *Bulk) MallocZeroed(size, align uintptr) unsafe.Pointer {
	p := b.Malloc(size, align)
	if p != nil {
		clear(unsafe.Slice((*byte)(p), size))
	}
	return p
}

// BulkNew allocates a zeroed T. If *T implements Destroyer, Destroy is
// called by BulkDelete before the memory is freed.
func BulkNew[T any](b *Bulk) *T {
	p := Alloc[T](b.alloc)
	if p == nil {
		return nil
	}
	n := &bulkNode{p: unsafe.Pointer(p)}
	if d, ok := any(p).(Destroyer); ok {
		n.destroy = d.Destroy
	}
	b.push(n)
	return p
}

// BulkNewSlice allocates n zeroed elements. If *T implements Destroyer,
// BulkDelete destroys every element in index order.
func BulkNewSlice[T any](b *Bulk, n int) []T {
	s := AllocSliceZeroed[T](b.alloc, n)
	if s == nil {
		return nil
	}
	node := &bulkNode{p: unsafe.Pointer(unsafe.SliceData(s))}
	if _, ok := any(&s[0]).(Destroyer); ok {
		node.destroy = func() {
			for i := range s {
				any(&s[i]).(Destroyer).Destroy()
			}
		}
	}
	b.push(node)
	return s
}

func (b *Bulk) push(n *bulkNode) {
	for {
		old := b.head.Load()
		n.next = old
		if b.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// BulkDelete detaches every recorded allocation, runs its destroy hook and
// frees it. Allocations are visited most recent first. Allocations made
// concurrently with BulkDelete are kept for the next call. It returns the
// number of allocations freed.
func (b *Bulk) BulkDelete() int {
	count := 0
	for n := b.head.Swap(nil); n != nil; n = n.next {
		if n.destroy != nil {
			n.destroy()
		}
		b.alloc.Free(n.p)
		count++
	}
	return count
}
