// Package arena implements a concurrent linear (bump) allocator for Go.
//
// # Overview
//
// Memory is handed out from large fixed-size blocks (64 KiB by default)
// obtained from a BlockSource. Each goroutine allocates through its own
// Local, which owns one open block and bump-allocates from it without
// synchronization. Any goroutine may free. A block is returned to its
// source once its Local has moved on and every allocation carved from it has
// been freed. This suits producer/consumer handoff: many goroutines
// allocate, others consume and free.
//
// # Basic Usage
//
//	a, err := arena.NewArena(arena.Options{})
//	if err != nil {
//		return err
//	}
//
//	l := a.NewLocal()
//	defer l.Close() // retire the open block
//
//	p := l.Malloc(128, 16)
//	defer a.Free(p)
//
//	v := arena.Alloc[MyStruct](l)
//	s := arena.AllocSlice[int](l, 100)
//
// Arena.Malloc borrows a pooled Local and is convenient when allocations
// are scattered across goroutines.
//
// # Block Lifetime
//
// A block's live counter starts at math.MaxUint32. Allocating does not touch
// it; the Local counts locally. When the Local retires the block it
// subtracts (MaxUint32 - count) once. Each Free subtracts one. Whichever of
// these operations brings the counter to zero returns the block to the
// source. Requests too large for a block get a dedicated block whose counter
// starts at one.
//
// # Memory Layout
//
// With the default options blocks are aligned to their size, and the block
// of a pointer is found by masking its address. No per-allocation header is
// written, and AllocationSize reports the distance to the end of the block.
// With Options.AccurateSize or a Poisoner, a 16-byte header precedes each
// allocation and records the exact size.
//
// # Important Notes
//
//   - Arena memory is not scanned by the garbage collector. Do not store Go
//     pointers in it; the typed helpers reject such types.
//   - Memory is not zeroed unless using Alloc, AllocSliceZeroed or MallocZeroed.
//   - Double frees and foreign pointers are not detected.
//
// # Containers
//
// Array backs a growable array with arena memory. Bulk records allocations
// so that BulkDelete can destroy and free all of them in one call.
//
// # Metrics and Monitoring
//
//	m := a.Metrics()
//	fmt.Printf("live blocks: %d, bytes held: %d\n", m.LiveBlocks, m.BytesHeld)
package arena
