package arena

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Array is a growable array whose storage lives in arena memory. Capacity
// follows SlackGrow and SlackShrink; every resize goes through the
// allocator's Realloc. T must not contain Go pointers.
//
// The capacity is tracked by the Array itself and never derived from
// AllocationSize, which may over-report.
type Array[T any] struct {
	alloc Allocator
	data  unsafe.Pointer
	n     int
	max   int
}

// NewArray returns an empty Array backed by a.
func NewArray[T any](a Allocator) *Array[T] {
	mustBePointerFree[T]()
	return &Array[T]{alloc: a}
}

func (s *Array[T]) Len() int { return s.n }
func (s *Array[T]) Cap() int { return s.max }

// Slice returns the elements as a slice aliasing arena memory. It is
// invalidated by any call that changes capacity.
func (s *Array[T]) Slice() []T {
	if s.data == nil {
		return nil
	}
	return unsafe.Slice((*T)(s.data), s.max)[:s.n]
}

func (s *Array[T]) At(i int) T           { return s.Slice()[i] }
func (s *Array[T]) Set(i int, v T)       { s.Slice()[i] = v }
func (s *Array[T]) Last() T              { return s.At(s.n - 1) }
func (s *Array[T]) IsEmpty() bool        { return s.n == 0 }
func (s *Array[T]) Allocator() Allocator { return s.alloc }

// Add appends v and returns its index.
func (s *Array[T]) Add(v T) int {
	if s.n == s.max {
		s.resize(SlackGrow(s.n+1, s.max))
	}
	s.n++
	s.Set(s.n-1, v)
	return s.n - 1
}

// Append appends vs.
func (s *Array[T]) Append(vs ...T) {
	if need := s.n + len(vs); need > s.max {
		s.resize(SlackGrow(need, s.max))
	}
	old := s.n
	s.n += len(vs)
	copy(s.Slice()[old:], vs)
}

// Reserve ensures capacity for at least n elements without slack.
func (s *Array[T]) Reserve(n int) {
	if n > s.max {
		s.resize(n)
	}
}

// SetLen changes the length. New elements are zeroed; shrinking may release slack.
func (s *Array[T]) SetLen(n int) {
	if n < 0 {
		assertf("arena: negative array length %d", n)
	}
	switch {
	case n > s.max:
		s.resize(SlackGrow(n, s.max))
		fallthrough
	case n > s.n:
		old := s.n
		s.n = n
		clear(s.Slice()[old:])
	default:
		s.n = n
		s.shrinkSlack()
	}
}

// Pop removes and returns the last element.
func (s *Array[T]) Pop() T {
	v := s.Last()
	s.n--
	s.shrinkSlack()
	return v
}

// RemoveSwap removes element i by moving the last element into its place.
func (s *Array[T]) RemoveSwap(i int) {
	sl := s.Slice()
	sl[i] = sl[s.n-1]
	s.n--
	s.shrinkSlack()
}

// Shrink releases all slack.
func (s *Array[T]) Shrink() {
	if s.max != s.n {
		s.resize(s.n)
	}
}

// Reset drops all elements but keeps the capacity.
func (s *Array[T]) Reset() {
	s.n = 0
}

// Free releases the storage. The Array may be reused afterwards.
func (s *Array[T]) Free() {
	s.resize(0)
	s.n = 0
}

func (s *Array[T]) shrinkSlack() {
	var zero T
	if s.n < s.max {
		if m := SlackShrink(s.n, s.max, unsafe.Sizeof(zero)); m != s.max {
			s.resize(m)
		}
	}
}

func (s *Array[T]) resize(newMax int) {
	if newMax == 0 {
		if s.data != nil {
			s.alloc.Free(s.data)
		}
		s.data, s.max = nil, 0
		return
	}
	var zero T
	size := max(unsafe.Sizeof(zero)*uintptr(newMax), 1)
	p := s.alloc.Realloc(s.data, size, unsafe.Alignof(zero))
	if p == nil {
		panic(errors.Wrapf(ErrOutOfMemory, "array of %d elements", newMax))
	}
	s.data, s.max = p, newMax
}
