package arena

import (
	"reflect"
	"sync"
	"unsafe"
)

// Alloc returns a pointer to a zeroed T allocated from a, or nil if a is out of
// memory. T must not contain Go pointers: arena memory is invisible to the
// garbage collector.
func Alloc[T any](a Allocator) *T {
	p := AllocUninitialized[T](a)
	if p != nil {
		clear(unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p)))
	}
	return p
}

// AllocUninitialized returns a *T without zeroing memory.
// The contents are undefined until written.
func AllocUninitialized[T any](a Allocator) *T {
	mustBePointerFree[T]()
	var zero T
	return (*T)(a.Malloc(unsafe.Sizeof(zero), unsafe.Alignof(zero)))
}

// AllocSlice allocates a slice of n elements of type T.
// The elements are not initialized. Returns nil if n <= 0.
func AllocSlice[T any](a Allocator, n int) []T {
	if n <= 0 {
		return nil
	}
	mustBePointerFree[T]()
	var zero T
	size := unsafe.Sizeof(zero)
	if size != 0 && uintptr(n) > maxSourceRequest/size {
		assertf("arena: slice of %d x %d bytes overflows", n, size)
	}
	p := a.Malloc(size*uintptr(n), unsafe.Alignof(zero))
	if p == nil {
		return nil
	}
	return unsafe.Slice((*T)(p), n)
}

// AllocSliceZeroed allocates a slice of n zeroed elements of type T.
func AllocSliceZeroed[T any](a Allocator, n int) []T {
	s := AllocSlice[T](a, n)
	clear(s)
	return s
}

// Delete frees a value returned by Alloc or AllocUninitialized.
func Delete[T any](a Allocator, p *T) {
	a.Free(unsafe.Pointer(p))
}

// DeleteSlice frees a slice returned by AllocSlice or AllocSliceZeroed.
func DeleteSlice[T any](a Allocator, s []T) {
	if cap(s) > 0 {
		a.Free(unsafe.Pointer(unsafe.SliceData(s)))
	}
}

var pointerFreeTypes sync.Map // reflect.Type -> bool

func mustBePointerFree[T any]() {
	t := reflect.TypeFor[T]()
	ok, cached := pointerFreeTypes.Load(t)
	if !cached {
		ok = pointerFree(t)
		pointerFreeTypes.Store(t, ok)
	}
	if !ok.(bool) {
		assertf("arena: %s contains Go pointers and cannot be placed in arena memory", t)
	}
}

func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
