package arena

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type sourceCall struct {
	p     uintptr
	size  uintptr
	align uintptr
}

// countingSource wraps a HeapSource and records every call.
type countingSource struct {
	inner *HeapSource

	mu      sync.Mutex
	mallocs []sourceCall
	frees   []sourceCall
	onFree  func(p, size uintptr)
	fail    bool
}

func newCountingSource() *countingSource {
	return &countingSource{inner: NewHeapSource()}
}

func (c *countingSource) Malloc(size, align uintptr) (unsafe.Pointer, error) {
	c.mu.Lock()
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return nil, ErrOutOfMemory
	}
	p, err := c.inner.Malloc(size, align)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.mallocs = append(c.mallocs, sourceCall{p: uintptr(p), size: size, align: align})
	c.mu.Unlock()
	return p, nil
}

func (c *countingSource) Free(p unsafe.Pointer, size uintptr) {
	c.mu.Lock()
	c.frees = append(c.frees, sourceCall{p: uintptr(p), size: size})
	hook := c.onFree
	c.mu.Unlock()
	if hook != nil {
		hook(uintptr(p), size)
	}
	c.inner.Free(p, size)
}

func (c *countingSource) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *countingSource) numMallocs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mallocs)
}

func (c *countingSource) numFrees() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frees)
}

func (c *countingSource) freeCalls() []sourceCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sourceCall(nil), c.frees...)
}

func (c *countingSource) mallocCalls() []sourceCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sourceCall(nil), c.mallocs...)
}

// recordingPoisoner tracks poisoned bytes individually.
type recordingPoisoner struct {
	mu       sync.Mutex
	poisoned map[uintptr]struct{}
}

func newRecordingPoisoner() *recordingPoisoner {
	return &recordingPoisoner{poisoned: make(map[uintptr]struct{})}
}

func (r *recordingPoisoner) Poison(p unsafe.Pointer, n uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := uintptr(0); i < n; i++ {
		r.poisoned[uintptr(p)+i] = struct{}{}
	}
}

func (r *recordingPoisoner) Unpoison(p unsafe.Pointer, n uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := uintptr(0); i < n; i++ {
		delete(r.poisoned, uintptr(p)+i)
	}
}

// state reports whether all (1) or none (-1) of [p, p+n) is poisoned, or 0 for a mix.
func (r *recordingPoisoner) state(p unsafe.Pointer, n uintptr) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	hit := 0
	for i := uintptr(0); i < n; i++ {
		if _, ok := r.poisoned[uintptr(p)+i]; ok {
			hit++
		}
	}
	switch uintptr(hit) {
	case n:
		return 1
	case 0:
		return -1
	}
	return 0
}

type countingTracker struct {
	mu     sync.Mutex
	allocs int
	frees  int
	bytes  uintptr
}

func (c *countingTracker) TrackAlloc(_ unsafe.Pointer, size uintptr) {
	c.mu.Lock()
	c.allocs++
	c.bytes += size
	c.mu.Unlock()
}

func (c *countingTracker) TrackFree(unsafe.Pointer) {
	c.mu.Lock()
	c.frees++
	c.mu.Unlock()
}

func newTestArena(t testing.TB, opts Options) (*Arena, *countingSource) {
	t.Helper()
	src := newCountingSource()
	opts.Source = src
	a, err := NewArena(opts)
	require.NoError(t, err)
	return a, src
}

func fill(p unsafe.Pointer, n uintptr, b byte) {
	s := unsafe.Slice((*byte)(p), n)
	for i := range s {
		s[i] = b
	}
}

func holds(p unsafe.Pointer, n uintptr, b byte) bool {
	for _, v := range unsafe.Slice((*byte)(p), n) {
		if v != b {
			return false
		}
	}
	return true
}
