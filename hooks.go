package arena

import "unsafe"

// Tracker receives per-allocation events. Implementations must be safe for
// concurrent use; they are called on the allocation hot path.
type Tracker interface {
	TrackAlloc(p unsafe.Pointer, size uintptr)
	TrackFree(p unsafe.Pointer)
}

// Poisoner marks memory ranges as inaccessible (poisoned) or accessible for
// sanitizer tooling. Setting a Poisoner forces allocation headers.
type Poisoner interface {
	Poison(p unsafe.Pointer, n uintptr)
	Unpoison(p unsafe.Pointer, n uintptr)
}

type nopTracker struct{}

func (nopTracker) TrackAlloc(unsafe.Pointer, uintptr) {}
func (nopTracker) TrackFree(unsafe.Pointer)           {}

type nopPoisoner struct{}

func (nopPoisoner) Poison(unsafe.Pointer, uintptr)   {}
func (nopPoisoner) Unpoison(unsafe.Pointer, uintptr) {}
