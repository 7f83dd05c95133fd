//go:build !linux && !darwin

package arena

// NewMmapSource falls back to a HeapSource where anonymous mappings are not available.
func NewMmapSource() BlockSource {
	return NewHeapSource()
}
