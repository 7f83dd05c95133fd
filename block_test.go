package arena

import (
	"testing"
	"unsafe"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		input    uintptr
		align    uintptr
		expected uintptr
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{33, 1, 33},
		{4095, 4096, 4096},
		{4097, 4096, 8192},
	}

	for _, tt := range tests {
		if got := alignUp(tt.input, tt.align); got != tt.expected {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.input, tt.align, got, tt.expected)
		}
	}
}

func TestBlockHeaderSize(t *testing.T) {
	if blockHeaderSize%16 != 0 || blockHeaderSize < unsafe.Sizeof(blockHeader{}) {
		t.Errorf("blockHeaderSize = %d", blockHeaderSize)
	}
}

func newTestBlock(t *testing.T, size, align uintptr) *blockHeader {
	t.Helper()
	p, err := NewHeapSource().Malloc(size, align)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	h := (*blockHeader)(p)
	*h = blockHeader{numAllocations: sentinel, next: blockHeaderSize, size: size}
	return h
}

func TestMaskLayoutRecoversBlock(t *testing.T) {
	const bs = MinBlockSize
	l := maskLayout{blockSize: bs}
	h := newTestBlock(t, bs, bs)

	var ptrs []unsafe.Pointer
	for {
		p, ok := l.place(h, 24, 8)
		if !ok {
			break
		}
		ptrs = append(ptrs, p)
	}
	if want := int((bs - blockHeaderSize) / 24); len(ptrs) != want {
		t.Fatalf("placed %d allocations, want %d", len(ptrs), want)
	}
	for i, p := range ptrs {
		if got := l.release(p); got != h {
			t.Errorf("allocation %d: owner = %p, want %p", i, got, h)
		}
		if got, want := l.sizeOf(p), bs-(uintptr(p)-uintptr(unsafe.Pointer(h))); got != want {
			t.Errorf("allocation %d: sizeOf = %d, want %d", i, got, want)
		}
	}
}

func TestMaskLayoutOversizedBlock(t *testing.T) {
	const bs = MinBlockSize
	l := maskLayout{blockSize: bs}
	h := newTestBlock(t, 5*bs, bs)
	p, ok := l.place(h, 4*bs, 1024)
	if !ok {
		t.Fatal("place failed")
	}
	if uintptr(p)-uintptr(unsafe.Pointer(h)) != 1024 {
		t.Errorf("oversized allocation at offset %d, want 1024", uintptr(p)-uintptr(unsafe.Pointer(h)))
	}
	if l.release(p) != h {
		t.Error("owner not recovered for oversized block")
	}
	if got := l.sizeOf(p); got != 5*bs-1024 {
		t.Errorf("sizeOf = %d, want %d", got, 5*bs-1024)
	}
}

func TestHeaderLayoutRecordsExactSize(t *testing.T) {
	l := headerLayout{poisoner: nopPoisoner{}}
	h := newTestBlock(t, 1000, 16)

	p1, ok := l.place(h, 10, 8)
	if !ok {
		t.Fatal("place failed")
	}
	p2, ok := l.place(h, 100, 64)
	if !ok {
		t.Fatal("place failed")
	}
	if uintptr(p2)%64 != 0 {
		t.Errorf("p2 misaligned: %#x", uintptr(p2))
	}
	if l.sizeOf(p1) != 10 || l.sizeOf(p2) != 100 {
		t.Errorf("sizes = %d, %d; want 10, 100", l.sizeOf(p1), l.sizeOf(p2))
	}
	if l.release(p1) != h || l.release(p2) != h {
		t.Error("owner not recovered from allocation header")
	}
	if _, ok := l.place(h, 1000, 8); ok {
		t.Error("place beyond block end succeeded")
	}
}

func TestPlaceOverflow(t *testing.T) {
	h := newTestBlock(t, MinBlockSize, MinBlockSize)
	if _, ok := (maskLayout{blockSize: MinBlockSize}).place(h, ^uintptr(0)-8, 8); ok {
		t.Error("overflowing request placed")
	}
}
