package arena

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCachedSourceValidation(t *testing.T) {
	_, err := NewCachedSource(NewHeapSource(), DefaultBlockSize, 0)
	assert.True(t, errors.Is(err, ErrInvalidCacheSize))
	_, err = NewCachedSource(NewHeapSource(), 0, 4)
	assert.True(t, errors.Is(err, ErrInvalidBlockSize))
}

func TestCachedSourceReusesBlocks(t *testing.T) {
	inner := newCountingSource()
	c, err := NewCachedSource(inner, DefaultBlockSize, 2)
	require.NoError(t, err)

	p1, err := c.Malloc(DefaultBlockSize, DefaultBlockSize)
	require.NoError(t, err)
	c.Free(p1, DefaultBlockSize)
	assert.Equal(t, 0, inner.numFrees(), "block parked")

	p2, err := c.Malloc(DefaultBlockSize, DefaultBlockSize)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, inner.numMallocs())

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 0, s.Parked)
}

func TestCachedSourceOverflowAndDrain(t *testing.T) {
	inner := newCountingSource()
	c, err := NewCachedSource(inner, DefaultBlockSize, 2)
	require.NoError(t, err)

	var ptrs []unsafe.Pointer
	for i := 0; i < 3; i++ {
		p, err := c.Malloc(DefaultBlockSize, 16)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		c.Free(p, DefaultBlockSize)
	}
	assert.Equal(t, 1, inner.numFrees(), "third block exceeds capacity")
	assert.Equal(t, 2, c.Stats().Parked)

	assert.Equal(t, 2, c.Drain())
	assert.Equal(t, 3, inner.numFrees())
	assert.Equal(t, 0, inner.inner.Live())
}

func TestCachedSourceBypassesOtherSizes(t *testing.T) {
	inner := newCountingSource()
	c, err := NewCachedSource(inner, DefaultBlockSize, 4)
	require.NoError(t, err)

	p, err := c.Malloc(3*DefaultBlockSize, 16)
	require.NoError(t, err)
	c.Free(p, 3*DefaultBlockSize)
	assert.Equal(t, 1, inner.numFrees())
	assert.Equal(t, CacheStats{Capacity: 4}, c.Stats())
}

func TestCachedSourceSkipsMisalignedBlock(t *testing.T) {
	inner := NewHeapSource()
	c, err := NewCachedSource(inner, DefaultBlockSize, 1)
	require.NoError(t, err)

	// Park a block that is 16-aligned but not block-aligned.
	raw, err := inner.Malloc(DefaultBlockSize+16, 16)
	require.NoError(t, err)
	odd := raw
	if uintptr(odd)%DefaultBlockSize == 0 {
		odd = unsafe.Add(raw, 16)
	}
	c.slots[0].Store((*byte)(odd))

	p, err := c.Malloc(DefaultBlockSize, DefaultBlockSize)
	require.NoError(t, err)
	assert.Zero(t, uintptr(p)%DefaultBlockSize)
	assert.Equal(t, int64(0), c.Stats().Hits)
	assert.Equal(t, odd, unsafe.Pointer(c.slots[0].Load()), "misaligned block parked again")
}

func TestCachedSourceConcurrent(t *testing.T) {
	inner := newCountingSource()
	c, err := NewCachedSource(inner, MinBlockSize, 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p, err := c.Malloc(MinBlockSize, MinBlockSize)
				if err != nil {
					t.Error(err)
					return
				}
				*(*uint64)(p) = uint64(i)
				c.Free(p, MinBlockSize)
			}
		}()
	}
	wg.Wait()
	c.Drain()
	assert.Equal(t, 0, inner.inner.Live())
	s := c.Stats()
	assert.Equal(t, int64(1600), s.Hits+s.Misses)
}
