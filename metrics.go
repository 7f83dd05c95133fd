package arena

import "sync/atomic"

// counters are only touched when blocks are acquired or destroyed, never
// per allocation.
type counters struct {
	blocksAcquired     atomic.Int64
	blocksDestroyed    atomic.Int64
	oversizedAcquired  atomic.Int64
	oversizedDestroyed atomic.Int64
	bytesHeld          atomic.Int64
	sourceFailures     atomic.Int64
}

func (c *counters) acquired(size uintptr, oversized bool) {
	if oversized {
		c.oversizedAcquired.Add(1)
	} else {
		c.blocksAcquired.Add(1)
	}
	c.bytesHeld.Add(int64(size))
}

func (c *counters) destroyed(size uintptr, oversized bool) {
	if oversized {
		c.oversizedDestroyed.Add(1)
	} else {
		c.blocksDestroyed.Add(1)
	}
	c.bytesHeld.Add(-int64(size))
}

// ArenaMetrics contains statistical information about an arena.
type ArenaMetrics struct {
	BlockSize          int   // Pool block size
	BlocksAcquired     int64 // Pool blocks obtained from the source
	BlocksDestroyed    int64 // Pool blocks returned to the source
	LiveBlocks         int64 // Pool blocks not yet returned
	OversizedAcquired  int64 // Dedicated blocks for oversized requests
	OversizedDestroyed int64
	LiveOversized      int64
	BytesHeld          int64 // Bytes currently held from the source, headers included
	SourceFailures     int64 // Block requests the source could not satisfy
}

// Metrics returns a snapshot of arena statistics. Counters are read
// independently, so a snapshot taken during concurrent use may be skewed.
func (a *Arena) Metrics() ArenaMetrics {
	m := ArenaMetrics{
		BlockSize:          int(a.blockSize),
		BlocksAcquired:     a.stats.blocksAcquired.Load(),
		BlocksDestroyed:    a.stats.blocksDestroyed.Load(),
		OversizedAcquired:  a.stats.oversizedAcquired.Load(),
		OversizedDestroyed: a.stats.oversizedDestroyed.Load(),
		BytesHeld:          a.stats.bytesHeld.Load(),
		SourceFailures:     a.stats.sourceFailures.Load(),
	}
	m.LiveBlocks = m.BlocksAcquired - m.BlocksDestroyed
	m.LiveOversized = m.OversizedAcquired - m.OversizedDestroyed
	return m
}

// BlockSize returns the pool block size used by this arena.
func (a *Arena) BlockSize() int {
	return int(a.blockSize)
}

// MaxAlignment returns the largest alignment Malloc accepts.
func (a *Arena) MaxAlignment() uintptr {
	return a.blockSize / 2
}
