package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"

	arena "github.com/pavanmanishd/concurrentarena"
)

var errLeakedBlocks = errors.New("blocks still live after all allocations were freed")

type stressConfig struct {
	Producers    int    `json:"producers"`
	Consumers    int    `json:"consumers"`
	Allocs       int    `json:"allocs_per_producer"`
	MaxSize      int    `json:"max_size"`
	BlockSize    int    `json:"block_size"`
	Source       string `json:"source"`
	Accurate     bool   `json:"accurate"`
	ReallocEvery int    `json:"realloc_every"`
	Seed         uint64 `json:"seed"`
}

func defaultStressConfig() stressConfig {
	return stressConfig{
		Producers:    4,
		Consumers:    4,
		Allocs:       100000,
		MaxSize:      512,
		BlockSize:    arena.DefaultBlockSize,
		Source:       "default",
		ReallocEvery: 16,
		Seed:         1,
	}
}

func (c stressConfig) validate() error {
	switch {
	case c.Producers < 1:
		return errors.Newf("producers must be at least 1, got %d", c.Producers)
	case c.Consumers < 1:
		return errors.Newf("consumers must be at least 1, got %d", c.Consumers)
	case c.Allocs < 0:
		return errors.Newf("allocs must not be negative, got %d", c.Allocs)
	case c.MaxSize < 1:
		return errors.Newf("max-size must be at least 1, got %d", c.MaxSize)
	case c.ReallocEvery < 0:
		return errors.Newf("realloc-every must not be negative, got %d", c.ReallocEvery)
	}
	return nil
}

type stressReport struct {
	Config         stressConfig       `json:"config"`
	Allocations    int64              `json:"allocations"`
	Reallocs       int64              `json:"reallocs"`
	Failures       int64              `json:"failures"`
	BytesRequested int64              `json:"bytes_requested"`
	Corrupted      int64              `json:"corrupted"`
	Elapsed        time.Duration      `json:"elapsed_ns"`
	Metrics        arena.ArenaMetrics `json:"metrics"`
	Cache          *arena.CacheStats  `json:"cache,omitempty"`
}

// newSource builds the block source named by the --source flag. The cached
// source is returned separately so its statistics can be reported.
func newSource(name string, blockSize int) (arena.BlockSource, *arena.CachedSource, error) {
	switch name {
	case "heap":
		return arena.NewHeapSource(), nil, nil
	case "mmap":
		return arena.NewMmapSource(), nil, nil
	case "cached":
		c, err := arena.NewCachedSource(arena.NewMmapSource(), blockSize, arena.DefaultCacheBlocks)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case "default":
		c := arena.DefaultSource(blockSize)
		return c, c, nil
	}
	return nil, nil, errors.Newf("unknown source %q (want heap, mmap, cached or default)", name)
}

type item struct {
	p    unsafe.Pointer
	size int
	seed byte
}

func fillPattern(p unsafe.Pointer, size int, seed byte) {
	b := unsafe.Slice((*byte)(p), size)
	for i := range b {
		b[i] = seed ^ byte(i)
	}
}

func checkPattern(p unsafe.Pointer, size int, seed byte) bool {
	for i, v := range unsafe.Slice((*byte)(p), size) {
		if v != seed^byte(i) {
			return false
		}
	}
	return true
}

type stressCounters struct {
	allocs, reallocs, failures, bytes, corrupted atomic.Int64
}

// runStress runs the workload to completion or until ctx is done, then
// verifies that the arena holds no blocks.
func runStress(ctx context.Context, cfg stressConfig, logger *slog.Logger) (stressReport, error) {
	report := stressReport{Config: cfg}
	if err := cfg.validate(); err != nil {
		return report, err
	}
	src, cache, err := newSource(cfg.Source, cfg.BlockSize)
	if err != nil {
		return report, err
	}
	a, err := arena.NewArena(arena.Options{
		BlockSize:    cfg.BlockSize,
		Source:       src,
		AccurateSize: cfg.Accurate,
		Logger:       logger,
	})
	if err != nil {
		return report, errors.Wrap(err, "creating arena")
	}

	var cnt stressCounters
	work := make(chan item, 1024)
	start := time.Now()

	var consumers sync.WaitGroup
	for i := 0; i < cfg.Consumers; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for it := range work {
				if !checkPattern(it.p, it.size, it.seed) {
					cnt.corrupted.Add(1)
				}
				a.Free(it.p)
			}
		}()
	}

	var producers sync.WaitGroup
	for i := 0; i < cfg.Producers; i++ {
		producers.Add(1)
		go func(id int) {
			defer producers.Done()
			produce(ctx, a, cfg, uint64(id), work, &cnt)
		}(i)
	}

	producers.Wait()
	close(work)
	consumers.Wait()

	report.Elapsed = time.Since(start)
	report.Allocations = cnt.allocs.Load()
	report.Reallocs = cnt.reallocs.Load()
	report.Failures = cnt.failures.Load()
	report.BytesRequested = cnt.bytes.Load()
	report.Corrupted = cnt.corrupted.Load()
	report.Metrics = a.Metrics()
	if cache != nil {
		s := cache.Stats()
		report.Cache = &s
	}
	logger.Info("stress run finished", "allocations", report.Allocations, "elapsed", report.Elapsed)

	if report.Corrupted > 0 {
		return report, errors.Newf("%d allocations were corrupted", report.Corrupted)
	}
	if live := report.Metrics.LiveBlocks + report.Metrics.LiveOversized; live != 0 {
		return report, errors.Wrapf(errLeakedBlocks, "%d blocks", live)
	}
	if err := ctx.Err(); err != nil {
		return report, errors.Wrap(err, "stress run interrupted")
	}
	return report, nil
}

func produce(ctx context.Context, a *arena.Arena, cfg stressConfig, id uint64, work chan<- item, cnt *stressCounters) {
	l := a.NewLocal()
	defer l.Close()
	rng := rand.New(rand.NewPCG(cfg.Seed, id))

	for i := 0; i < cfg.Allocs; i++ {
		if ctx.Err() != nil {
			return
		}
		size := 1 + rng.IntN(cfg.MaxSize)
		align := uintptr(1) << rng.IntN(5)
		p := l.Malloc(uintptr(size), align)
		if p == nil {
			cnt.failures.Add(1)
			continue
		}
		seed := byte(rng.Uint32())
		fillPattern(p, size, seed)
		cnt.allocs.Add(1)

		if cfg.ReallocEvery > 0 && i%cfg.ReallocEvery == 0 {
			newSize := 1 + rng.IntN(cfg.MaxSize)
			if np := l.Realloc(p, uintptr(newSize), align); np != nil {
				if !checkPattern(np, min(size, newSize), seed) {
					cnt.corrupted.Add(1)
				}
				p, size = np, newSize
				fillPattern(p, size, seed)
				cnt.reallocs.Add(1)
			}
		}
		cnt.bytes.Add(int64(size))

		select {
		case work <- item{p: p, size: size, seed: seed}:
		case <-ctx.Done():
			l.Free(p)
			return
		}
	}
}
