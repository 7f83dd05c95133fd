package main

import (
	"io"

	"github.com/spf13/cobra"
)

var runCfg = defaultStressConfig()

func init() {
	cmd := newRunCmd()
	f := cmd.Flags()
	f.IntVar(&runCfg.Producers, "producers", runCfg.Producers, "Goroutines allocating through their own Local")
	f.IntVar(&runCfg.Consumers, "consumers", runCfg.Consumers, "Goroutines verifying and freeing allocations")
	f.IntVar(&runCfg.Allocs, "allocs", runCfg.Allocs, "Allocations per producer")
	f.IntVar(&runCfg.MaxSize, "max-size", runCfg.MaxSize, "Largest request in bytes; larger than the block size forces oversized blocks")
	f.IntVar(&runCfg.BlockSize, "block-size", runCfg.BlockSize, "Arena block size (power of two, at least 4096)")
	f.StringVar(&runCfg.Source, "source", runCfg.Source, "Block source: heap, mmap, cached or default")
	f.BoolVar(&runCfg.Accurate, "accurate", runCfg.Accurate, "Use allocation headers for exact sizes")
	f.IntVar(&runCfg.ReallocEvery, "realloc-every", runCfg.ReallocEvery, "Reallocate every Nth allocation (0 disables)")
	f.Uint64Var(&runCfg.Seed, "seed", runCfg.Seed, "Random seed")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the producer/consumer workload",
		Long: `The run command starts producers that allocate random sizes and
alignments, fill them with a pattern and pass them to consumers, which verify
the pattern and free the memory. Every Nth allocation is reallocated first.

Example:
  arenastress run
  arenastress run --producers 8 --consumers 2 --max-size 100000
  arenastress run --source mmap --accurate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runCfg.validate(); err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr())
			report, err := runStress(cmd.Context(), runCfg, logger)
			if perr := printReport(cmd.OutOrStdout(), report); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
}

func printReport(w io.Writer, r stressReport) error {
	if jsonOut {
		return printJSON(w, r)
	}

	p := newPrinter()
	p.Fprintf(w, "Source:            %s (block size %d)\n", r.Config.Source, r.Config.BlockSize)
	p.Fprintf(w, "Allocations:       %d (%d reallocated, %d failed)\n", r.Allocations, r.Reallocs, r.Failures)
	p.Fprintf(w, "Bytes requested:   %d\n", r.BytesRequested)
	p.Fprintf(w, "Elapsed:           %v\n", r.Elapsed)
	p.Fprintf(w, "Blocks acquired:   %d (%d oversized)\n", r.Metrics.BlocksAcquired, r.Metrics.OversizedAcquired)
	p.Fprintf(w, "Blocks live:       %d (%d oversized)\n", r.Metrics.LiveBlocks, r.Metrics.LiveOversized)
	p.Fprintf(w, "Source failures:   %d\n", r.Metrics.SourceFailures)
	if r.Cache != nil {
		p.Fprintf(w, "Cache:             %d hits, %d misses, %d/%d parked\n",
			r.Cache.Hits, r.Cache.Misses, r.Cache.Parked, r.Cache.Capacity)
	}
	p.Fprintf(w, "Corrupted:         %d\n", r.Corrupted)
	return nil
}
