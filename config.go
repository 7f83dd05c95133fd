package arena

import (
	"io"
	"log/slog"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// DefaultBlockSize is the default block size for new arenas (64 KiB).
const DefaultBlockSize = 1 << 16

// MinBlockSize is the smallest accepted block size.
const MinBlockSize = 1 << 12

// Options configures an Arena. The zero value selects the defaults.
type Options struct {
	// BlockSize is the size of pool blocks. Must be a power of two >= MinBlockSize.
	// Default: DefaultBlockSize.
	BlockSize int

	// Source supplies blocks. Default: DefaultSource(BlockSize).
	Source BlockSource

	// AccurateSize stores an allocation header in front of every allocation so
	// AllocationSize reports the exact requested size.
	AccurateSize bool

	// DisallowOversized turns requests that do not fit a block into assertion failures
	// instead of serving them from a dedicated block.
	DisallowOversized bool

	// SingleThreaded uses one shared Local and plain counter arithmetic.
	// The arena must then only be used from one goroutine at a time.
	SingleThreaded bool

	Tracker  Tracker
	Poisoner Poisoner

	// Logger receives block lifecycle events. Default: discard.
	Logger *slog.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.BlockSize < MinBlockSize || bits.OnesCount(uint(o.BlockSize)) != 1 {
		return o, errors.Wrapf(ErrInvalidBlockSize, "got %d", o.BlockSize)
	}
	if o.Source == nil {
		o.Source = DefaultSource(o.BlockSize)
	}
	if o.Tracker == nil {
		o.Tracker = nopTracker{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o, nil
}

// fastPath reports whether allocations can skip the allocation header.
func (o Options) fastPath() bool {
	return !o.AccurateSize && o.Poisoner == nil
}
