package arena

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidBlockSize indicates a block size that is not a power of two or is below MinBlockSize.
	ErrInvalidBlockSize = errors.New("arena: block size must be a power of two >= 4096")

	// ErrInvalidCacheSize indicates a non-positive page cache capacity.
	ErrInvalidCacheSize = errors.New("arena: cache capacity must be positive")

	// ErrMisalignedBlock indicates a block source returned memory that does not honour the requested alignment.
	ErrMisalignedBlock = errors.New("arena: block source returned misaligned memory")

	// ErrOutOfMemory indicates the block source could not supply memory.
	ErrOutOfMemory = errors.New("arena: out of memory")
)

// assertf panics with an assertion failure. Used for caller bugs that are
// not recoverable (bad alignment, disallowed oversized requests, pointer types).
func assertf(format string, args ...interface{}) {
	panic(errors.AssertionFailedf(format, args...))
}
