package heap

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfMemory indicates an allocation failed even after a purge.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrLeaked indicates live allocations remained when the allocator was closed.
	ErrLeaked = errors.New("heap: allocations leaked")
)
