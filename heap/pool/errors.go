package pool

import "github.com/cockroachdb/errors"

var (
	// ErrTooLarge indicates a request above the small-object ceiling.
	ErrTooLarge = errors.New("pool: allocation too large")

	// ErrOutOfMemory indicates an allocation failed even after a collection.
	ErrOutOfMemory = errors.New("pool: out of memory")
)
