package provider

import "github.com/cockroachdb/errors"

var (
	// ErrExhausted indicates the provider could not supply the requested memory.
	ErrExhausted = errors.New("provider: memory exhausted")

	// ErrNotSupported indicates an optional operation is unavailable.
	ErrNotSupported = errors.New("provider: operation not supported")
)
