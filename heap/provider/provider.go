// Package provider defines where the allocator engines get their memory
// from, and ships the implementations used in production and in tests.
//
// # Overview
//
// A Provider hands out whole, aligned extents. The engines call it to grow
// and to give completely empty extents back; they never talk to the OS
// themselves.
//
//   - Mmap: anonymous private mappings straight from the OS
//   - GoHeap: mapped extents indexed in a btree, with a Go buffer fallback
//   - Limited: a wrapper that caps the outstanding bytes of another provider
//
// Every provider is safe for concurrent use.
//
// # Decommit
//
// A provider may also implement Decommitter. The tree engine uses it during
// a purge to return the physical pages behind the interior of large free
// blocks without changing the address-space layout.
package provider

//go:generate mockgen -source=provider.go -destination=mock_provider/mock_provider.go

import "github.com/joshuapare/heapkit/internal/mmap"

// Provider is the virtual-memory source of an allocator.
type Provider interface {
	// Allocate returns size bytes of zeroed memory aligned to alignment
	// (a power of two; 0 means the provider's page size). It fails with an
	// error matching ErrExhausted when no memory is available.
	Allocate(size, alignment uintptr) (uintptr, error)

	// Deallocate returns an extent obtained from Allocate. size must equal
	// the size that was requested.
	Deallocate(ptr, size uintptr)

	// PageSize is the growth granularity and extent alignment the tree
	// engine uses with this provider.
	PageSize() uintptr
}

// Decommitter is implemented by providers that can drop the physical
// backing of a page-aligned range while keeping it addressable.
type Decommitter interface {
	Decommit(ptr, size uintptr) error
}

// Default returns an Mmap provider where anonymous mappings are supported
// and a GoHeap provider elsewhere.
func Default() Provider {
	if mmap.Supported {
		return NewMmap()
	}
	return NewGoHeap()
}
