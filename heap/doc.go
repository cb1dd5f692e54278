// Package heap provides a general-purpose allocator for raw memory: a
// small-object bucket engine and a large-object free-tree engine behind a
// single dispatcher.
//
// # Overview
//
// Allocator routes every request by size and alignment:
//
//   - size <= MaxSmallAllocation, alignment <= MaxSmallAllocation:
//     bucket engine (heap/bucket), one size class per 8 bytes
//   - everything else: tree engine (heap/tree), best fit with coalescing
//
// Both engines draw their memory from a provider.Provider. Bucket pages come
// either straight from the provider or, with Options.BucketPagesFromTree,
// out of tree extents.
//
// # Usage Example
//
//	a := heap.New(nil)
//	defer a.Close()
//
//	p, err := a.Allocate(100, 0)
//	if err != nil {
//	    return err
//	}
//	// ... use the 100 bytes at p ...
//	a.Deallocate(p, 100, 0)
//
// # Ownership Test
//
// Free and resize classify a bare pointer by masking it down to its page
// and comparing the page marker with the bucket's random marker. Pointers
// that fail the test belong to the tree engine. The size hint passed to
// Deallocate skips the test for small sizes and asserts it instead.
//
// # Out of Memory
//
// When an engine cannot grow, the dispatcher purges both engines and
// retries once before returning ErrOutOfMemory. Reallocate leaves the
// original allocation untouched when it fails.
//
// # Contract Violations
//
// Double frees, frees with a wrong small-size hint, corrupted page markers
// and non-power-of-two alignments panic with an assertion failure. The
// checks are constant time and always enabled.
//
// # Thread Safety
//
// All Allocator methods are safe for concurrent use. Each size class has
// its own mutex and the tree has one more; a bucket lock may be held while
// the tree lock is taken, never the other way around.
//
// # Related Packages
//
//   - heap/provider: virtual-memory providers
//   - heap/pool: per-thread small-object pools
//   - heap/metrics: Prometheus instrumentation
//   - heap/pagetrack: bucket page tracking for debugging
package heap
