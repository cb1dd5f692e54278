// Package bucket implements the small-object engine: one size class per
// 8 bytes up to 512, each served from 4 KiB pages carved into equal
// elements.
//
// # Overview
//
// Every bucket owns an intrusive list of pages. Pages with free elements sit
// at the front, full pages at the back. Allocation pops from the front
// page's free list; freeing pushes back onto the free list of the element's
// page, found by masking the address.
//
// A page that becomes completely empty is normally unlinked and pushed onto
// a free-page stack. Any bucket, in this engine or in another engine sharing
// the stack, can adopt it. A page changing size class is re-carved; a page
// returning to its old class keeps its free list.
//
// # Ownership
//
// A page records its bucket index and a marker derived from the bucket's
// random marker and the page address. Owns checks both, so an arbitrary
// address can be classified as bucket memory or not in constant time.
//
// # Memory sources
//
// Pages come from a PageSource. ProviderPages asks the provider for one
// aligned page at a time. The tree engine offers an alternative that
// sub-allocates pages from its own extents.
//
// # Concurrency
//
// Each bucket has its own mutex. The free-page stack has another, always
// taken after a bucket lock.
package bucket
