// Package tree implements the large-object engine: a coalescing best-fit
// allocator over extents obtained from a provider.
//
// # Overview
//
// Every block carries a 16-byte header holding the address of the previous
// block and its own payload size; the next block is found arithmetically.
// An extent is laid out as
//
//	[front fence][block][block]...[block][back fence]
//
// where both fences are used blocks that stop coalescing at the extent
// edges. Free blocks are indexed by size in an intrusive red-black multiset
// (internal/sizetree) whose nodes live in the free payloads, which is why
// every block payload is at least FreeNodeSize bytes.
//
// # Allocation
//
// Alloc takes the smallest free block that fits and splits off the tail
// when it is large enough to hold another block. Aligned requests scan the
// sizes in [size, size+alignment] for a block whose payload can be aligned
// in place, then either split off the leading slack or shift the header
// forward when the slack is too small to be a block of its own.
//
// Free clears the used bit and merges the block with free neighbours
// before reinserting it. Two free blocks are never adjacent.
//
// # Bucket pages
//
// AllocBucketPage carves a PageSize-aligned block whose header sits at the
// page start, so the small-object engine can use the tree as its page
// source. The page layout reserves those 16 bytes.
//
// # Purge
//
// Purge returns every extent that consists of a single free block. When
// the provider can decommit, the page-aligned interior of the remaining
// free blocks is decommitted instead.
package tree
