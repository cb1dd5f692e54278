// Package format describes the in-memory layout shared by the allocator
// engines: fixed size constants, alignment helpers, and accessors for the
// block and page headers that live inside provider memory.
//
// Headers are addressed by uintptr. Nothing in this package allocates; every
// accessor reads or writes the raw words at an address the caller owns.
package format

const (
	// PageSize is the size and alignment of a bucket page. Page metadata is
	// located by masking an element address with PageMask.
	PageSize = 4096

	// PageMask clears the in-page offset of an address.
	PageMask = PageSize - 1

	// MinAllocationLog2 is log2 of MinAllocation.
	MinAllocationLog2 = 3

	// MinAllocation is the smallest element handed out. A free element must
	// hold one free-list link.
	MinAllocation = 1 << MinAllocationLog2

	// MaxSmallAllocationLog2 is log2 of MaxSmallAllocation.
	MaxSmallAllocationLog2 = 9

	// MaxSmallAllocation is the small-object ceiling. Requests up to and
	// including this size are served by the bucket engine.
	MaxSmallAllocation = 1 << MaxSmallAllocationLog2

	// DefaultAlignment is the alignment every allocation satisfies without
	// an explicit request.
	DefaultAlignment = 8

	// NumBuckets is the number of small-object size classes.
	NumBuckets = MaxSmallAllocation / MinAllocation

	// BlockHeaderSize is the size of a free-tree block header: the previous
	// block address followed by the size and flags word.
	BlockHeaderSize = 16

	// FreeNodeSize is the footprint of the intrusive tree node stored in the
	// payload of a free block, and therefore the smallest block payload.
	FreeNodeSize = 48

	// PageHeaderSize is the size of the metadata at the start of a bucket
	// page. The first BlockHeaderSize bytes are reserved so that a page cut
	// from a tree extent keeps its block header intact.
	PageHeaderSize = 64
)

// Block flag bits, stored in the low bits of the size word.
const (
	BlockUsedFlag = 1
	BlockFlagMask = 3
)
