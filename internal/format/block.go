package format

import "github.com/cockroachdb/errors"

// Free-tree block headers.
//
// A block header is two words placed immediately before its payload:
//
//	0x00  prev          address of the previous block header (0 for a front fence)
//	0x08  size | flags  payload size in bytes; the low two bits hold flags
//
// The next header is found arithmetically at Mem(h) + Size(h). Fences are
// zero-size blocks marked used that bound every extent.

const blockSizeOff = 8

// HeaderOf returns the header address of the block whose payload starts at mem.
func HeaderOf(mem uintptr) uintptr {
	return mem - BlockHeaderSize
}

// BlockMem returns the payload address of the block at h.
func BlockMem(h uintptr) uintptr {
	return h + BlockHeaderSize
}

// BlockSize returns the payload size of the block at h.
func BlockSize(h uintptr) uintptr {
	return Word(h+blockSizeOff) &^ BlockFlagMask
}

// BlockUsed reports whether the block at h is allocated (or a fence).
func BlockUsed(h uintptr) bool {
	return Word(h+blockSizeOff)&BlockUsedFlag != 0
}

// SetBlockUsed marks the block at h as allocated.
func SetBlockUsed(h uintptr) {
	SetWord(h+blockSizeOff, Word(h+blockSizeOff)|BlockUsedFlag)
}

// SetBlockUnused marks the block at h as free.
func SetBlockUnused(h uintptr) {
	SetWord(h+blockSizeOff, Word(h+blockSizeOff)&^BlockUsedFlag)
}

// SetBlockSize stores size, keeping the flag bits of h.
func SetBlockSize(h, size uintptr) {
	if size&BlockFlagMask != 0 {
		panic(errors.AssertionFailedf("format: block size %d collides with flag bits", size))
	}
	SetWord(h+blockSizeOff, Word(h+blockSizeOff)&BlockFlagMask|size)
}

// ResetBlock clears the size and flags of h. Used before a header is
// written over bytes that previously held payload.
func ResetBlock(h uintptr) {
	SetWord(h+blockSizeOff, 0)
}

// BlockPrev returns the previous block header of h.
func BlockPrev(h uintptr) uintptr {
	return Word(h)
}

// SetBlockPrev stores the previous block header of h.
func SetBlockPrev(h, prev uintptr) {
	SetWord(h, prev)
}

// NextOf returns the header that follows h.
func NextOf(h uintptr) uintptr {
	return BlockMem(h) + BlockSize(h)
}

// SetBlockNext resizes h so that its successor is next.
func SetBlockNext(h, next uintptr) {
	if next < BlockMem(h) {
		panic(errors.AssertionFailedf("format: next block %#x precedes payload of %#x", next, h))
	}
	SetBlockSize(h, next-BlockMem(h))
}

// UnlinkBlock removes h from the physical block chain. Its predecessor
// grows to cover the bytes h occupied.
func UnlinkBlock(h uintptr) {
	next := NextOf(h)
	prev := BlockPrev(h)
	SetBlockPrev(next, prev)
	SetBlockNext(prev, next)
}

// LinkBlockAfter inserts h into the physical block chain right after link.
// h must lie inside link's payload.
func LinkBlockAfter(h, link uintptr) {
	SetBlockPrev(h, link)
	SetBlockNext(h, NextOf(link))
	SetBlockPrev(NextOf(h), h)
	SetBlockNext(link, h)
}
