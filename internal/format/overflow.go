package format

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would
// wrap around.
func AddOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a > math.MaxUint-b {
		return 0, false
	}
	return a + b, true
}

// MulOverflowSafe multiplies a and b, returning ok = false when the result
// would wrap around.
func MulOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint/b {
		return 0, false
	}
	return a * b, true
}

// maxOverhead bounds the bytes the engines add to a request: rounding to
// the block size, three block headers, a free node and two pages for the
// page-aligned paths.
const maxOverhead = 2*PageSize + 3*BlockHeaderSize + FreeNodeSize + BlockHeaderSize

// RequestFits reports whether a request for size bytes at alignment can be
// rounded and padded without overflowing.
func RequestFits(size, alignment uintptr) bool {
	n, ok := AddOverflowSafe(size, alignment)
	if !ok {
		return false
	}
	_, ok = AddOverflowSafe(n, maxOverhead)
	return ok
}
