package format

// Alignment utilities. Every alignment handled here is a power of two.

// IsPow2 reports whether a is a non-zero power of two.
func IsPow2(a uintptr) bool {
	return a != 0 && a&(a-1) == 0
}

// AlignUp returns n rounded up to the next multiple of a.
//
// Example:
//
//	AlignUp(1, 8)    = 8
//	AlignUp(8, 8)    = 8
//	AlignUp(9, 16)   = 16
//	AlignUp(4097, 4096) = 8192
func AlignUp(n, a uintptr) uintptr {
	return (n + a - 1) &^ (a - 1)
}

// AlignDown returns n rounded down to a multiple of a.
func AlignDown(n, a uintptr) uintptr {
	return n &^ (a - 1)
}

// Align8 returns n aligned up to the next 8-byte boundary.
func Align8(n uintptr) uintptr {
	return AlignUp(n, MinAllocation)
}

// AlignBlock returns n aligned up to a multiple of the block header size.
// Free-tree block sizes are always multiples of BlockHeaderSize.
func AlignBlock(n uintptr) uintptr {
	return AlignUp(n, BlockHeaderSize)
}

// IsSmall reports whether a request of size bytes belongs to the bucket engine.
func IsSmall(size uintptr) bool {
	return size <= MaxSmallAllocation
}

// ClampSmall raises size to MinAllocation.
func ClampSmall(size uintptr) uintptr {
	if size < MinAllocation {
		return MinAllocation
	}
	return size
}

// BucketIndex maps a small request size to its size class.
//
// Example:
//
//	BucketIndex(1)   = 0
//	BucketIndex(8)   = 0
//	BucketIndex(9)   = 1
//	BucketIndex(512) = 63
func BucketIndex(size uintptr) int {
	return int((size+MinAllocation-1)>>MinAllocationLog2) - 1
}

// BucketSize returns the element size served by size class index.
func BucketSize(index int) uintptr {
	return uintptr(index+1) << MinAllocationLog2
}

// PageCapacity returns how many elements of elemSize fit in one bucket page.
func PageCapacity(elemSize uintptr) uintptr {
	return (PageSize - PageHeaderSize) / elemSize
}
