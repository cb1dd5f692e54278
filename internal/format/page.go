package format

// Bucket page headers.
//
// Layout at the start of every bucket page:
//
//	0x00  reserved      block header of the page when it was cut from a tree extent
//	0x10  list prev     page list links (see internal/list)
//	0x18  list next
//	0x20  free list     first free element, chained through the element memory
//	0x28  marker        bucket marker XOR page address
//	0x30  owner         owner tag (0 for a shared engine)
//	0x38  bucket        size class index (uint32)
//	0x3c  count         live elements (uint32)
//
// Elements are carved from the end of the page backwards.

const (
	pageLinkOff   = 0x10
	pageFreeOff   = 0x20
	pageMarkerOff = 0x28
	pageOwnerOff  = 0x30
	pageBucketOff = 0x38
	pageCountOff  = 0x3c
)

// PageOf returns the bucket page containing ptr.
func PageOf(ptr uintptr) uintptr {
	return ptr &^ PageMask
}

// PageLink returns the address of the list node embedded in page.
func PageLink(page uintptr) uintptr {
	return page + pageLinkOff
}

// PageFromLink returns the page owning the list node at n.
func PageFromLink(n uintptr) uintptr {
	return n - pageLinkOff
}

// PageFreeList returns the first free element of page, or 0 when full.
func PageFreeList(page uintptr) uintptr { return Word(page + pageFreeOff) }

// SetPageFreeList stores the first free element of page.
func SetPageFreeList(page, cell uintptr) { SetWord(page+pageFreeOff, cell) }

// PageMarker returns the stored ownership marker of page.
func PageMarker(page uintptr) uintptr { return Word(page + pageMarkerOff) }

// SetPageMarker stores the ownership marker of page.
func SetPageMarker(page, marker uintptr) { SetWord(page+pageMarkerOff, marker) }

// PageOwner returns the owner tag of page.
func PageOwner(page uintptr) uintptr { return Word(page + pageOwnerOff) }

// SetPageOwner stores the owner tag of page.
func SetPageOwner(page, owner uintptr) { SetWord(page+pageOwnerOff, owner) }

// PageBucket returns the size class index of page.
func PageBucket(page uintptr) uint32 { return U32(page + pageBucketOff) }

// SetPageBucket stores the size class index of page.
func SetPageBucket(page uintptr, index uint32) { SetU32(page+pageBucketOff, index) }

// PageCount returns the number of live elements in page.
func PageCount(page uintptr) uint32 { return U32(page + pageCountOff) }

// SetPageCount stores the number of live elements in page.
func SetPageCount(page uintptr, n uint32) { SetU32(page+pageCountOff, n) }

// PageElemSize returns the element size of page.
func PageElemSize(page uintptr) uintptr {
	return BucketSize(int(PageBucket(page)))
}

// PageFirstElem returns the address of the first (lowest) element in a page
// carved for elemSize.
func PageFirstElem(page, elemSize uintptr) uintptr {
	return page + PageSize - PageCapacity(elemSize)*elemSize
}
