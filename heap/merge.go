package heap

import "github.com/cockroachdb/errors"

// Merge moves everything other holds into a: bucket pages, full ones
// included, the free-page stack, tree extents with their free blocks, and
// the tracking counters. Pointers allocated from other may then be freed
// through a. other stays usable and starts out empty.
//
// Both allocators must share a provider and the same bucket page source
// mode.
func (a *Allocator) Merge(other *Allocator) {
	if a == other {
		return
	}
	if a.p != other.p {
		panic(errors.AssertionFailedf("heap: merge across providers"))
	}
	if (a.pages == nil) != (other.pages == nil) {
		panic(errors.AssertionFailedf("heap: merge across bucket page sources"))
	}

	a.buckets.Adopt(other.buckets)
	a.tree.Adopt(other.tree)
	if a.pages != nil {
		a.pages.Adopt(other.pages)
	}

	a.requested.Add(other.requested.Swap(0))
	a.live.Add(other.live.Swap(0))
}
