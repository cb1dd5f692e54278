package heap

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Purge returns unused memory to the provider: empty bucket pages first,
// so that pages carved from the tree can coalesce, then whole free tree
// extents.
func (a *Allocator) Purge() {
	a.purges.Add(1)
	a.buckets.Purge()
	a.tree.Purge()
}

// GarbageCollect is Purge.
func (a *Allocator) GarbageCollect() { a.Purge() }

// Close releases every bucket page and every free tree extent. Live
// allocations in bucket pages become invalid. When allocations are still
// live it returns an error matching ErrLeaked. Calling Close again is a
// no-op.
func (a *Allocator) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	live := a.live.Load()
	requested := a.requested.Load()

	a.buckets.GarbageCollect(true)
	a.tree.Purge()

	if live > 0 {
		a.log.Warn("allocations leaked", zap.Int64("allocations", live), zap.Int64("bytes", requested))
		return errors.Wrapf(ErrLeaked, "heap: %d allocations (%d bytes) outstanding", live, requested)
	}
	return nil
}
