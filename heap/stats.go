package heap

import (
	"github.com/joshuapare/heapkit/heap/bucket"
	"github.com/joshuapare/heapkit/heap/tree"
	"github.com/joshuapare/heapkit/internal/format"
)

// Stats is a snapshot of allocator counters.
type Stats struct {
	// Requested is the usable size of all live allocations.
	Requested uintptr

	// Allocated is the memory currently held from the provider.
	Allocated uintptr

	// Live is the number of live allocations.
	Live int64

	Bucket bucket.Stats
	Tree   tree.Stats

	// UnusedMemory is held memory not backing any allocation.
	UnusedMemory uintptr

	// MaxAllocation is the largest request servable without growing.
	MaxAllocation uintptr

	Purges      uint64 // Purge calls, including purge-and-retry
	Retries     uint64 // allocations retried after a purge
	OutOfMemory uint64 // allocations that failed
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats {
	bs := a.buckets.Stats()
	ts := a.tree.Stats()
	st := Stats{
		Requested:     clampUnsigned(a.requested.Load()),
		Allocated:     ts.ExtentBytes,
		Live:          a.live.Load(),
		Bucket:        bs,
		Tree:          ts,
		UnusedMemory:  a.buckets.UnusedMemory() + a.tree.UnusedMemory(),
		MaxAllocation: max(a.buckets.MaxAllocation(), a.tree.MaxAllocation()),
		Purges:        a.purges.Load(),
		Retries:       a.retries.Load(),
		OutOfMemory:   a.ooms.Load(),
	}
	if a.pages != nil {
		st.Allocated += uintptr(a.pages.Pages()) * format.PageSize
	}
	return st
}

func clampUnsigned(n int64) uintptr {
	if n < 0 {
		return 0
	}
	return uintptr(n)
}
