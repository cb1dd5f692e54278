package tree

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
)

// Stats is a snapshot of engine counters.
type Stats struct {
	Extents     int     // extents held from the provider
	ExtentBytes uintptr // bytes held from the provider
	FreeBlocks  int     // blocks in the free tree
	BucketPages int64   // pages handed to the bucket engine
	Grows       uint64
	Releases    uint64
	Splits      uint64
	Coalesces   uint64
	Shifts      uint64
	Decommits   uint64
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Extents:     len(e.extents),
		ExtentBytes: e.extentBytes,
		FreeBlocks:  e.free.Len(),
		BucketPages: e.bucketPages,
		Grows:       e.grows,
		Releases:    e.releases,
		Splits:      e.splits,
		Coalesces:   e.coalesces,
		Shifts:      e.shifts,
		Decommits:   e.decommits,
	}
}

// UnusedMemory returns the total payload of all free blocks.
func (e *Engine) UnusedMemory() uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	var total uintptr
	e.free.Walk(func(n uintptr) {
		total += blockKey(n)
	})
	return total
}

// MaxAllocation returns the payload of the largest free block, or 0.
func (e *Engine) MaxAllocation() uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := e.free.Max(); n != 0 {
		return blockKey(n)
	}
	return 0
}

// FreeBlocks returns the number of free blocks.
func (e *Engine) FreeBlocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.free.Len()
}

// Validate walks every extent and checks the block chain against the free
// tree: prev links, fences, tree membership of exactly the free blocks, and
// that no two free blocks are adjacent.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.free.Validate(); err != nil {
		return err
	}
	inTree := make(map[uintptr]bool, e.free.Len())
	e.free.Walk(func(n uintptr) {
		inTree[format.HeaderOf(n)] = true
	})

	freeSeen := 0
	for base, size := range e.extents {
		back := base + size - format.BlockHeaderSize
		if format.BlockPrev(base) != 0 || !format.BlockUsed(base) {
			return errors.Newf("tree: extent %#x has a broken front fence", base)
		}
		if format.BlockSize(back) != 0 || !format.BlockUsed(back) {
			return errors.Newf("tree: extent %#x has a broken back fence", base)
		}
		prevFree := false
		for h := base; h != back; {
			next := format.NextOf(h)
			if next <= h || next > back {
				return errors.Newf("tree: block %#x in extent %#x points outside it", h, base)
			}
			if format.BlockPrev(next) != h {
				return errors.Newf("tree: block %#x has prev %#x, expected %#x", next, format.BlockPrev(next), h)
			}
			h = next
			if h == back {
				break
			}
			used := format.BlockUsed(h)
			if used == inTree[h] {
				return errors.Newf("tree: block %#x used=%v but tree membership=%v", h, used, inTree[h])
			}
			if !used {
				if prevFree {
					return errors.Newf("tree: adjacent free blocks at %#x", h)
				}
				if format.BlockSize(h) < format.FreeNodeSize {
					return errors.Newf("tree: free block %#x smaller than a node", h)
				}
				freeSeen++
			}
			prevFree = !used
		}
	}
	if freeSeen != len(inTree) {
		return errors.Newf("tree: %d free blocks in extents, %d in tree", freeSeen, len(inTree))
	}
	return nil
}
