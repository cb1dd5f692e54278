package tree

import (
	"github.com/joshuapare/heapkit/internal/format"
)

// Realloc resizes the block at ptr to hold size bytes. In order of
// preference it shrinks in place, grows into a free successor, slides
// down into a free predecessor, or moves to a new block. It returns 0 on
// failure and leaves ptr intact.
func (e *Engine) Realloc(ptr, size uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()

	size = normalize(size)
	h := format.HeaderOf(ptr)
	if np, ok := e.reallocInPlace(h, size); ok {
		return np
	}

	next := format.NextOf(h)
	oldSize := format.BlockSize(h)
	prev := format.BlockPrev(h)
	if !format.BlockUsed(prev) && oldSize+e.freeSpan(prev)+e.freeSpan(next) >= size {
		e.detach(prev)
		format.UnlinkBlock(h)
		e.absorbNext(prev)
		format.SetBlockUsed(prev)
		mem := format.BlockMem(prev)
		format.Move(mem, ptr, oldSize)
		e.trim(prev, size)
		return mem
	}

	np := e.allocLocked(size)
	if np == 0 {
		return 0
	}
	format.Move(np, ptr, oldSize)
	e.freeLocked(ptr)
	return np
}

// ReallocAligned is Realloc for a block that must stay aligned. ptr must
// already be aligned.
func (e *Engine) ReallocAligned(ptr, size, alignment uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()

	size = normalize(size)
	h := format.HeaderOf(ptr)
	if np, ok := e.reallocInPlace(h, size); ok {
		return np
	}

	next := format.NextOf(h)
	oldSize := format.BlockSize(h)
	prev := format.BlockPrev(h)
	if !format.BlockUsed(prev) {
		pmem := format.BlockMem(prev)
		offs := format.AlignUp(pmem, alignment) - pmem
		if oldSize+e.freeSpan(prev)+e.freeSpan(next) >= size+offs {
			e.detach(prev)
			format.UnlinkBlock(h)
			e.absorbNext(prev)
			prev = e.alignBlock(prev, offs)
			format.SetBlockUsed(prev)
			mem := format.BlockMem(prev)
			format.Move(mem, ptr, oldSize)
			e.trim(prev, size)
			return mem
		}
	}

	np := e.allocAlignedLocked(size, alignment)
	if np == 0 {
		return 0
	}
	format.Move(np, ptr, oldSize)
	e.freeLocked(ptr)
	return np
}

// reallocInPlace handles the shrink and grow-into-successor cases shared
// by both realloc variants.
func (e *Engine) reallocInPlace(h, size uintptr) (uintptr, bool) {
	oldSize := format.BlockSize(h)
	if oldSize >= size {
		e.shrink(h, size)
		return format.BlockMem(h), true
	}
	next := format.NextOf(h)
	if oldSize+e.freeSpan(next) >= size {
		e.absorbNext(h)
		e.trim(h, size)
		return format.BlockMem(h), true
	}
	return 0, false
}

// freeSpan returns the bytes h would add to a neighbour that absorbs it:
// its payload plus header when free, otherwise 0.
func (e *Engine) freeSpan(h uintptr) uintptr {
	if format.BlockUsed(h) {
		return 0
	}
	return format.BlockSize(h) + format.BlockHeaderSize
}

// absorbNext merges a free successor into h.
func (e *Engine) absorbNext(h uintptr) {
	if next := format.NextOf(h); !format.BlockUsed(next) {
		e.detach(next)
		format.UnlinkBlock(next)
		e.coalesces++
	}
}

// shrink cuts h down to size and merges the released tail with a free
// successor.
func (e *Engine) shrink(h, size uintptr) {
	if format.BlockSize(h) < size+minSplit {
		return
	}
	e.split(h, size)
	e.attach(e.coalesce(format.NextOf(h)))
}

// Resize shrinks the block at ptr or grows it into a free successor. It
// never moves the block and returns the resulting payload size.
func (e *Engine) Resize(ptr, size uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()

	size = normalize(size)
	h := format.HeaderOf(ptr)
	e.reallocInPlace(h, size)
	return format.BlockSize(h)
}
