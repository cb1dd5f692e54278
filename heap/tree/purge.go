package tree

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/format"
)

// Purge returns every extent holding a single free block to the provider
// and, when enabled, decommits the interior of the other free blocks.
func (e *Engine) Purge() {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.releases
	e.free.Walk(func(n uintptr) {
		e.purgeBlock(format.HeaderOf(n))
	})
	if released := e.releases - before; released > 0 {
		e.log.Debug("purge", zap.Uint64("extents", released), zap.Int("free_blocks", e.free.Len()))
	}
}

func (e *Engine) purgeBlock(h uintptr) {
	prev := format.BlockPrev(h)
	next := format.NextOf(h)
	if format.BlockPrev(prev) == 0 && format.BlockSize(next) == 0 {
		e.detach(h)
		base := prev
		size := next + format.BlockHeaderSize - base
		if e.extents[base] != size {
			panic(errors.AssertionFailedf("tree: extent %#x spans %d bytes, recorded %d", base, size, e.extents[base]))
		}
		format.Fill(base, format.BlockHeaderSize, 0xff)
		delete(e.extents, base)
		e.extentBytes -= size
		e.releases++
		e.p.Deallocate(base, size)
		return
	}

	if !e.decommit {
		return
	}
	d, ok := e.p.(provider.Decommitter)
	if !ok {
		return
	}
	start := format.AlignUp(format.BlockMem(h)+format.FreeNodeSize, e.pageSize)
	end := format.AlignDown(next, e.pageSize)
	if start >= end {
		return
	}
	if err := d.Decommit(start, end-start); err != nil {
		if !errors.Is(err, provider.ErrNotSupported) {
			e.log.Debug("decommit failed", zap.Uintptr("addr", start), zap.Error(err))
		}
		return
	}
	e.decommits++
}

// ReleaseAll returns every extent to the provider, live blocks included,
// and leaves the engine empty. Pointers into the engine become invalid.
func (e *Engine) ReleaseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for base, size := range e.extents {
		e.p.Deallocate(base, size)
		e.releases++
	}
	e.extents = make(map[uintptr]uintptr)
	e.extentBytes = 0
	e.bucketPages = 0
	e.free = newFreeTree()
}

// Adopt moves every extent of other into e. Blocks allocated from other
// may then be freed through e. Both engines must use the same provider.
func (e *Engine) Adopt(other *Engine) {
	if e == other {
		return
	}
	if e.p != other.p {
		panic(errors.AssertionFailedf("tree: adopt across providers"))
	}
	first, second := e, other
	if uintptr(unsafe.Pointer(first)) > uintptr(unsafe.Pointer(second)) {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	other.free.Walk(func(n uintptr) {
		other.free.Remove(n)
		e.free.Insert(n)
	})
	for base, size := range other.extents {
		e.extents[base] = size
	}
	e.extentBytes += other.extentBytes
	e.bucketPages += other.bucketPages
	other.extents = make(map[uintptr]uintptr)
	other.extentBytes = 0
	other.bucketPages = 0
}
