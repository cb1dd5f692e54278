package tree

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/sizetree"
)

// minSplit is the smallest tail worth splitting off: a header plus a node.
const minSplit = format.BlockHeaderSize + format.FreeNodeSize

// Options configures an Engine. A nil *Options selects the defaults.
type Options struct {
	// Decommit enables interior decommit during Purge when the provider
	// implements provider.Decommitter.
	Decommit bool

	// Logger receives debug events. Default: logger.Named("tree").
	Logger *zap.Logger
}

// Engine is the large-object allocator. All methods are safe for
// concurrent use.
type Engine struct {
	mu       sync.Mutex
	p        provider.Provider
	pageSize uintptr
	free     *sizetree.Tree
	extents  map[uintptr]uintptr
	decommit bool
	log      *zap.Logger

	extentBytes uintptr
	bucketPages int64
	grows       uint64
	releases    uint64
	splits      uint64
	coalesces   uint64
	shifts      uint64
	decommits   uint64
}

func blockKey(n uintptr) uintptr {
	return format.BlockSize(format.HeaderOf(n))
}

func newFreeTree() *sizetree.Tree {
	return sizetree.New(blockKey)
}

// New returns an engine growing through p.
func New(p provider.Provider, opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}
	e := &Engine{
		p:        p,
		pageSize: p.PageSize(),
		free:     newFreeTree(),
		extents:  make(map[uintptr]uintptr),
		decommit: opts.Decommit,
		log:      opts.Logger,
	}
	if e.pageSize < format.PageSize {
		e.pageSize = format.PageSize
	}
	if e.log == nil {
		e.log = logger.Named("tree")
	}
	return e
}

// Provider returns the provider the engine grows through.
func (e *Engine) Provider() provider.Provider { return e.p }

func normalize(size uintptr) uintptr {
	if size < format.FreeNodeSize {
		size = format.FreeNodeSize
	}
	return format.AlignBlock(size)
}

func (e *Engine) attach(h uintptr) { e.free.Insert(format.BlockMem(h)) }
func (e *Engine) detach(h uintptr) { e.free.Remove(format.BlockMem(h)) }

// growLocked maps a new extent able to hold a block of size bytes and
// returns that block, detached and free.
func (e *Engine) growLocked(size uintptr) (uintptr, error) {
	need, ok := format.AddOverflowSafe(size, 3*format.BlockHeaderSize)
	if ok {
		need, ok = format.AddOverflowSafe(need, e.pageSize-1)
	}
	if !ok {
		return 0, errors.Wrapf(ErrNoMemory, "tree: grow by %d bytes overflows", size)
	}
	total := format.AlignDown(need, e.pageSize)
	base, err := e.p.Allocate(total, e.pageSize)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "tree: grow by %d bytes", total), ErrNoMemory)
	}
	e.extents[base] = total
	e.extentBytes += total
	e.grows++
	e.log.Debug("grow", zap.Uintptr("base", base), zap.Uintptr("bytes", total))
	return addBlock(base, total), nil
}

// addBlock lays out a fresh extent and returns its single free block.
func addBlock(base, size uintptr) uintptr {
	front := base
	format.ResetBlock(front)
	format.SetBlockPrev(front, 0)
	format.SetBlockUsed(front)

	h := format.BlockMem(front)
	format.ResetBlock(h)
	format.SetBlockPrev(h, front)

	back := base + size - format.BlockHeaderSize
	format.ResetBlock(back)
	format.SetBlockUsed(back)
	format.SetBlockNext(h, back)
	format.SetBlockPrev(back, h)
	return h
}

// split carves a free block out of h's payload after its first size bytes.
func (e *Engine) split(h, size uintptr) {
	if size+minSplit > format.BlockSize(h) {
		panic(errors.AssertionFailedf("tree: split of %d bytes from block of %d", size, format.BlockSize(h)))
	}
	n := format.BlockMem(h) + size
	format.ResetBlock(n)
	format.LinkBlockAfter(n, h)
	e.splits++
}

// shift moves h's header forward by offs bytes. The previous block absorbs
// the gap.
func (e *Engine) shift(h, offs uintptr) uintptr {
	prev := format.BlockPrev(h)
	format.UnlinkBlock(h)
	h += offs
	format.ResetBlock(h)
	format.LinkBlockAfter(h, prev)
	e.shifts++
	return h
}

// coalesce merges free block h with its free neighbours and returns the
// surviving header. The neighbours are detached; h is not attached.
func (e *Engine) coalesce(h uintptr) uintptr {
	if next := format.NextOf(h); !format.BlockUsed(next) {
		e.detach(next)
		format.UnlinkBlock(next)
		e.coalesces++
	}
	if prev := format.BlockPrev(h); !format.BlockUsed(prev) {
		e.detach(prev)
		format.UnlinkBlock(h)
		h = prev
		e.coalesces++
	}
	return h
}

// trim splits off the part of h beyond size when it can hold a block.
func (e *Engine) trim(h, size uintptr) {
	if format.BlockSize(h) >= size+minSplit {
		e.split(h, size)
		e.attach(format.NextOf(h))
	}
}

func (e *Engine) take(n uintptr) uintptr {
	e.free.Remove(n)
	return format.HeaderOf(n)
}

// extract removes the smallest free block of at least size bytes.
func (e *Engine) extract(size uintptr) uintptr {
	n := e.free.LowerBound(size)
	if n == 0 {
		return 0
	}
	return e.take(e.free.Cheapest(n))
}

// extractAligned removes a free block whose payload can start on an
// alignment boundary and still hold size bytes.
func (e *Engine) extractAligned(size, alignment uintptr) uintptr {
	last := e.free.UpperBound(size + alignment)
	for n := e.free.LowerBound(size); n != last; n = e.free.Successor(n) {
		for m := n; m != 0; m = e.free.NextDuplicate(m) {
			offs := format.AlignUp(m, alignment) - m
			if format.BlockSize(format.HeaderOf(m)) >= size+offs {
				return e.take(m)
			}
		}
	}
	if last == 0 {
		return 0
	}
	return e.take(e.free.Cheapest(last))
}

// extractBucketPage removes a free block whose header can be moved onto a
// page boundary with a full page behind it.
func (e *Engine) extractBucketPage() uintptr {
	const size, alignment = format.PageSize, format.PageSize
	last := e.free.UpperBound(size + alignment)
	for n := e.free.LowerBound(size); n != last; n = e.free.Successor(n) {
		for m := n; m != 0; m = e.free.NextDuplicate(m) {
			h := format.HeaderOf(m)
			offs := format.AlignUp(h, alignment) - h
			if format.BlockSize(h)+format.BlockHeaderSize >= size+offs {
				return e.take(m)
			}
		}
	}
	if last == 0 {
		return 0
	}
	return e.take(e.free.Cheapest(last))
}

// Alloc returns a block of at least size bytes, or 0 when the provider is
// exhausted.
func (e *Engine) Alloc(size uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocLocked(size)
}

func (e *Engine) allocLocked(size uintptr) uintptr {
	size = normalize(size)
	h := e.extract(size)
	if h == 0 {
		var err error
		if h, err = e.growLocked(size); err != nil {
			e.log.Debug("alloc failed", zap.Uintptr("size", size), zap.Error(err))
			return 0
		}
	}
	e.trim(h, size)
	format.SetBlockUsed(h)
	return format.BlockMem(h)
}

// AllocAligned returns a block of at least size bytes whose address is a
// multiple of alignment, or 0 when the provider is exhausted.
func (e *Engine) AllocAligned(size, alignment uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocAlignedLocked(size, alignment)
}

func (e *Engine) allocAlignedLocked(size, alignment uintptr) uintptr {
	if !format.IsPow2(alignment) {
		panic(errors.AssertionFailedf("tree: alignment %d is not a power of two", alignment))
	}
	size = normalize(size)
	h := e.extractAligned(size, alignment)
	if h == 0 {
		var err error
		if h, err = e.growLocked(size + alignment); err != nil {
			e.log.Debug("aligned alloc failed", zap.Uintptr("size", size), zap.Uintptr("alignment", alignment), zap.Error(err))
			return 0
		}
	}
	mem := format.BlockMem(h)
	h = e.alignBlock(h, format.AlignUp(mem, alignment)-mem)
	e.trim(h, size)
	format.SetBlockUsed(h)
	return format.BlockMem(h)
}

// alignBlock moves the start of free, detached block h forward by offs
// bytes, splitting the slack off as a free block when it is large enough.
func (e *Engine) alignBlock(h, offs uintptr) uintptr {
	switch {
	case offs >= minSplit:
		e.split(h, offs-format.BlockHeaderSize)
		e.attach(h)
		return format.NextOf(h)
	case offs > 0:
		return e.shift(h, offs)
	default:
		return h
	}
}

// AllocBucketPage returns the address of a PageSize-aligned page whose
// first 16 bytes are the block header of a used block spanning the page,
// or 0 when the provider is exhausted.
func (e *Engine) AllocBucketPage() uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := e.extractBucketPage()
	if h == 0 {
		var err error
		if h, err = e.growLocked(2 * format.PageSize); err != nil {
			e.log.Debug("bucket page alloc failed", zap.Error(err))
			return 0
		}
	}
	h = e.alignBlock(h, format.AlignUp(h, format.PageSize)-h)
	e.trim(h, format.PageSize-format.BlockHeaderSize)
	format.SetBlockUsed(h)
	e.bucketPages++
	return h
}

// FreeBucketPage returns a page obtained from AllocBucketPage.
func (e *Engine) FreeBucketPage(page uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if page&format.PageMask != 0 {
		panic(errors.AssertionFailedf("tree: bucket page %#x is not page aligned", page))
	}
	if !format.BlockUsed(page) {
		panic(errors.AssertionFailedf("tree: double free of bucket page %#x", page))
	}
	if format.BlockSize(page) < format.PageSize-format.BlockHeaderSize {
		panic(errors.AssertionFailedf("tree: %#x is not a bucket page (size %d)", page, format.BlockSize(page)))
	}
	format.SetBlockUnused(page)
	e.attach(e.coalesce(page))
	e.bucketPages--
}

// Free returns a block. Freeing a block that is not in use panics.
func (e *Engine) Free(ptr uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.freeLocked(ptr)
}

func (e *Engine) freeLocked(ptr uintptr) {
	h := format.HeaderOf(ptr)
	if !format.BlockUsed(h) {
		panic(errors.AssertionFailedf("tree: double free of %#x", ptr))
	}
	format.SetBlockUnused(h)
	e.attach(e.coalesce(h))
}

// Size returns the payload size of the block at ptr, or 0 when it is free.
func (e *Engine) Size(ptr uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := format.HeaderOf(ptr)
	if !format.BlockUsed(h) {
		return 0
	}
	return format.BlockSize(h)
}
