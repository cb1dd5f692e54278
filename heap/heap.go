package heap

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/heap/bucket"
	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/heap/tree"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
)

// Layout constants shared by both engines.
const (
	PageSize           = format.PageSize
	MinAllocation      = format.MinAllocation
	MaxSmallAllocation = format.MaxSmallAllocation
	DefaultAlignment   = format.DefaultAlignment
)

// Options configures an Allocator. A nil *Options selects the defaults.
type Options struct {
	// Provider supplies memory to both engines. Default: provider.Default().
	Provider provider.Provider

	// BucketPagesFromTree carves bucket pages out of tree extents instead
	// of requesting them from the provider one by one.
	BucketPagesFromTree bool

	// Decommit lets Purge decommit the interior of large free blocks when
	// the provider implements provider.Decommitter.
	Decommit bool

	// PageHook observes bucket page traffic (see heap/pagetrack).
	PageHook bucket.PageHook

	// CheckFrees makes the bucket engine detect every double free of a
	// small allocation, at the cost of a free-list walk per free (see
	// bucket.Options.CheckFrees).
	CheckFrees bool

	// Logger is the parent of the engine loggers. Default: logger.Named("heap").
	Logger *zap.Logger
}

// Allocator is the dispatcher over a bucket engine and a tree engine.
type Allocator struct {
	p       provider.Provider
	buckets *bucket.Engine
	tree    *tree.Engine
	pages   *bucket.ProviderPages // nil when bucket pages come from the tree
	log     *zap.Logger

	requested atomic.Int64
	live      atomic.Int64
	purges    atomic.Uint64
	retries   atomic.Uint64
	ooms      atomic.Uint64
	closed    atomic.Bool
}

// New returns an allocator configured by opts.
func New(opts *Options) *Allocator {
	if opts == nil {
		opts = &Options{}
	}
	a := &Allocator{
		p:   opts.Provider,
		log: opts.Logger,
	}
	if a.p == nil {
		a.p = provider.Default()
	}
	if a.log == nil {
		a.log = logger.Named("heap")
	}

	a.tree = tree.New(a.p, &tree.Options{
		Decommit: opts.Decommit,
		Logger:   a.log.Named("tree"),
	})
	var src bucket.PageSource
	if opts.BucketPagesFromTree {
		src = a.tree.BucketPages()
	} else {
		a.pages = bucket.NewProviderPages(a.p)
		src = a.pages
	}
	a.buckets = bucket.New(src, &bucket.Options{
		Hook:       opts.PageHook,
		Logger:     a.log.Named("bucket"),
		CheckFrees: opts.CheckFrees,
	})
	return a
}

// Provider returns the provider both engines draw from.
func (a *Allocator) Provider() provider.Provider { return a.p }

func checkAlignment(alignment uintptr) uintptr {
	if alignment == 0 {
		return DefaultAlignment
	}
	if !format.IsPow2(alignment) {
		panic(errors.AssertionFailedf("heap: alignment %d is not a power of two", alignment))
	}
	return alignment
}

// smallClass returns the size class serving a small request at alignment,
// or -1 when the request belongs to the tree.
func smallClass(size, alignment uintptr) int {
	if !format.IsSmall(size) || alignment > MaxSmallAllocation {
		return -1
	}
	if alignment <= DefaultAlignment {
		return format.BucketIndex(format.ClampSmall(size))
	}
	return format.BucketIndex(format.AlignUp(format.ClampSmall(size), alignment))
}

// Allocate returns size bytes aligned to alignment. An alignment of 0
// means DefaultAlignment. A zero size returns (nil, nil).
func (a *Allocator) Allocate(size, alignment uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}
	alignment = checkAlignment(alignment)
	if !format.RequestFits(size, alignment) {
		a.ooms.Add(1)
		return nil, errors.Wrapf(ErrOutOfMemory, "heap: allocate %d bytes aligned to %d overflows", size, alignment)
	}

	ptr := a.allocate(size, alignment)
	if ptr == 0 {
		a.retries.Add(1)
		a.Purge()
		if ptr = a.allocate(size, alignment); ptr == 0 {
			a.ooms.Add(1)
			a.log.Warn("out of memory", zap.Uintptr("size", size), zap.Uintptr("alignment", alignment))
			return nil, errors.Wrapf(ErrOutOfMemory, "heap: allocate %d bytes aligned to %d", size, alignment)
		}
	}
	a.track(ptr, 1)
	return unsafe.Pointer(ptr), nil
}

func (a *Allocator) allocate(size, alignment uintptr) uintptr {
	if class := smallClass(size, alignment); class >= 0 {
		return a.buckets.AllocDirect(class)
	}
	if alignment <= DefaultAlignment {
		return a.tree.Alloc(size)
	}
	return a.tree.AllocAligned(size, alignment)
}

// track adds (sign 1) or removes (sign -1) a live allocation from the
// counters.
func (a *Allocator) track(ptr uintptr, sign int64) {
	a.requested.Add(sign * int64(a.allocationSize(ptr)))
	a.live.Add(sign)
}

// Deallocate frees ptr. size and alignment are the values passed to
// Allocate, or 0 when unknown. A small size hint skips the ownership test
// and asserts it instead.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, size, alignment uintptr) {
	if ptr == nil {
		return
	}
	p := uintptr(ptr)
	alignment = checkAlignment(alignment)
	if size == 0 {
		a.track(p, -1)
		a.free(p)
		return
	}

	class := smallClass(size, alignment)
	if class < 0 {
		a.track(p, -1)
		a.tree.Free(p)
		return
	}
	if !a.buckets.Owns(p) {
		panic(errors.AssertionFailedf("heap: free of %#x with small size %d: not bucket memory", p, size))
	}
	a.track(p, -1)
	a.buckets.FreeDirect(p, class)
}

func (a *Allocator) free(p uintptr) {
	if a.buckets.Owns(p) {
		a.buckets.Free(p)
		return
	}
	a.tree.Free(p)
}

// Reallocate resizes the allocation at ptr to size bytes, moving it when
// needed. A nil ptr allocates; a zero size frees and returns (nil, nil).
// On failure ptr stays valid and ErrOutOfMemory is returned.
func (a *Allocator) Reallocate(ptr unsafe.Pointer, size, alignment uintptr) (unsafe.Pointer, error) {
	if ptr == nil {
		return a.Allocate(size, alignment)
	}
	if size == 0 {
		a.Deallocate(ptr, 0, alignment)
		return nil, nil
	}
	alignment = checkAlignment(alignment)
	if !format.RequestFits(size, alignment) {
		a.ooms.Add(1)
		return nil, errors.Wrapf(ErrOutOfMemory, "heap: reallocate to %d bytes aligned to %d overflows", size, alignment)
	}

	p := uintptr(ptr)
	old := a.allocationSize(p)
	np := a.reallocate(p, old, size, alignment)
	if np == 0 {
		a.retries.Add(1)
		a.Purge()
		if np = a.reallocate(p, old, size, alignment); np == 0 {
			a.ooms.Add(1)
			a.log.Warn("out of memory on reallocate", zap.Uintptr("size", size), zap.Uintptr("alignment", alignment))
			return nil, errors.Wrapf(ErrOutOfMemory, "heap: reallocate %#x to %d bytes", p, size)
		}
	}
	a.requested.Add(int64(a.allocationSize(np)) - int64(old))
	return unsafe.Pointer(np), nil
}

func (a *Allocator) reallocate(p, old, size, alignment uintptr) uintptr {
	if p&(alignment-1) == 0 {
		small := smallClass(size, alignment) >= 0
		switch inBucket := a.buckets.Owns(p); {
		case inBucket && small && alignment <= DefaultAlignment:
			return a.buckets.Realloc(p, format.ClampSmall(size))
		case inBucket && small:
			return a.buckets.ReallocAligned(p, format.ClampSmall(size), alignment)
		case !inBucket && !small && alignment <= DefaultAlignment:
			return a.tree.Realloc(p, size)
		case !inBucket && !small:
			return a.tree.ReallocAligned(p, size, alignment)
		}
	}

	np := a.allocate(size, alignment)
	if np == 0 {
		return 0
	}
	format.Move(np, p, min(old, size))
	a.free(p)
	return np
}

// Resize grows or shrinks the allocation at ptr in place and returns its
// new usable size. Bucket elements keep their class; tree blocks never
// shrink below the small-object ceiling so their size hint keeps routing
// to the tree.
func (a *Allocator) Resize(ptr unsafe.Pointer, size uintptr) uintptr {
	if ptr == nil {
		return 0
	}
	p := uintptr(ptr)
	if a.buckets.Owns(p) {
		return a.buckets.ElementSize(p)
	}
	old := a.tree.Size(p)
	n := a.tree.Resize(p, max(size, MaxSmallAllocation+MinAllocation))
	a.requested.Add(int64(n) - int64(old))
	return n
}

// AllocationSize returns the usable size of the allocation at ptr, or 0
// for nil.
func (a *Allocator) AllocationSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil {
		return 0
	}
	return a.allocationSize(uintptr(ptr))
}

func (a *Allocator) allocationSize(p uintptr) uintptr {
	if a.buckets.Owns(p) {
		return a.buckets.ElementSize(p)
	}
	return a.tree.Size(p)
}

// InBucket reports whether ptr is served by the bucket engine.
func (a *Allocator) InBucket(ptr unsafe.Pointer) bool {
	return ptr != nil && a.buckets.Owns(uintptr(ptr))
}
