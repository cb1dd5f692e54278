package bucket

import (
	"math/rand"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/list"
	"github.com/joshuapare/heapkit/internal/logger"
)

// EnvCheckFrees turns on CheckFrees for every engine.
const EnvCheckFrees = "HEAPKIT_CHECK_FREES"

var checkFreesEnv = os.Getenv(EnvCheckFrees) != ""

// markerSource produces bucket markers. Tests stub it for determinism.
var markerSource = func() uintptr {
	return uintptr(rand.Uint64()) | 1
}

// Options configures an Engine. A nil *Options selects the defaults.
type Options struct {
	// Owner is written into every page this engine carves. The thread pool
	// uses it to route frees to the owning thread.
	Owner uintptr

	// Stack is the free-page stack. Engines sharing a page source may share
	// a stack; nil creates a private one.
	Stack *PageStack

	// Hook observes page acquisition and release.
	Hook PageHook

	// Logger receives debug events. Default: logger.Named("bucket").
	Logger *zap.Logger

	// CheckFrees walks the page free list on every free to catch double
	// frees in pages that still hold live elements. Without it only a free
	// into an already empty page is detected.
	CheckFrees bool
}

type bucket struct {
	mu     sync.Mutex
	pages  list.List
	marker uintptr
	index  int
	size   uintptr
}

// Engine is the small-object allocator.
type Engine struct {
	src     PageSource
	stack   *PageStack
	hook    PageHook
	owner   uintptr
	log     *zap.Logger
	check   bool
	buckets [format.NumBuckets]bucket

	pagesInUse atomic.Int64
	grows      atomic.Uint64
	reuses     atomic.Uint64
	recarves   atomic.Uint64
	releases   atomic.Uint64
}

// New returns an engine drawing pages from src.
func New(src PageSource, opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}
	e := &Engine{
		src:   src,
		stack: opts.Stack,
		hook:  opts.Hook,
		owner: opts.Owner,
		log:   opts.Logger,
		check: opts.CheckFrees || checkFreesEnv,
	}
	if e.stack == nil {
		e.stack = NewPageStack()
	}
	if e.log == nil {
		e.log = logger.Named("bucket")
	}
	for i := range e.buckets {
		b := &e.buckets[i]
		b.index = i
		b.size = format.BucketSize(i)
		b.marker = markerSource()
	}
	return e
}

// Stack returns the engine's free-page stack.
func (e *Engine) Stack() *PageStack { return e.stack }

// Source returns the engine's page source.
func (e *Engine) Source() PageSource { return e.src }

// Alloc returns an element of at least size bytes, or 0 when the page
// source is exhausted.
func (e *Engine) Alloc(size uintptr) uintptr {
	if size == 0 || size > format.MaxSmallAllocation {
		panic(errors.AssertionFailedf("bucket: size %d outside (0, %d]", size, format.MaxSmallAllocation))
	}
	return e.AllocDirect(format.BucketIndex(size))
}

// AllocDirect returns an element from size class index, or 0 when the page
// source is exhausted.
func (e *Engine) AllocDirect(index int) uintptr {
	if index < 0 || index >= format.NumBuckets {
		panic(errors.AssertionFailedf("bucket: index %d out of range", index))
	}
	b := &e.buckets[index]
	b.mu.Lock()
	defer b.mu.Unlock()

	var page uintptr
	if link := b.pages.Front(); link != 0 && format.PageFreeList(format.PageFromLink(link)) != 0 {
		page = format.PageFromLink(link)
	} else {
		page = e.acquirePage(b)
		if page == 0 {
			return 0
		}
		b.pages.PushFront(format.PageLink(page))
	}

	cell := format.PageFreeList(page)
	format.SetPageFreeList(page, format.Word(cell))
	format.SetPageCount(page, format.PageCount(page)+1)
	if format.PageFreeList(page) == 0 {
		b.pages.MoveToBack(format.PageLink(page))
	}
	return cell
}

// acquirePage finds a page for b, preferring the free-page stack. Called
// with b.mu held.
func (e *Engine) acquirePage(b *bucket) uintptr {
	if page := e.stack.Pop(); page != 0 {
		if int(format.PageBucket(page)) != b.index {
			carve(page, b)
			e.recarves.Add(1)
		}
		format.SetPageMarker(page, b.marker^page)
		format.SetPageOwner(page, e.owner)
		e.reuses.Add(1)
		e.pagesInUse.Add(1)
		if e.hook != nil {
			e.hook.PageAcquired(page, b.index, true)
		}
		return page
	}

	page, err := e.src.AllocPage()
	if err != nil {
		e.log.Debug("page source exhausted", zap.Int("bucket", b.index), zap.Error(err))
		return 0
	}
	carve(page, b)
	format.SetPageMarker(page, b.marker^page)
	format.SetPageOwner(page, e.owner)
	e.grows.Add(1)
	e.pagesInUse.Add(1)
	if e.hook != nil {
		e.hook.PageAcquired(page, b.index, false)
	}
	return page
}

// carve formats page as an empty page of b's class. Elements are laid out
// from the end of the page, lowest address first on the free list.
func carve(page uintptr, b *bucket) {
	format.SetPageBucket(page, uint32(b.index))
	format.SetPageCount(page, 0)
	end := page + format.PageSize
	first := format.PageFirstElem(page, b.size)
	for c := first; c < end; c += b.size {
		next := c + b.size
		if next >= end {
			next = 0
		}
		format.SetWord(c, next)
	}
	format.SetPageFreeList(page, first)
}

// Free returns an element to its page.
func (e *Engine) Free(ptr uintptr) {
	page := format.PageOf(ptr)
	index := int(format.PageBucket(page))
	if index >= format.NumBuckets {
		panic(errors.AssertionFailedf("bucket: free of %#x: page %#x has bucket index %d", ptr, page, index))
	}
	e.free(&e.buckets[index], page, ptr)
}

// FreeDirect returns an element whose size class the caller already knows.
// A mismatching class means the caller freed with the wrong size.
func (e *Engine) FreeDirect(ptr uintptr, index int) {
	if index < 0 || index >= format.NumBuckets {
		panic(errors.AssertionFailedf("bucket: index %d out of range", index))
	}
	page := format.PageOf(ptr)
	if got := int(format.PageBucket(page)); got != index {
		panic(errors.AssertionFailedf("bucket: free of %#x with class %d, page holds class %d", ptr, index, got))
	}
	e.free(&e.buckets[index], page, ptr)
}

func (e *Engine) free(b *bucket, page, ptr uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if format.PageMarker(page) != b.marker^page {
		panic(errors.AssertionFailedf("bucket: free of %#x: page %#x marker mismatch", ptr, page))
	}
	if (page+format.PageSize-ptr)%b.size != 0 || ptr < format.PageFirstElem(page, b.size) {
		panic(errors.AssertionFailedf("bucket: free of %#x: not an element boundary", ptr))
	}

	if format.PageCount(page) == 0 {
		panic(errors.AssertionFailedf("bucket: double free of %#x: page %#x is empty", ptr, page))
	}
	if e.check {
		for c := format.PageFreeList(page); c != 0; c = format.Word(c) {
			if c == ptr {
				panic(errors.AssertionFailedf("bucket: double free of %#x", ptr))
			}
		}
	}

	wasFull := format.PageFreeList(page) == 0
	format.SetWord(ptr, format.PageFreeList(page))
	format.SetPageFreeList(page, ptr)
	count := format.PageCount(page) - 1
	format.SetPageCount(page, count)

	link := format.PageLink(page)
	if count == 0 {
		if e.keepEmpty(b, link) {
			return
		}
		b.pages.Remove(link)
		format.SetPageMarker(page, 0)
		e.pagesInUse.Add(-1)
		e.stack.Push(page)
		return
	}
	if wasFull {
		b.pages.MoveToFront(link)
	}
}

// keepEmpty decides whether an empty page stays in its bucket: it does
// when it is the only page with free elements and full pages follow it, so
// the next allocation in this bucket does not round-trip through the stack.
func (e *Engine) keepEmpty(b *bucket, link uintptr) bool {
	if b.pages.Len() < 2 {
		return false
	}
	if b.pages.Front() != link {
		return false
	}
	next := b.pages.Next(link)
	if format.PageFreeList(format.PageFromLink(next)) != 0 {
		return false
	}
	return true
}

// Realloc resizes an element. It returns ptr when size maps to the
// element's own class, otherwise moves the contents to a new element. On
// failure it returns 0 and leaves ptr intact.
func (e *Engine) Realloc(ptr, size uintptr) uintptr {
	old := format.PageElemSize(format.PageOf(ptr))
	if format.BucketSize(format.BucketIndex(size)) == old {
		return ptr
	}
	n := e.Alloc(size)
	if n == 0 {
		return 0
	}
	format.Move(n, ptr, min(old, size))
	e.Free(ptr)
	return n
}

// ReallocAligned is Realloc for an element that must also satisfy
// alignment.
func (e *Engine) ReallocAligned(ptr, size, alignment uintptr) uintptr {
	old := format.PageElemSize(format.PageOf(ptr))
	index := format.BucketIndex(format.AlignUp(size, alignment))
	if format.BucketSize(index) == old && ptr&(alignment-1) == 0 {
		return ptr
	}
	n := e.AllocDirect(index)
	if n == 0 {
		return 0
	}
	format.Move(n, ptr, min(old, size))
	e.Free(ptr)
	return n
}

// Owns reports whether ptr is an element of one of this engine's pages.
func (e *Engine) Owns(ptr uintptr) bool {
	page := format.PageOf(ptr)
	index := format.PageBucket(page)
	if index >= format.NumBuckets {
		return false
	}
	return format.PageMarker(page) == e.buckets[index].marker^page
}

// ElementSize returns the element size of the page holding ptr.
func (e *Engine) ElementSize(ptr uintptr) uintptr {
	page := format.PageOf(ptr)
	if format.PageBucket(page) >= format.NumBuckets {
		panic(errors.AssertionFailedf("bucket: %#x is not bucket memory", ptr))
	}
	return format.PageElemSize(page)
}

// MaxAllocation returns the largest element size immediately available
// without acquiring a page, or 0.
func (e *Engine) MaxAllocation() uintptr {
	for i := format.NumBuckets - 1; i >= 0; i-- {
		b := &e.buckets[i]
		b.mu.Lock()
		link := b.pages.Front()
		free := link != 0 && format.PageFreeList(format.PageFromLink(link)) != 0
		b.mu.Unlock()
		if free {
			return b.size
		}
	}
	return 0
}

// UnusedMemory returns the bytes of free elements in pages that still hold
// live elements, plus the pages waiting on the free-page stack.
func (e *Engine) UnusedMemory() uintptr {
	const avail = format.PageSize - format.PageHeaderSize
	var unused uintptr
	for i := range e.buckets {
		b := &e.buckets[i]
		b.mu.Lock()
		for link := b.pages.Front(); link != 0; link = b.pages.Next(link) {
			page := format.PageFromLink(link)
			if format.PageFreeList(page) == 0 {
				break
			}
			unused += avail - b.size*uintptr(format.PageCount(page))
		}
		b.mu.Unlock()
	}
	return unused + uintptr(e.stack.Len())*avail
}
