package provider

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/mmap"
)

// goHeapPageSize is the extent granularity GoHeap reports.
const goHeapPageSize = 4096

// extent is one live GoHeap allocation, ordered by its aligned base.
// Mapped extents record the mapped length; buffer-backed ones keep buf.
type extent struct {
	base   uintptr
	size   uintptr
	mapped uintptr
	buf    []byte
}

func (e *extent) Less(than btree.Item) bool {
	return e.base < than.(*extent).base
}

// GoHeap is the bookkeeping provider used by tests and the "go"
// configuration. Every live extent is indexed in a btree keyed by base
// address, which backs Extents, Bytes and Contains and catches unknown or
// mis-sized releases.
//
// Extents are mapped through internal/mmap, outside the Go heap: the
// engines do arithmetic on the addresses and convert them back to
// pointers, which is only valid for memory the garbage collector does not
// own. Where anonymous mappings are unsupported, extents fall back to Go
// byte slices kept reachable from the index.
type GoHeap struct {
	mu      sync.Mutex
	extents *btree.BTree
	bytes   uintptr
}

var _ Provider = (*GoHeap)(nil)

// NewGoHeap returns an empty GoHeap provider.
func NewGoHeap() *GoHeap {
	return &GoHeap{extents: btree.New(8)}
}

// Allocate returns size zeroed bytes aligned to alignment.
func (g *GoHeap) Allocate(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		panic(errors.AssertionFailedf("provider: zero-size allocation"))
	}
	if alignment == 0 {
		alignment = goHeapPageSize
	}
	if !format.IsPow2(alignment) {
		panic(errors.AssertionFailedf("provider: alignment %d is not a power of two", alignment))
	}
	total, ok := format.AddOverflowSafe(size, alignment)
	if !ok || total > uintptr(1<<62) {
		return 0, errors.Wrapf(ErrExhausted, "provider: %d bytes at alignment %d", size, alignment)
	}

	e := &extent{size: size}
	if mmap.Supported {
		e.mapped = format.AlignUp(size, mmap.PageSize())
		base, err := mmap.Map(e.mapped, alignment)
		if err != nil {
			return 0, errors.Mark(errors.Wrapf(err, "provider: %d bytes at alignment %d", size, alignment), ErrExhausted)
		}
		e.base = base
	} else {
		e.buf = make([]byte, total)
		e.base = format.AlignUp(uintptr(unsafe.Pointer(&e.buf[0])), alignment)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.extents.ReplaceOrInsert(e)
	g.bytes += size
	return e.base, nil
}

// Deallocate drops the extent starting at ptr. Releasing an address that
// GoHeap never handed out is a contract violation.
func (g *GoHeap) Deallocate(ptr, size uintptr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item := g.extents.Get(&extent{base: ptr})
	if item == nil {
		panic(errors.AssertionFailedf("provider: deallocate of unknown extent %#x", ptr))
	}
	e := item.(*extent)
	if e.size != size {
		panic(errors.AssertionFailedf("provider: deallocate of %#x with size %d, allocated %d", ptr, size, e.size))
	}
	g.extents.Delete(e)
	g.bytes -= size
	if e.mapped != 0 {
		if err := mmap.Unmap(e.base, e.mapped); err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "provider: unmap of %#x failed", ptr))
		}
	}
}

// PageSize returns the extent granularity.
func (g *GoHeap) PageSize() uintptr { return goHeapPageSize }

// Extents returns the number of live extents.
func (g *GoHeap) Extents() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.extents.Len()
}

// Bytes returns the total size of the live extents.
func (g *GoHeap) Bytes() uintptr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bytes
}

// Contains reports whether ptr lies inside a live extent.
func (g *GoHeap) Contains(ptr uintptr) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	var found bool
	g.extents.DescendLessOrEqual(&extent{base: ptr}, func(i btree.Item) bool {
		e := i.(*extent)
		found = ptr < e.base+e.size
		return false
	})
	return found
}
