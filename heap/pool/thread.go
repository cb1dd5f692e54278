package pool

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap/bucket"
	"github.com/joshuapare/heapkit/internal/format"
)

// Thread is the allocation state of one registered thread.
type Thread struct {
	id      uintptr
	r       *Registry
	engine  *bucket.Engine
	retired atomic.Bool

	// deferred is the head of the deferred-free stack. Elements are linked
	// through their first word.
	deferred atomic.Uintptr
}

// ID returns the owner tag written into the thread's pages.
func (t *Thread) ID() uintptr { return t.id }

// Retired reports whether the thread unregistered with live elements.
func (t *Thread) Retired() bool { return t.retired.Load() }

// Allocate returns size bytes. Sizes above the small-object ceiling fail
// with ErrTooLarge. A zero size returns (nil, nil).
func (t *Thread) Allocate(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}
	if !format.IsSmall(size) {
		return nil, errors.Wrapf(ErrTooLarge, "pool: %d bytes", size)
	}
	t.drain()

	p := t.engine.Alloc(size)
	if p == 0 {
		t.r.GarbageCollect()
		if p = t.engine.Alloc(size); p == 0 {
			return nil, errors.Wrapf(ErrOutOfMemory, "pool: thread %d allocating %d bytes", t.id, size)
		}
	}
	return unsafe.Pointer(p), nil
}

// Deallocate frees ptr. Elements owned by another thread are queued on
// that thread's deferred-free stack.
func (t *Thread) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	p := uintptr(ptr)
	owner := ownerOf(p)
	if owner == t.id {
		t.engine.Free(p)
		return
	}
	o := t.r.lookup(owner)
	if o == nil {
		panic(errors.AssertionFailedf("pool: free of %#x owned by unknown thread %d", p, owner))
	}
	o.push(p)
	t.r.deferred.Add(1)
}

// AllocationSize returns the element size of ptr, or 0 for nil.
func (t *Thread) AllocationSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil {
		return 0
	}
	return t.engine.ElementSize(uintptr(ptr))
}

// Pending reports whether frees from other threads are waiting.
func (t *Thread) Pending() bool { return t.deferred.Load() != 0 }

// Stats returns the counters of the thread's engine.
func (t *Thread) Stats() bucket.Stats { return t.engine.Stats() }

func (t *Thread) push(p uintptr) {
	for {
		head := t.deferred.Load()
		format.SetWord(p, head)
		if t.deferred.CompareAndSwap(head, p) {
			return
		}
	}
}

// drain applies every queued free and returns how many there were.
func (t *Thread) drain() int {
	n := 0
	for p := t.deferred.Swap(0); p != 0; n++ {
		next := format.Word(p)
		t.engine.Free(p)
		p = next
	}
	return n
}
