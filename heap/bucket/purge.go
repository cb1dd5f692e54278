package bucket

import (
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/list"
)

// Purge returns memory to the page source: empty pages at the front of
// each bucket, then every page on the free-page stack. The scan of a
// bucket stops at its first full page.
func (e *Engine) Purge() {
	released := 0
	for i := range e.buckets {
		released += e.releasePages(&e.buckets[i], true, false)
	}
	released += e.releaseStack()
	if released > 0 {
		e.log.Debug("purge", zap.Int("pages", released))
	}
}

// GarbageCollect releases every empty page of every bucket and the
// free-page stack. With force it releases every page whether or not it
// still holds live elements; the engine must not be used for those
// elements afterwards.
func (e *Engine) GarbageCollect(force bool) {
	released := 0
	for i := range e.buckets {
		released += e.releasePages(&e.buckets[i], false, force)
	}
	released += e.releaseStack()
	if released > 0 {
		e.log.Debug("garbage collect", zap.Int("pages", released), zap.Bool("force", force))
	}
}

func (e *Engine) releaseStack() int {
	n := e.stack.ReleaseAll(e.src, e.hook)
	e.releases.Add(uint64(n))
	return n
}

func (e *Engine) releasePages(b *bucket, earlyExit, force bool) int {
	var doomed list.List

	b.mu.Lock()
	for link := b.pages.Front(); link != 0; {
		next := b.pages.Next(link)
		page := format.PageFromLink(link)
		if earlyExit && format.PageFreeList(page) == 0 {
			break
		}
		if force || format.PageCount(page) == 0 {
			b.pages.Remove(link)
			format.SetPageMarker(page, 0)
			doomed.PushBack(link)
		}
		link = next
	}
	b.mu.Unlock()

	n := 0
	for link := doomed.PopFront(); link != 0; link = doomed.PopFront() {
		page := format.PageFromLink(link)
		if e.hook != nil {
			e.hook.PageReleased(page)
		}
		e.src.FreePage(page)
		n++
	}
	e.pagesInUse.Add(-int64(n))
	e.releases.Add(uint64(n))
	return n
}

// Trim moves every empty page to the free-page stack. It releases nothing.
func (e *Engine) Trim() int {
	n := 0
	for i := range e.buckets {
		b := &e.buckets[i]
		b.mu.Lock()
		for link := b.pages.Front(); link != 0; {
			next := b.pages.Next(link)
			page := format.PageFromLink(link)
			if format.PageCount(page) == 0 {
				b.pages.Remove(link)
				format.SetPageMarker(page, 0)
				e.stack.Push(page)
				n++
			}
			link = next
		}
		b.mu.Unlock()
	}
	e.pagesInUse.Add(-int64(n))
	return n
}

// Adopt moves every page of other, full ones included, into the matching
// buckets of e and takes over other's free-page stack. Elements allocated
// from other may then be freed through e. Both engines must share a page
// source. other stays usable and empty.
func (e *Engine) Adopt(other *Engine) {
	if e == other {
		return
	}
	moved := int64(0)
	for i := range e.buckets {
		dst, src := &e.buckets[i], &other.buckets[i]
		lockPair(&dst.mu, &src.mu)
		for link := src.pages.PopFront(); link != 0; link = src.pages.PopFront() {
			page := format.PageFromLink(link)
			format.SetPageMarker(page, dst.marker^page)
			format.SetPageOwner(page, e.owner)
			if format.PageFreeList(page) != 0 {
				dst.pages.PushFront(link)
			} else {
				dst.pages.PushBack(link)
			}
			moved++
		}
		src.mu.Unlock()
		dst.mu.Unlock()
	}
	other.pagesInUse.Add(-moved)
	e.pagesInUse.Add(moved)
	if e.stack != other.stack {
		e.stack.TakeAll(other.stack)
	}
}

// lockPair locks a and b in address order.
func lockPair(a, b *sync.Mutex) {
	if uintptr(unsafe.Pointer(a)) > uintptr(unsafe.Pointer(b)) {
		a, b = b, a
	}
	a.Lock()
	b.Lock()
}

// Stats is a snapshot of engine counters.
type Stats struct {
	PagesInUse   int64  // pages linked into buckets
	StackPages   int    // empty pages on the free-page stack
	PageGrows    uint64 // pages obtained from the page source
	PageReuses   uint64 // pages taken from the free-page stack
	Recarves     uint64 // reused pages that changed size class
	PageReleases uint64 // pages returned to the page source
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		PagesInUse:   e.pagesInUse.Load(),
		StackPages:   e.stack.Len(),
		PageGrows:    e.grows.Load(),
		PageReuses:   e.reuses.Load(),
		Recarves:     e.recarves.Load(),
		PageReleases: e.releases.Load(),
	}
}
