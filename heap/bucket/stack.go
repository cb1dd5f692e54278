package bucket

import (
	"sync"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/list"
)

// PageStack holds completely empty pages waiting for a bucket. It may be
// shared by several engines drawing from the same page source.
type PageStack struct {
	mu    sync.Mutex
	pages list.List
}

// NewPageStack returns an empty stack.
func NewPageStack() *PageStack {
	return &PageStack{}
}

// Push adds an empty page.
func (s *PageStack) Push(page uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages.PushFront(format.PageLink(page))
}

// Pop removes the most recently pushed page, or returns 0.
func (s *PageStack) Pop() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.pages.PopFront()
	if n == 0 {
		return 0
	}
	return format.PageFromLink(n)
}

// Len returns the number of pages on the stack.
func (s *PageStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.Len()
}

// TakeAll moves every page of other onto s.
func (s *PageStack) TakeAll(other *PageStack) {
	if s == other {
		return
	}
	other.mu.Lock()
	var moved list.List
	moved.Take(&other.pages)
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages.Take(&moved)
}

// ReleaseAll empties the stack into src and returns the number of pages
// released.
func (s *PageStack) ReleaseAll(src PageSource, hook PageHook) int {
	s.mu.Lock()
	var pages list.List
	pages.Take(&s.pages)
	s.mu.Unlock()

	n := 0
	for link := pages.PopFront(); link != 0; link = pages.PopFront() {
		page := format.PageFromLink(link)
		format.SetPageMarker(page, 0)
		if hook != nil {
			hook.PageReleased(page)
		}
		src.FreePage(page)
		n++
	}
	return n
}
