package tree

import "github.com/cockroachdb/errors"

// PageSource hands bucket pages out of tree extents. It satisfies the
// bucket engine's page source contract.
type PageSource struct {
	e *Engine
}

// BucketPages returns a page source backed by e.
func (e *Engine) BucketPages() *PageSource {
	return &PageSource{e: e}
}

// AllocPage returns one bucket page.
func (s *PageSource) AllocPage() (uintptr, error) {
	page := s.e.AllocBucketPage()
	if page == 0 {
		return 0, errors.Wrap(ErrNoMemory, "tree: bucket page")
	}
	return page, nil
}

// FreePage returns a bucket page to the tree.
func (s *PageSource) FreePage(page uintptr) {
	s.e.FreeBucketPage(page)
}
