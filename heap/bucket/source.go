package bucket

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/format"
)

// PageSource supplies and takes back PageSize-aligned pages.
type PageSource interface {
	AllocPage() (uintptr, error)
	FreePage(page uintptr)
}

// PageHook observes page traffic. It is called with a bucket lock held and
// must not call back into the engine.
type PageHook interface {
	// PageAcquired is called when a bucket takes a page, either fresh from
	// the page source or reused from the free-page stack.
	PageAcquired(page uintptr, bucket int, reused bool)

	// PageReleased is called when a page goes back to the page source.
	PageReleased(page uintptr)
}

// ProviderPages draws pages straight from a provider.
type ProviderPages struct {
	p     provider.Provider
	pages atomic.Int64
}

var _ PageSource = (*ProviderPages)(nil)

// NewProviderPages returns a page source backed by p.
func NewProviderPages(p provider.Provider) *ProviderPages {
	return &ProviderPages{p: p}
}

// AllocPage returns one page.
func (s *ProviderPages) AllocPage() (uintptr, error) {
	page, err := s.p.Allocate(format.PageSize, format.PageSize)
	if err != nil {
		return 0, errors.Mark(err, ErrNoPage)
	}
	if page&format.PageMask != 0 {
		panic(errors.AssertionFailedf("bucket: provider returned misaligned page %#x", page))
	}
	s.pages.Add(1)
	return page, nil
}

// FreePage returns a page to the provider.
func (s *ProviderPages) FreePage(page uintptr) {
	s.p.Deallocate(page, format.PageSize)
	s.pages.Add(-1)
}

// Pages returns the number of pages currently held from the provider.
func (s *ProviderPages) Pages() int64 { return s.pages.Load() }

// Provider returns the underlying provider.
func (s *ProviderPages) Provider() provider.Provider { return s.p }

// Adopt takes over the page count of other after its pages moved to an
// engine drawing from s. Both must wrap the same provider.
func (s *ProviderPages) Adopt(other *ProviderPages) {
	if s == other {
		return
	}
	if s.p != other.p {
		panic(errors.AssertionFailedf("bucket: adopt pages across providers"))
	}
	s.pages.Add(other.pages.Swap(0))
}
