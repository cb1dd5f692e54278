package provider

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/mmap"
)

// Mmap maps anonymous memory from the operating system.
type Mmap struct {
	pageSize uintptr
}

var (
	_ Provider    = (*Mmap)(nil)
	_ Decommitter = (*Mmap)(nil)
)

// NewMmap returns an OS-backed provider. On platforms without anonymous
// mappings every Allocate fails.
func NewMmap() *Mmap {
	return &Mmap{pageSize: mmap.PageSize()}
}

// Allocate maps size bytes aligned to alignment.
func (m *Mmap) Allocate(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		panic(errors.AssertionFailedf("provider: zero-size allocation"))
	}
	p, err := mmap.Map(size, alignment)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "provider: mmap %d bytes", size), ErrExhausted)
	}
	return p, nil
}

// Deallocate unmaps an extent returned by Allocate.
func (m *Mmap) Deallocate(ptr, size uintptr) {
	if err := mmap.Unmap(ptr, size); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "provider: unmap of %#x failed", ptr))
	}
}

// PageSize returns the OS page size.
func (m *Mmap) PageSize() uintptr { return m.pageSize }

// Decommit drops the physical pages behind [ptr, ptr+size).
func (m *Mmap) Decommit(ptr, size uintptr) error {
	if !mmap.Supported {
		return ErrNotSupported
	}
	return mmap.Decommit(ptr, size)
}
