package provider

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Limited caps the number of bytes outstanding from another provider.
type Limited struct {
	upstream Provider
	max      uintptr
	inUse    atomic.Uintptr
}

var (
	_ Provider    = (*Limited)(nil)
	_ Decommitter = (*Limited)(nil)
)

// NewLimited wraps p so that at most maxBytes are outstanding at once.
func NewLimited(p Provider, maxBytes uintptr) *Limited {
	return &Limited{upstream: p, max: maxBytes}
}

// Allocate forwards to the upstream provider while the cap allows it.
func (l *Limited) Allocate(size, alignment uintptr) (uintptr, error) {
	if n := l.inUse.Add(size); n > l.max || n < size {
		l.inUse.Add(-size)
		return 0, errors.Wrapf(ErrExhausted, "provider: %d bytes would exceed the %d byte limit", size, l.max)
	}
	p, err := l.upstream.Allocate(size, alignment)
	if err != nil {
		l.inUse.Add(-size)
		return 0, err
	}
	return p, nil
}

// Deallocate forwards to the upstream provider.
func (l *Limited) Deallocate(ptr, size uintptr) {
	l.upstream.Deallocate(ptr, size)
	l.inUse.Add(-size)
}

// PageSize returns the upstream page size.
func (l *Limited) PageSize() uintptr { return l.upstream.PageSize() }

// Decommit forwards to the upstream provider when it supports decommit.
func (l *Limited) Decommit(ptr, size uintptr) error {
	if d, ok := l.upstream.(Decommitter); ok {
		return d.Decommit(ptr, size)
	}
	return ErrNotSupported
}

// InUse returns the bytes currently outstanding.
func (l *Limited) InUse() uintptr { return l.inUse.Load() }

// Max returns the cap.
func (l *Limited) Max() uintptr { return l.max }
