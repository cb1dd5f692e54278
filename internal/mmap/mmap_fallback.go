//go:build !linux && !darwin && !freebsd && !windows

package mmap

// Supported reports whether Map is implemented on this platform.
const Supported = false

// PageSize returns the page size assumed when no OS mapping is available.
func PageSize() uintptr {
	return 4096
}

// Map always fails with ErrUnsupported.
func Map(_, _ uintptr) (uintptr, error) {
	return 0, ErrUnsupported
}

// Unmap always fails with ErrUnsupported.
func Unmap(_, _ uintptr) error {
	return ErrUnsupported
}

// Decommit always fails with ErrUnsupported.
func Decommit(_, _ uintptr) error {
	return ErrUnsupported
}
