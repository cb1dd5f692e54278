//go:build windows

package mmap

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
)

// Supported reports whether Map is implemented on this platform.
const Supported = true

// allocationGranularity is the alignment of every VirtualAlloc reservation.
const allocationGranularity = 64 << 10

// PageSize returns the operating system page size.
func PageSize() uintptr {
	return 4096
}

// Map returns size bytes of zeroed, committed memory aligned to align.
func Map(size, align uintptr) (uintptr, error) {
	if align > allocationGranularity {
		return 0, errors.Wrapf(ErrUnsupported, "mmap: alignment %d above allocation granularity", align)
	}
	p, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return 0, errors.Wrapf(err, "mmap: VirtualAlloc %d bytes", size)
	}
	return p, nil
}

// Unmap releases a whole region previously returned by Map.
func Unmap(addr, _ uintptr) error {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return errors.Wrapf(err, "mmap: VirtualFree %#x", addr)
	}
	return nil
}

// Decommit tells the OS the contents of the range are no longer needed.
func Decommit(addr, size uintptr) error {
	if size == 0 {
		return nil
	}
	if _, err := windows.VirtualAlloc(addr, size, windows.MEM_RESET, windows.PAGE_READWRITE); err != nil {
		return errors.Wrapf(err, "mmap: MEM_RESET %#x+%d", addr, size)
	}
	return nil
}
