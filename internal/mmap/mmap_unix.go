//go:build linux || darwin || freebsd

package mmap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Supported reports whether Map is implemented on this platform.
const Supported = true

// PageSize returns the operating system page size.
func PageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

// Map returns size bytes of zeroed memory aligned to align. An alignment
// above the OS page size is met by over-mapping and trimming both ends.
func Map(size, align uintptr) (uintptr, error) {
	page := PageSize()
	if align <= page {
		p, err := unix.MmapPtr(-1, 0, nil, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			return 0, errors.Wrapf(err, "mmap: map %d bytes", size)
		}
		return uintptr(p), nil
	}

	total := size + align
	p, err := unix.MmapPtr(-1, 0, nil, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, errors.Wrapf(err, "mmap: map %d bytes", total)
	}
	base := uintptr(p)
	aligned := (base + align - 1) &^ (align - 1)
	if head := aligned - base; head > 0 {
		if err := Unmap(base, head); err != nil {
			return 0, err
		}
	}
	if tail := base + total - (aligned + size); tail > 0 {
		if err := Unmap(aligned+size, tail); err != nil {
			return 0, err
		}
	}
	return aligned, nil
}

// Unmap releases a region previously returned by Map. Any page-aligned
// subrange may be released.
func Unmap(addr, size uintptr) error {
	if err := unix.MunmapPtr(unsafe.Pointer(addr), size); err != nil {
		return errors.Wrapf(err, "mmap: unmap %#x+%d", addr, size)
	}
	return nil
}

// Decommit returns the physical pages behind a page-aligned range to the
// OS. The range stays mapped; on Linux it reads back as zero.
func Decommit(addr, size uintptr) error {
	if size == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return errors.Wrapf(err, "mmap: madvise %#x+%d", addr, size)
	}
	return nil
}
