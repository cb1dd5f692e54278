// Package testutil provides scratch memory for tests that work on raw
// addresses.
package testutil

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/mmap"
)

// Arena returns n zeroed bytes aligned to align (a power of two, at most
// the OS page size) that live until the test ends.
//
// The memory is mapped outside the Go heap, so tests may do arbitrary
// arithmetic on the returned address and convert the result back to a
// pointer, which checkptr (enabled by -race) rejects for Go objects. On
// platforms without anonymous mappings it falls back to a Go buffer.
//
// Example:
//
//	base := testutil.Arena(t, 4096, 16)
func Arena(t *testing.T, n, align uintptr) uintptr {
	t.Helper()
	if n == 0 {
		n = 1
	}
	if mmap.Supported {
		size := (n + mmap.PageSize() - 1) &^ (mmap.PageSize() - 1)
		base, err := mmap.Map(size, 0)
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, mmap.Unmap(base, size)) })
		return base
	}

	buf := make([]byte, n+align)
	t.Cleanup(func() { runtime.KeepAlive(buf) })
	return (uintptr(unsafe.Pointer(&buf[0])) + align - 1) &^ (align - 1)
}
