//go:build linux || darwin || freebsd

package mmap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapUnix_ZeroedAndWritable(t *testing.T) {
	size := 4 * PageSize()
	p, err := Map(size, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, Unmap(p, size)) }()

	b := unsafe.Slice((*byte)(unsafe.Pointer(p)), size)
	for i := range b {
		require.Zero(t, b[i], "byte %d", i)
	}
	b[0], b[len(b)-1] = 0xaa, 0xbb
	assert.Equal(t, byte(0xaa), b[0])
	assert.Equal(t, byte(0xbb), b[len(b)-1])
}

func TestMapUnix_LargeAlignment(t *testing.T) {
	const align = 1 << 20
	size := 3 * PageSize()
	p, err := Map(size, align)
	require.NoError(t, err)
	defer func() { require.NoError(t, Unmap(p, size)) }()

	assert.Zero(t, p%align, "mapping %#x not aligned to %d", p, align)
	*(*byte)(unsafe.Pointer(p + size - 1)) = 1
}

func TestDecommitUnix_KeepsNeighbouringPage(t *testing.T) {
	size := 2 * PageSize()
	p, err := Map(size, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, Unmap(p, size)) }()

	b := unsafe.Slice((*byte)(unsafe.Pointer(p)), size)
	for i := range b {
		b[i] = 0x7f
	}
	require.NoError(t, Decommit(p+PageSize(), PageSize()))
	assert.Equal(t, byte(0x7f), b[0])
	assert.Equal(t, byte(0x7f), b[PageSize()-1])
}
