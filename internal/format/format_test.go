package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/testutil"
)

// arena returns a 16-byte aligned scratch region of n bytes.
func arena(t *testing.T, n int) uintptr {
	t.Helper()
	return testutil.Arena(t, uintptr(n), 16)
}

func TestBucketIndex_Boundaries(t *testing.T) {
	assert.Equal(t, 0, BucketIndex(1))
	assert.Equal(t, 0, BucketIndex(8))
	assert.Equal(t, 1, BucketIndex(9))
	assert.Equal(t, 1, BucketIndex(16))
	assert.Equal(t, NumBuckets-1, BucketIndex(MaxSmallAllocation))

	for i := 0; i < NumBuckets; i++ {
		assert.Equal(t, i, BucketIndex(BucketSize(i)), "class %d", i)
	}
}

func TestAlign_Helpers(t *testing.T) {
	assert.Equal(t, uintptr(8), AlignUp(1, 8))
	assert.Equal(t, uintptr(8), AlignUp(8, 8))
	assert.Equal(t, uintptr(8192), AlignUp(4097, 4096))
	assert.Equal(t, uintptr(4096), AlignDown(8191, 4096))
	assert.Equal(t, uintptr(32), AlignBlock(17))

	assert.True(t, IsPow2(1))
	assert.True(t, IsPow2(4096))
	assert.False(t, IsPow2(0))
	assert.False(t, IsPow2(24))

	assert.Equal(t, uintptr(MinAllocation), ClampSmall(1))
	assert.True(t, IsSmall(512))
	assert.False(t, IsSmall(513))
}

func TestPageCapacity(t *testing.T) {
	assert.Equal(t, uintptr(504), PageCapacity(8))
	assert.Equal(t, uintptr(7), PageCapacity(512))

	page := uintptr(0x10000)
	first := PageFirstElem(page, 8)
	assert.Equal(t, page+PageHeaderSize, first, "8-byte elements fill the page exactly")
	assert.GreaterOrEqual(t, PageFirstElem(page, 24), page+PageHeaderSize)
}

func TestOverflow(t *testing.T) {
	_, ok := AddOverflowSafe(math.MaxUint, 1)
	assert.False(t, ok)
	v, ok := AddOverflowSafe(2, 3)
	require.True(t, ok)
	assert.Equal(t, uintptr(5), v)

	_, ok = MulOverflowSafe(math.MaxUint/2+1, 2)
	assert.False(t, ok)
	v, ok = MulOverflowSafe(0, math.MaxUint)
	require.True(t, ok)
	assert.Zero(t, v)

	assert.True(t, RequestFits(1<<20, 8))
	assert.False(t, RequestFits(math.MaxUint-16, 8))
}

// TestBlock_LinkUnlink builds [fence][a][fence] and checks that linking a
// block inside a and unlinking it again restores the original chain.
func TestBlock_LinkUnlink(t *testing.T) {
	base := arena(t, 512)

	front := base
	a := front + BlockHeaderSize
	back := base + 512 - BlockHeaderSize

	ResetBlock(front)
	SetBlockPrev(front, 0)
	SetBlockUsed(front)
	ResetBlock(a)
	SetBlockPrev(a, front)
	ResetBlock(back)
	SetBlockUsed(back)
	SetBlockPrev(back, a)
	SetBlockNext(a, back)

	require.Equal(t, back, NextOf(a))
	require.Equal(t, uintptr(512-3*BlockHeaderSize), BlockSize(a))
	require.Zero(t, BlockSize(front))
	require.True(t, BlockUsed(front))
	require.False(t, BlockUsed(a))

	b := BlockMem(a) + 128
	ResetBlock(b)
	LinkBlockAfter(b, a)

	assert.Equal(t, uintptr(128), BlockSize(a))
	assert.Equal(t, b, NextOf(a))
	assert.Equal(t, back, NextOf(b))
	assert.Equal(t, a, BlockPrev(b))
	assert.Equal(t, b, BlockPrev(back))

	UnlinkBlock(b)
	assert.Equal(t, back, NextOf(a))
	assert.Equal(t, a, BlockPrev(back))
}

func TestBlock_SizeKeepsFlags(t *testing.T) {
	h := arena(t, 64)
	ResetBlock(h)
	SetBlockUsed(h)
	SetBlockSize(h, 48)
	assert.True(t, BlockUsed(h))
	assert.Equal(t, uintptr(48), BlockSize(h))
	assert.Equal(t, uintptr(48|BlockUsedFlag), Word(h+blockSizeOff), "the used flag lives in the size word")

	SetBlockUnused(h)
	assert.False(t, BlockUsed(h))
	assert.Equal(t, uintptr(48), BlockSize(h))

	assert.Panics(t, func() { SetBlockSize(h, 49) })
}

func TestPage_Fields(t *testing.T) {
	page := AlignUp(arena(t, 2*PageSize), PageSize)

	SetPageBucket(page, 5)
	SetPageCount(page, 17)
	SetPageMarker(page, 0xabc)
	SetPageOwner(page, 3)
	SetPageFreeList(page, page+128)

	assert.Equal(t, uint32(5), PageBucket(page))
	assert.Equal(t, uint32(17), PageCount(page))
	assert.Equal(t, uintptr(0xabc), PageMarker(page))
	assert.Equal(t, uintptr(3), PageOwner(page))
	assert.Equal(t, page+128, PageFreeList(page))
	assert.Equal(t, uintptr(48), PageElemSize(page))

	assert.Equal(t, page, PageOf(page+PageSize-1))
	assert.Equal(t, page, PageFromLink(PageLink(page)))
}

func TestMoveAndFill(t *testing.T) {
	p := arena(t, 64)
	Fill(p, 32, 0x5a)
	for _, b := range Bytes(p, 32) {
		require.Equal(t, byte(0x5a), b)
	}
	Fill(p, 8, 1)
	Move(p+4, p, 16)
	got := Bytes(p, 20)
	assert.Equal(t, []byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a}, got)
}
