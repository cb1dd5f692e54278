package tree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/format"
)

func newTestEngine(t *testing.T) (*Engine, *provider.GoHeap) {
	t.Helper()
	g := provider.NewGoHeap()
	e := New(g, nil)
	t.Cleanup(e.ReleaseAll)
	return e, g
}

// assertValid fails the test when the block chain and free tree disagree.
func assertValid(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.Validate())
}

func fill(p, n uintptr, b byte) { format.Fill(p, n, b) }

func requireFilled(t *testing.T, p, n uintptr, b byte) {
	t.Helper()
	for i, c := range format.Bytes(p, n) {
		if c != b {
			require.Failf(t, "corrupted payload", "byte %d of %#x is %#x, want %#x", i, p, c, b)
		}
	}
}

// TestTree_CoalesceBAC frees the middle block first, then its neighbours,
// and checks that a single free block covers the extent again so a large
// request is served without growing.
func TestTree_CoalesceBAC(t *testing.T) {
	e, _ := newTestEngine(t)

	a := e.Alloc(1024)
	b := e.Alloc(1024)
	c := e.Alloc(1024)
	require.NotZero(t, a)
	require.NotZero(t, b)
	require.NotZero(t, c)
	require.Equal(t, uint64(1), e.Stats().Grows, "three 1 KiB blocks fit one extent")
	assertValid(t, e)

	e.Free(b)
	e.Free(a)
	e.Free(c)
	assertValid(t, e)
	require.Equal(t, 1, e.FreeBlocks())
	require.Equal(t, uintptr(format.PageSize-3*format.BlockHeaderSize), e.MaxAllocation())

	big := e.Alloc(3104)
	require.NotZero(t, big)
	assert.Equal(t, a, big, "coalesced block starts where A was")
	assert.Equal(t, uint64(1), e.Stats().Grows, "no growth after coalescing")
	assertValid(t, e)
	e.Free(big)
}

func TestTree_MinimumBlockAndRounding(t *testing.T) {
	e, _ := newTestEngine(t)

	p := e.Alloc(1)
	assert.Equal(t, uintptr(format.FreeNodeSize), e.Size(p))
	q := e.Alloc(600)
	assert.Equal(t, uintptr(608), e.Size(q))
	assert.Zero(t, p%16)
	assert.Zero(t, q%16)
	e.Free(p)
	e.Free(q)
	assertValid(t, e)
}

func TestTree_DoubleFreePanics(t *testing.T) {
	e, _ := newTestEngine(t)
	p := e.Alloc(2000)
	e.Free(p)
	assert.Zero(t, e.Size(p))
	assert.Panics(t, func() { e.Free(p) })
}

func TestTree_AllocAligned(t *testing.T) {
	e, _ := newTestEngine(t)

	cases := []struct {
		size, alignment uintptr
	}{
		{100, 32},
		{1000, 256},
		{5000, 4096},
		{64, 1 << 16},
		{700, 512},
	}
	var ptrs []uintptr
	for _, tc := range cases {
		p := e.AllocAligned(tc.size, tc.alignment)
		require.NotZero(t, p)
		assert.Zero(t, p%tc.alignment, "size %d alignment %d", tc.size, tc.alignment)
		assert.GreaterOrEqual(t, e.Size(p), tc.size)
		fill(p, tc.size, 0x11)
		ptrs = append(ptrs, p)
		assertValid(t, e)
	}
	for _, p := range ptrs {
		e.Free(p)
	}
	assertValid(t, e)
	e.Purge()
	assert.Zero(t, e.Stats().Extents)
}

func TestTree_AlignedReusesFreeBlock(t *testing.T) {
	e, _ := newTestEngine(t)

	hold := e.Alloc(100)
	p := e.AllocAligned(256, 256)
	require.NotZero(t, p)
	e.Free(p)
	grows := e.Stats().Grows

	q := e.AllocAligned(256, 256)
	assert.Zero(t, q%256)
	assert.Equal(t, grows, e.Stats().Grows)
	assertValid(t, e)
	e.Free(q)
	e.Free(hold)
}

func TestTree_BucketPage(t *testing.T) {
	e, _ := newTestEngine(t)

	neighbour := e.Alloc(200)
	fill(neighbour, 200, 0x33)

	page := e.AllocBucketPage()
	require.NotZero(t, page)
	assert.Zero(t, page&format.PageMask)
	assert.True(t, format.BlockUsed(page))
	assert.Equal(t, uintptr(format.PageSize-format.BlockHeaderSize), format.BlockSize(page))
	assert.Equal(t, int64(1), e.Stats().BucketPages)
	assertValid(t, e)

	// The page owner may use everything after the block header.
	fill(page+format.BlockHeaderSize, format.PageSize-format.BlockHeaderSize, 0xcd)
	assertValid(t, e)
	requireFilled(t, neighbour, 200, 0x33)

	second := e.AllocBucketPage()
	require.NotZero(t, second)
	assert.NotEqual(t, page, second)
	assertValid(t, e)

	src := e.BucketPages()
	third, err := src.AllocPage()
	require.NoError(t, err)
	src.FreePage(third)

	e.FreeBucketPage(page)
	e.FreeBucketPage(second)
	assert.Zero(t, e.Stats().BucketPages)
	assert.Panics(t, func() { e.FreeBucketPage(page) })
	assertValid(t, e)

	e.Free(neighbour)
	e.Purge()
	assert.Zero(t, e.Stats().Extents)
}

func TestTree_ReallocPaths(t *testing.T) {
	t.Run("shrink in place", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := e.Alloc(2048)
		fill(p, 2048, 1)
		q := e.Realloc(p, 512)
		assert.Equal(t, p, q)
		assert.Equal(t, uintptr(512), e.Size(q))
		requireFilled(t, q, 512, 1)
		assertValid(t, e)
	})

	t.Run("grow into successor", func(t *testing.T) {
		e, _ := newTestEngine(t)
		a := e.Alloc(512)
		b := e.Alloc(512)
		c := e.Alloc(512)
		fill(a, 512, 2)
		e.Free(b)
		q := e.Realloc(a, 1000)
		assert.Equal(t, a, q)
		assert.Equal(t, uintptr(1040), e.Size(q))
		requireFilled(t, q, 512, 2)
		assertValid(t, e)
		e.Free(c)
	})

	t.Run("slide into predecessor", func(t *testing.T) {
		e, _ := newTestEngine(t)
		a := e.Alloc(512)
		b := e.Alloc(512)
		c := e.Alloc(512)
		fill(b, 512, 3)
		e.Free(a)
		q := e.Realloc(b, 1000)
		assert.Equal(t, a, q)
		assert.GreaterOrEqual(t, e.Size(q), uintptr(1008))
		requireFilled(t, q, 512, 3)
		assertValid(t, e)
		e.Free(c)
	})

	t.Run("move", func(t *testing.T) {
		e, _ := newTestEngine(t)
		a := e.Alloc(512)
		b := e.Alloc(512)
		fill(a, 512, 4)
		q := e.Realloc(a, 20000)
		require.NotZero(t, q)
		assert.NotEqual(t, a, q)
		requireFilled(t, q, 512, 4)
		assertValid(t, e)
		e.Free(b)
	})

	t.Run("aligned slide into predecessor", func(t *testing.T) {
		e, _ := newTestEngine(t)
		a := e.AllocAligned(1024, 64)
		b := e.AllocAligned(256, 64)
		c := e.Alloc(512)
		fill(b, 256, 5)
		e.Free(a)
		q := e.ReallocAligned(b, 1100, 64)
		require.NotZero(t, q)
		assert.Zero(t, q%64)
		assert.Less(t, q, b)
		requireFilled(t, q, 256, 5)
		assertValid(t, e)
		e.Free(c)
	})
}

func TestTree_Resize(t *testing.T) {
	e, _ := newTestEngine(t)
	a := e.Alloc(512)
	b := e.Alloc(512)
	c := e.Alloc(512)

	assert.Equal(t, uintptr(512), e.Resize(a, 4000), "used successor blocks growth")
	e.Free(b)
	assert.Equal(t, uintptr(1040), e.Resize(a, 1000))
	assert.Equal(t, uintptr(256), e.Resize(a, 256))
	assertValid(t, e)
	e.Free(a)
	e.Free(c)
	assertValid(t, e)
}

type decommitRecorder struct {
	*provider.GoHeap
	ranges [][2]uintptr
}

func (d *decommitRecorder) Decommit(ptr, size uintptr) error {
	d.ranges = append(d.ranges, [2]uintptr{ptr, size})
	return nil
}

func TestTree_PurgeReleasesAndDecommits(t *testing.T) {
	rec := &decommitRecorder{GoHeap: provider.NewGoHeap()}
	e := New(rec, &Options{Decommit: true})
	t.Cleanup(e.ReleaseAll)

	x := e.Alloc(1 << 16)
	y := e.Alloc(100)
	lone := e.Alloc(1 << 20)
	require.Equal(t, 2, e.Stats().Extents)

	e.Free(x)
	e.Free(lone)
	e.Purge()

	st := e.Stats()
	assert.Equal(t, 1, st.Extents, "the extent with no live blocks is released")
	assert.Equal(t, uint64(1), st.Releases)
	require.Len(t, rec.ranges, 1)
	start, size := rec.ranges[0][0], rec.ranges[0][1]
	assert.Zero(t, start%4096)
	assert.Zero(t, size%4096)
	assert.GreaterOrEqual(t, start, x+format.FreeNodeSize)
	assert.LessOrEqual(t, start+size, format.HeaderOf(y))
	assert.Equal(t, uint64(1), st.Decommits)
	assertValid(t, e)

	e.Free(y)
	e.Purge()
	assert.Zero(t, e.Stats().Extents)
	assert.Zero(t, rec.Extents())
}

func TestTree_Adopt(t *testing.T) {
	g := provider.NewGoHeap()
	a := New(g, nil)
	b := New(g, nil)
	t.Cleanup(a.ReleaseAll)

	pa := a.Alloc(3000)
	pb := b.Alloc(5000)
	spare := b.Alloc(100)
	b.Free(spare)

	a.Adopt(b)
	assert.Zero(t, b.Stats().Extents)
	assert.Equal(t, 2, a.Stats().Extents)
	assertValid(t, a)

	a.Free(pb)
	a.Free(pa)
	assertValid(t, a)
	a.Purge()
	assert.Zero(t, g.Extents())

	assert.Panics(t, func() { a.Adopt(New(provider.NewGoHeap(), nil)) })
}

// TestTree_RandomWorkload runs a fixed-seed mix of allocations, frees and
// reallocations, checking payload integrity and structural invariants.
func TestTree_RandomWorkload(t *testing.T) {
	e, _ := newTestEngine(t)
	rng := rand.New(rand.NewSource(7))

	type live struct {
		ptr, size uintptr
		tag       byte
	}
	var blocks []live
	tag := byte(1)

	for i := 0; i < 3000; i++ {
		switch op := rng.Intn(10); {
		case op < 5 || len(blocks) == 0:
			size := uintptr(1 + rng.Intn(9000))
			var p uintptr
			if rng.Intn(4) == 0 {
				p = e.AllocAligned(size, uintptr(1)<<(4+rng.Intn(9)))
			} else {
				p = e.Alloc(size)
			}
			require.NotZero(t, p)
			fill(p, size, tag)
			blocks = append(blocks, live{p, size, tag})
			tag++
		case op < 8:
			j := rng.Intn(len(blocks))
			b := blocks[j]
			requireFilled(t, b.ptr, b.size, b.tag)
			e.Free(b.ptr)
			blocks[j] = blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
		default:
			j := rng.Intn(len(blocks))
			b := blocks[j]
			size := uintptr(1 + rng.Intn(9000))
			p := e.Realloc(b.ptr, size)
			require.NotZero(t, p)
			requireFilled(t, p, min(size, b.size), b.tag)
			fill(p, size, b.tag)
			blocks[j] = live{p, size, b.tag}
		}
		if i%50 == 0 {
			assertValid(t, e)
		}
		if i%500 == 0 {
			e.Purge()
			assertValid(t, e)
		}
	}
	for _, b := range blocks {
		requireFilled(t, b.ptr, b.size, b.tag)
		e.Free(b.ptr)
	}
	assertValid(t, e)
	e.Purge()
	assert.Zero(t, e.Stats().Extents)
	assert.Zero(t, e.FreeBlocks())
}
