package bucket

import (
	"testing"

	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/pagetrack"
	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/format"
)

// newTestEngine returns an engine over a GoHeap provider and the provider.
func newTestEngine(t *testing.T, hook PageHook) (*Engine, *provider.GoHeap) {
	t.Helper()
	g := provider.NewGoHeap()
	e := New(NewProviderPages(g), &Options{Hook: hook})
	t.Cleanup(func() { e.GarbageCollect(true) })
	return e, g
}

func allocN(t *testing.T, e *Engine, size uintptr, n int) []uintptr {
	t.Helper()
	out := make([]uintptr, n)
	for i := range out {
		p := e.Alloc(size)
		require.NotZero(t, p, "alloc %d of %d bytes", i, size)
		out[i] = p
	}
	return out
}

// TestEngine_PageReuseAcrossClasses fills exactly one page of 8-byte
// elements, frees it, and checks that the next size class is served from
// the same page before any new page is requested.
func TestEngine_PageReuseAcrossClasses(t *testing.T) {
	tracker := pagetrack.New()
	e, _ := newTestEngine(t, tracker)

	n := int(format.PageCapacity(8))
	small := allocN(t, e, 8, n)
	page := format.PageOf(small[0])
	for _, p := range small {
		require.Equal(t, page, format.PageOf(p))
	}
	require.Equal(t, uint64(1), e.Stats().PageGrows)

	for _, p := range small {
		e.Free(p)
	}
	require.Equal(t, 1, e.Stats().StackPages, "empty page should be staged on the free-page stack")
	require.False(t, e.Owns(small[0]), "staged page must not be owned by a bucket")

	larger := allocN(t, e, 16, n)
	assert.Equal(t, page, format.PageOf(larger[0]), "first 16-byte element should reuse the freed page")
	assert.True(t, tracker.Reused(page))
	assert.Equal(t, uint64(2), e.Stats().PageGrows)
	assert.Equal(t, uint64(1), e.Stats().Recarves)
	assert.Equal(t, uint64(2), tracker.SeenCount())

	for _, p := range larger {
		assert.Equal(t, uintptr(16), e.ElementSize(p))
		e.Free(p)
	}
}

func TestEngine_SameClassReuseKeepsFreeList(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	p := e.Alloc(24)
	page := format.PageOf(p)
	e.Free(p)
	require.Equal(t, 1, e.Stats().StackPages)

	q := e.Alloc(24)
	assert.Equal(t, page, format.PageOf(q))
	assert.Zero(t, e.Stats().Recarves)
	assert.Equal(t, uint64(1), e.Stats().PageReuses)
	e.Free(q)
}

// TestEngine_KeepsEmptyFrontPage checks that an empty page stays in its
// bucket while it is the only page with room and full pages follow it.
func TestEngine_KeepsEmptyFrontPage(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	full := allocN(t, e, 8, int(format.PageCapacity(8)))
	extra := e.Alloc(8)
	require.NotEqual(t, format.PageOf(full[0]), format.PageOf(extra))

	e.Free(extra)
	assert.Zero(t, e.Stats().StackPages)
	assert.True(t, e.Owns(extra))
	assert.Equal(t, int64(2), e.Stats().PagesInUse)

	again := e.Alloc(8)
	assert.Equal(t, format.PageOf(extra), format.PageOf(again))
	assert.Equal(t, uint64(2), e.Stats().PageGrows)

	e.Free(again)
	for _, p := range full {
		e.Free(p)
	}
	// The first page now empties behind a page with room, so it is staged.
	assert.Equal(t, 1, e.Stats().StackPages)
	assert.Equal(t, int64(1), e.Stats().PagesInUse)
}

func TestEngine_ElementsCarvedFromPageEnd(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	p := e.Alloc(48)
	page := format.PageOf(p)
	cap48 := format.PageCapacity(48)
	assert.Equal(t, page+format.PageSize-cap48*48, p)
	assert.GreaterOrEqual(t, p, page+format.PageHeaderSize)
	assert.Zero(t, p%16, "48-byte elements are 16-byte aligned")
	e.Free(p)
}

func TestEngine_MarkerStub(t *testing.T) {
	stubs := gostub.Stub(&markerSource, func() uintptr { return 0x5a5a1 })
	defer stubs.Reset()

	e, _ := newTestEngine(t, nil)
	p := e.Alloc(100)
	page := format.PageOf(p)

	assert.Equal(t, uintptr(0x5a5a1)^page, format.PageMarker(page))
	assert.True(t, e.Owns(p))

	format.SetPageMarker(page, 0)
	assert.False(t, e.Owns(p))
	assert.Panics(t, func() { e.Free(p) }, "corrupted marker")
	format.SetPageMarker(page, uintptr(0x5a5a1)^page)
	e.Free(p)
}

func TestEngine_ContractViolations(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	assert.Panics(t, func() { e.Alloc(0) })
	assert.Panics(t, func() { e.Alloc(513) })
	assert.Panics(t, func() { e.AllocDirect(format.NumBuckets) })

	p := e.Alloc(32)
	assert.Panics(t, func() { e.FreeDirect(p, format.BucketIndex(64)) }, "wrong size hint")
	e.FreeDirect(p, format.BucketIndex(32))
	assert.Panics(t, func() { e.Free(p) }, "double free of the last element")
}

// TestEngine_CheckFreesCatchesDoubleFree frees an element twice while its
// page still holds another live element. Only the free-list walk sees it.
func TestEngine_CheckFreesCatchesDoubleFree(t *testing.T) {
	g := provider.NewGoHeap()
	e := New(NewProviderPages(g), &Options{CheckFrees: true})
	t.Cleanup(func() { e.GarbageCollect(true) })

	ps := allocN(t, e, 32, 3)
	e.Free(ps[0])
	e.Free(ps[2])
	assert.Panics(t, func() { e.Free(ps[0]) }, "head of the free list")
	assert.Panics(t, func() { e.Free(ps[2]) }, "inside the free list")

	// The rejected frees left the page consistent.
	q := allocN(t, e, 32, 2)
	assert.ElementsMatch(t, []uintptr{ps[0], ps[2]}, q)
	for _, p := range append(q, ps[1]) {
		e.Free(p)
	}
	assert.Zero(t, e.Stats().PagesInUse)
}

func TestEngine_CheckFreesFromEnvironment(t *testing.T) {
	stubs := gostub.Stub(&checkFreesEnv, true)
	defer stubs.Reset()

	e, _ := newTestEngine(t, nil)
	ps := allocN(t, e, 64, 2)
	e.Free(ps[0])
	assert.Panics(t, func() { e.Free(ps[0]) })
	e.Free(ps[1])
}

func TestEngine_Realloc(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	p := e.Alloc(32)
	format.Fill(p, 32, 0xab)
	assert.Equal(t, p, e.Realloc(p, 32))
	assert.Equal(t, p, e.Realloc(p, 25), "same size class")

	q := e.Realloc(p, 100)
	require.NotZero(t, q)
	assert.Equal(t, uintptr(104), e.ElementSize(q))
	for _, b := range format.Bytes(q, 32) {
		require.Equal(t, byte(0xab), b)
	}

	r := e.ReallocAligned(q, 40, 16)
	require.NotZero(t, r)
	assert.Equal(t, uintptr(48), e.ElementSize(r))
	assert.Zero(t, r%16)
	assert.Equal(t, r, e.ReallocAligned(r, 48, 16))
	e.Free(r)
}

func TestEngine_PurgeReleasesEmptyPages(t *testing.T) {
	e, g := newTestEngine(t, nil)

	live := e.Alloc(8)
	staged := e.Alloc(64)
	e.Free(staged)
	require.Equal(t, 2, g.Extents())

	e.Purge()
	assert.Equal(t, 1, g.Extents(), "only the page with a live element remains")
	assert.Equal(t, uint64(1), e.Stats().PageReleases)
	assert.True(t, e.Owns(live))

	e.Free(live)
	e.Purge()
	assert.Zero(t, g.Extents())
	assert.Zero(t, e.Stats().PagesInUse)
}

func TestEngine_GarbageCollectForce(t *testing.T) {
	e, g := newTestEngine(t, nil)
	allocN(t, e, 8, 600)
	allocN(t, e, 512, 3)
	require.Equal(t, 3, g.Extents())

	e.GarbageCollect(false)
	assert.Equal(t, 3, g.Extents())

	e.GarbageCollect(true)
	assert.Zero(t, g.Extents())
	assert.Zero(t, e.Stats().PagesInUse)
}

func TestEngine_Queries(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	assert.Zero(t, e.MaxAllocation())
	assert.Zero(t, e.UnusedMemory())

	p := e.Alloc(256)
	assert.Equal(t, uintptr(256), e.MaxAllocation())
	assert.Equal(t, uintptr(format.PageSize-format.PageHeaderSize-256), e.UnusedMemory())
	e.Free(p)
	assert.Zero(t, e.MaxAllocation())
}

func TestEngine_AdoptMovesPages(t *testing.T) {
	g := provider.NewGoHeap()
	src := NewProviderPages(g)
	a := New(src, nil)
	b := New(src, nil)

	full := make([]uintptr, format.PageCapacity(512))
	for i := range full {
		full[i] = b.Alloc(512)
	}
	partial := b.Alloc(8)
	staged := b.Alloc(16)
	b.Free(staged)

	a.Adopt(b)
	assert.Zero(t, b.Stats().PagesInUse)
	assert.Equal(t, int64(2), a.Stats().PagesInUse)
	assert.Equal(t, 1, a.Stats().StackPages)
	assert.True(t, a.Owns(partial))
	assert.False(t, b.Owns(partial))

	for _, p := range full {
		a.Free(p)
	}
	a.Free(partial)
	a.GarbageCollect(false)
	assert.Zero(t, g.Extents())
}
