// Package pagetrack records bucket page traffic for debugging and tests.
//
// A Tracker is a page hook: install it through the bucket engine options
// and it keeps three roaring64 bitmaps of page numbers (address / PageSize):
// pages currently live in a bucket, every page ever seen, and pages that
// were taken back from the free-page stack.
package pagetrack

import (
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/joshuapare/heapkit/internal/format"
)

// Tracker implements the bucket page hook.
type Tracker struct {
	mu       sync.Mutex
	live     *roaring64.Bitmap
	seen     *roaring64.Bitmap
	reused   *roaring64.Bitmap
	acquired uint64
	released uint64
	byBucket [format.NumBuckets]uint64
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		live:   roaring64.New(),
		seen:   roaring64.New(),
		reused: roaring64.New(),
	}
}

func pageNumber(page uintptr) uint64 {
	return uint64(page / format.PageSize)
}

// PageAcquired records a page entering a bucket.
func (t *Tracker) PageAcquired(page uintptr, bucket int, reused bool) {
	n := pageNumber(page)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live.Add(n)
	t.seen.Add(n)
	if reused {
		t.reused.Add(n)
	}
	t.acquired++
	if bucket >= 0 && bucket < format.NumBuckets {
		t.byBucket[bucket]++
	}
}

// PageReleased records a page going back to its source.
func (t *Tracker) PageReleased(page uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live.Remove(pageNumber(page))
	t.released++
}

// Seen reports whether page was ever acquired.
func (t *Tracker) Seen(page uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen.Contains(pageNumber(page))
}

// Reused reports whether page was ever taken from the free-page stack.
func (t *Tracker) Reused(page uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reused.Contains(pageNumber(page))
}

// Live reports whether page is held by a bucket or the free-page stack.
func (t *Tracker) Live(page uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live.Contains(pageNumber(page))
}

// LiveCount returns the number of live pages.
func (t *Tracker) LiveCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live.GetCardinality()
}

// SeenCount returns the number of distinct pages ever acquired.
func (t *Tracker) SeenCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen.GetCardinality()
}

// ReusedCount returns the number of distinct pages ever reused.
func (t *Tracker) ReusedCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reused.GetCardinality()
}

// Summary is a snapshot of tracker counters.
type Summary struct {
	Acquired uint64
	Released uint64
	Live     uint64
	Distinct uint64
	Reused   uint64
	ByBucket [format.NumBuckets]uint64
}

// Summary returns the current counters.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		Acquired: t.acquired,
		Released: t.released,
		Live:     t.live.GetCardinality(),
		Distinct: t.seen.GetCardinality(),
		Reused:   t.reused.GetCardinality(),
		ByBucket: t.byBucket,
	}
}
