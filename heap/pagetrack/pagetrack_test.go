package pagetrack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshuapare/heapkit/heap/bucket"
)

var _ bucket.PageHook = (*Tracker)(nil)

func TestTracker_Lifecycle(t *testing.T) {
	tr := New()
	const a, b = uintptr(0x10000), uintptr(0x20000)

	tr.PageAcquired(a, 0, false)
	tr.PageAcquired(b, 3, false)
	assert.True(t, tr.Live(a))
	assert.True(t, tr.Seen(b))
	assert.False(t, tr.Reused(a))
	assert.Equal(t, uint64(2), tr.LiveCount())

	tr.PageAcquired(a, 5, true)
	assert.True(t, tr.Reused(a))

	tr.PageReleased(b)
	assert.False(t, tr.Live(b))
	assert.True(t, tr.Seen(b))

	s := tr.Summary()
	assert.Equal(t, uint64(3), s.Acquired)
	assert.Equal(t, uint64(1), s.Released)
	assert.Equal(t, uint64(1), s.Live)
	assert.Equal(t, uint64(2), s.Distinct)
	assert.Equal(t, uint64(1), s.Reused)
	assert.Equal(t, uint64(1), s.ByBucket[3])
	assert.Equal(t, uint64(2), tr.SeenCount())
	assert.Equal(t, uint64(1), tr.ReusedCount())
}
