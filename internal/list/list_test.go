package list

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/testutil"
)

const nodeSize = 2 * nextOff

// nodes returns n two-word node addresses in scratch memory.
func nodes(t *testing.T, n int) []uintptr {
	t.Helper()
	base := testutil.Arena(t, uintptr(n)*nodeSize, 8)
	out := make([]uintptr, n)
	for i := range out {
		out[i] = base + uintptr(i)*nodeSize
	}
	return out
}

func collect(l *List) []uintptr {
	var out []uintptr
	for n := l.Front(); n != 0; n = l.Next(n) {
		out = append(out, n)
	}
	return out
}

func collectBackward(l *List) []uintptr {
	var out []uintptr
	for n := l.Back(); n != 0; n = l.Prev(n) {
		out = append([]uintptr{n}, out...)
	}
	return out
}

func TestList_PushAndRemove(t *testing.T) {
	ns := nodes(t, 4)
	var l List

	l.PushBack(ns[1])
	l.PushFront(ns[0])
	l.PushBack(ns[2])
	l.PushBack(ns[3])

	require.Equal(t, 4, l.Len())
	assert.Equal(t, ns, collect(&l))
	assert.Equal(t, ns, collectBackward(&l))

	l.Remove(ns[2])
	assert.Equal(t, []uintptr{ns[0], ns[1], ns[3]}, collect(&l))
	assert.False(t, l.Contains(ns[2]))

	l.Remove(ns[0])
	l.Remove(ns[3])
	assert.Equal(t, ns[1], l.Front())
	assert.Equal(t, ns[1], l.Back())

	assert.Equal(t, ns[1], l.PopFront())
	assert.Zero(t, l.Len())
	assert.Zero(t, l.Front())
	assert.Zero(t, l.Back())
	assert.Zero(t, l.PopFront())
}

func TestList_Move(t *testing.T) {
	ns := nodes(t, 3)
	var l List
	for _, n := range ns {
		l.PushBack(n)
	}

	l.MoveToFront(ns[2])
	assert.Equal(t, []uintptr{ns[2], ns[0], ns[1]}, collect(&l))

	l.MoveToBack(ns[2])
	assert.Equal(t, ns, collect(&l))

	l.MoveToBack(ns[2])
	l.MoveToFront(ns[0])
	assert.Equal(t, ns, collectBackward(&l))
	assert.Equal(t, 3, l.Len())
}

func TestList_Take(t *testing.T) {
	ns := nodes(t, 5)
	var a, b List
	a.PushBack(ns[0])
	a.PushBack(ns[1])
	b.PushBack(ns[2])
	b.PushBack(ns[3])
	b.PushBack(ns[4])

	a.Take(&b)
	assert.Equal(t, ns, collect(&a))
	assert.Equal(t, ns, collectBackward(&a))
	assert.Equal(t, 5, a.Len())
	assert.Zero(t, b.Len())

	var empty List
	empty.Take(&a)
	assert.Equal(t, ns, collect(&empty))
	assert.Zero(t, a.Front())
}
