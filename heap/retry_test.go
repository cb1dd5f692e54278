package heap

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/heap/provider/mock_provider"
)

// newMockAllocator returns an allocator over a mock provider whose
// successful calls are served by a GoHeap.
func newMockAllocator(t *testing.T) (*Allocator, *mock_provider.MockProvider, *provider.GoHeap) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := mock_provider.NewMockProvider(ctrl)
	g := provider.NewGoHeap()
	m.EXPECT().PageSize().Return(uintptr(4096)).AnyTimes()
	m.EXPECT().Deallocate(gomock.Any(), gomock.Any()).DoAndReturn(g.Deallocate).AnyTimes()
	return New(&Options{Provider: m}), m, g
}

func TestAllocator_PurgeAndRetry(t *testing.T) {
	a, m, g := newMockAllocator(t)

	gomock.InOrder(
		m.EXPECT().Allocate(uintptr(12288), uintptr(4096)).
			Return(uintptr(0), provider.ErrExhausted),
		m.EXPECT().Allocate(uintptr(12288), uintptr(4096)).
			DoAndReturn(g.Allocate),
	)

	p, err := a.Allocate(10000, 0)
	require.NoError(t, err)
	require.NotNil(t, p)
	st := a.Stats()
	assert.Equal(t, uint64(1), st.Retries)
	assert.Equal(t, uint64(1), st.Purges)
	assert.Zero(t, st.OutOfMemory)

	a.Deallocate(p, 10000, 0)
	require.NoError(t, a.Close())
	assert.Zero(t, g.Extents())
}

func TestAllocator_OutOfMemoryAfterRetry(t *testing.T) {
	a, m, _ := newMockAllocator(t)

	m.EXPECT().Allocate(gomock.Any(), gomock.Any()).
		Return(uintptr(0), provider.ErrExhausted).Times(2)

	p, err := a.Allocate(64, 0)
	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	st := a.Stats()
	assert.Equal(t, uint64(1), st.Retries)
	assert.Equal(t, uint64(1), st.OutOfMemory)
	assert.Zero(t, st.Live)
}

// TestAllocator_ReallocateFailureKeepsOriginal checks that a failed move
// leaves the original allocation intact and still owned by the allocator.
func TestAllocator_ReallocateFailureKeepsOriginal(t *testing.T) {
	a, m, g := newMockAllocator(t)

	gomock.InOrder(
		m.EXPECT().Allocate(uintptr(4096), uintptr(4096)).DoAndReturn(g.Allocate),
		m.EXPECT().Allocate(gomock.Any(), gomock.Any()).
			Return(uintptr(0), provider.ErrExhausted).Times(2),
	)

	p := mustAllocate(t, a, 1000, 0)
	fill(p, 1000, 0x42)

	q, err := a.Reallocate(p, 50000, 0)
	assert.Nil(t, q)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	requireFilled(t, p, 1000, 0x42)
	assert.Equal(t, uintptr(1008), a.AllocationSize(p))

	a.Deallocate(p, 1000, 0)
	require.NoError(t, a.Close())
}
