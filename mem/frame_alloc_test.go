package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testRegions() []Region {
	return []Region{
		{Start: 0, Length: 16 * PGSIZE, Kind: RegionAvailable},
	}
}

func TestFrameAllocatorAllocIsNotFree(t *testing.T) {
	fa := NewFrameAllocator(testRegions())
	before := fa.Free()

	f, ok := fa.Alloc()
	require.True(t, ok)
	require.Equal(t, before-1, fa.Free())
	require.Equal(t, 1, fa.Refcount(f))
}

func TestFrameAllocatorRefcounting(t *testing.T) {
	fa := NewFrameAllocator(testRegions())
	f, ok := fa.Alloc()
	require.True(t, ok)

	fa.Get(f)
	require.Equal(t, 2, fa.Refcount(f))

	require.False(t, fa.Put(f))
	require.Equal(t, 1, fa.Refcount(f))

	require.True(t, fa.Put(f))
	require.Equal(t, 0, fa.Refcount(f))
}

func TestFrameAllocatorExhaustion(t *testing.T) {
	fa := NewFrameAllocator([]Region{{Start: 0, Length: 2 * PGSIZE, Kind: RegionAvailable}})
	_, ok1 := fa.Alloc()
	_, ok2 := fa.Alloc()
	_, ok3 := fa.Alloc()
	require.True(t, ok1)
	require.True(t, ok2)
	require.False(t, ok3)
	require.Equal(t, int64(1), fa.Failures())
}
