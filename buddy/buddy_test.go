package buddy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New(1 << 16)
	p := a.Alloc(100)
	require.NotZero(t, p)

	buf := a.Bytes(p, 100)
	for i := range buf {
		buf[i] = byte(i)
	}
	a.Free(p)
	require.True(t, a.NoFreeBuddyPairs())
}

func TestFreeMergesBuddies(t *testing.T) {
	a := New(1 << 16)
	p1 := a.AllocRaw(MinOrder)
	p2 := a.AllocRaw(MinOrder)
	require.NotZero(t, p1)
	require.NotZero(t, p2)

	a.FreeRaw(p1, MinOrder)
	a.FreeRaw(p2, MinOrder)
	require.True(t, a.NoFreeBuddyPairs())

	// After freeing both halves, the region should have re-coalesced
	// enough to satisfy a full-size allocation again.
	p3 := a.AllocRaw(order(1 << 16))
	require.NotZero(t, p3)
}

func TestAllocExhaustion(t *testing.T) {
	a := New(1 << uint(MinOrder+1))
	p1 := a.AllocRaw(MinOrder)
	p2 := a.AllocRaw(MinOrder)
	require.NotZero(t, p1)
	require.NotZero(t, p2)

	p3 := a.AllocRaw(MinOrder)
	require.Zero(t, p3)
	require.Equal(t, int64(1), a.Failures())
}
