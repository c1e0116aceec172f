package paging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
)

func testFA(t *testing.T) *mem.FrameAllocator {
	t.Helper()
	return mem.NewFrameAllocator([]mem.Region{
		{Start: 0, Length: 256 * mem.PGSIZE, Kind: mem.RegionAvailable},
	})
}

func TestMapWalkUnmap(t *testing.T) {
	fa := testFA(t)
	as, err := New(fa, nil)
	require.NoError(t, err)

	dataFrame, ok := fa.Alloc()
	require.True(t, ok)

	va := mem.Va_t(0x1000)
	rc := as.Map(va, dataFrame, mem.PTE_P|mem.PTE_W|mem.PTE_U)
	require.Equal(t, errno.Ok, rc)

	pa, flags, ok := as.Walk(va)
	require.True(t, ok)
	require.Equal(t, dataFrame, pa)
	require.NotZero(t, flags&mem.PTE_W)

	old, ok := as.Unmap(va)
	require.True(t, ok)
	require.Equal(t, dataFrame, old)

	_, _, ok = as.Walk(va)
	require.False(t, ok)
}

func TestMapRefusesDoubleMap(t *testing.T) {
	fa := testFA(t)
	as, err := New(fa, nil)
	require.NoError(t, err)

	f1, _ := fa.Alloc()
	f2, _ := fa.Alloc()
	va := mem.Va_t(0x2000)

	require.Equal(t, errno.Ok, as.Map(va, f1, mem.PTE_P|mem.PTE_W))
	require.Equal(t, errno.EINVAL, as.Map(va, f2, mem.PTE_P|mem.PTE_W))
}

func TestCloneSharesKernelHalf(t *testing.T) {
	fa := testFA(t)
	kernel, err := New(fa, nil)
	require.NoError(t, err)

	kf, _ := fa.Alloc()
	kva := mem.Va_t(KernelSplit) << mem.PDSHIFT
	require.Equal(t, errno.Ok, kernel.Map(kva, kf, mem.PTE_P|mem.PTE_W))

	child, err := kernel.Clone(fa)
	require.NoError(t, err)

	pa, _, ok := child.Walk(kva)
	require.True(t, ok)
	require.Equal(t, kf, pa)

	// The user half must start empty even though the kernel has a
	// mapping at a low address.
	uf, _ := fa.Alloc()
	require.Equal(t, errno.Ok, kernel.Map(mem.Va_t(0x3000), uf, mem.PTE_P|mem.PTE_U))
	_, _, ok = child.Walk(mem.Va_t(0x3000))
	require.False(t, ok)
}

func TestTempMapRoundTrip(t *testing.T) {
	fa := testFA(t)
	as, err := New(fa, nil)
	require.NoError(t, err)

	f, ok := fa.Alloc()
	require.True(t, ok)

	buf, done := as.TempMap(f)
	require.Len(t, buf, mem.PGSIZE)
	buf[0] = 0x42
	done()

	require.Equal(t, byte(0x42), fa.Dmap(f)[0])
}

func TestDecodeFault(t *testing.T) {
	f := DecodeFault(errWrite|errUser, 0xdead1000)
	require.Equal(t, mem.Va_t(0xdead1000), f.VA)
	require.True(t, f.Write)
	require.True(t, f.User)
	require.False(t, f.Protection)
	require.False(t, f.Reserved)
	require.False(t, f.Fetch)
}
