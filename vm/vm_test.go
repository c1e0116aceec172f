package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
)

func newMM(t *testing.T) *MM {
	t.Helper()
	fa := mem.NewFrameAllocator([]mem.Region{
		{Start: 0, Length: 512 * mem.PGSIZE, Kind: mem.RegionAvailable},
	})
	as, err := paging.New(fa, nil)
	require.NoError(t, err)
	return NewMM(as, fa)
}

func TestInsertVMARejectsOverlap(t *testing.T) {
	mm := newMM(t)
	rc := mm.InsertVMA(&VMA{Start: 0x1000, End: 0x3000, Flags: Read | Write | User | Anon})
	require.Equal(t, errno.Ok, rc)

	rc = mm.InsertVMA(&VMA{Start: 0x2000, End: 0x4000, Flags: Read | User})
	require.Equal(t, errno.EINVAL, rc)

	rc = mm.InsertVMA(&VMA{Start: 0x3000, End: 0x4000, Flags: Read | User})
	require.Equal(t, errno.Ok, rc)
	require.True(t, mm.NonOverlapping())
}

func TestFindVMA(t *testing.T) {
	mm := newMM(t)
	require.Equal(t, errno.Ok, mm.InsertVMA(&VMA{Start: 0x1000, End: 0x2000, Flags: Read | User}))
	require.Equal(t, errno.Ok, mm.InsertVMA(&VMA{Start: 0x5000, End: 0x6000, Flags: Read | User}))

	v, next := mm.FindVMA(0x1500)
	require.NotNil(t, v)
	require.Nil(t, next)

	v, next = mm.FindVMA(0x3000)
	require.Nil(t, v)
	require.NotNil(t, next)
	require.Equal(t, mem.Va_t(0x5000), next.Start)

	v, next = mm.FindVMA(0x9000)
	require.Nil(t, v)
	require.Nil(t, next)
}

func TestFaultAnonymousZeroFill(t *testing.T) {
	mm := newMM(t)
	require.Equal(t, errno.Ok, mm.InsertVMA(&VMA{
		Start: 0x1000, End: 0x3000,
		Flags: Read | Write | User | Anon,
		Prot:  mem.PTE_P | mem.PTE_W | mem.PTE_U,
	}))

	rc := mm.Fault(paging.DecodeFault(0, 0x1000))
	require.Equal(t, errno.Ok, rc)

	pa, _, ok := mm.AS.Walk(0x1000)
	require.True(t, ok)
	require.True(t, allZero(mm.fa.Dmap(pa)))
}

func TestFaultWriteToReadOnlyKills(t *testing.T) {
	mm := newMM(t)
	require.Equal(t, errno.Ok, mm.InsertVMA(&VMA{
		Start: 0x1000, End: 0x2000,
		Flags: Read | User,
		Prot:  mem.PTE_P | mem.PTE_U,
	}))

	rc := mm.Fault(paging.Fault{VA: 0x1000, Write: true})
	require.Equal(t, Kill, rc)
}

func TestFaultGrowsDownExtendsStack(t *testing.T) {
	mm := newMM(t)
	require.Equal(t, errno.Ok, mm.InsertVMA(&VMA{
		Start: 0xBFFF0000, End: 0xC0000000,
		Flags: Read | Write | User | Anon | GrowsDown,
		Prot:  mem.PTE_P | mem.PTE_W | mem.PTE_U,
	}))

	rc := mm.Fault(paging.Fault{VA: 0xBFFEF000, Write: true})
	require.Equal(t, errno.Ok, rc)

	v, _ := mm.FindVMA(0xBFFEF000)
	require.NotNil(t, v)
	require.Equal(t, mem.Va_t(0xBFFEF000), v.Start)
}

func TestFaultNoVMAKills(t *testing.T) {
	mm := newMM(t)
	rc := mm.Fault(paging.Fault{VA: 0xdeadb000})
	require.Equal(t, Kill, rc)
}

func allZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
