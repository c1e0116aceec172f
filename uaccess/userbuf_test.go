package uaccess

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
	"github.com/TorMartin-ops/nucleus/vm"
)

func newTestSpace(t *testing.T) (*paging.AddressSpace, *vm.MM, *mem.FrameAllocator) {
	t.Helper()
	fa := mem.NewFrameAllocator([]mem.Region{
		{Start: 0, Length: 1024 * mem.PGSIZE, Kind: mem.RegionAvailable},
	})
	as, err := paging.New(fa, nil)
	require.NoError(t, err)
	mm := vm.NewMM(as, fa)
	return as, mm, fa
}

func mapAnon(t *testing.T, mm *vm.MM, start, end mem.Va_t, write bool) {
	t.Helper()
	flags := vm.Read | vm.User | vm.Anon
	prot := mem.Pa_t(mem.PTE_P | mem.PTE_U)
	if write {
		flags |= vm.Write
		prot |= mem.PTE_W
	}
	require.Equal(t, errno.Ok, mm.InsertVMA(&vm.VMA{Start: start, End: end, Flags: flags, Prot: prot}))
}

func TestNewRejectsKernelHalfAndOversizeRanges(t *testing.T) {
	_, mm, fa := newTestSpace(t)
	as := mm.AS

	_, rc := New(as, mm, fa, mem.KernelSpaceVirtStart, 1, false)
	require.Equal(t, errno.EFAULT, rc)

	_, rc = New(as, mm, fa, mem.KernelSpaceVirtStart-1, 2, false)
	require.Equal(t, errno.EFAULT, rc)

	_, rc = New(as, mm, fa, 0x1000, MaxBufferLen+1, false)
	require.Equal(t, errno.E2BIG, rc)
}

func TestNewRejectsUnmappedAndWriteToReadOnly(t *testing.T) {
	_, mm, fa := newTestSpace(t)
	as := mm.AS

	_, rc := New(as, mm, fa, 0x1000, 16, false)
	require.Equal(t, errno.EFAULT, rc)

	mapAnon(t, mm, 0x1000, 0x2000, false)
	_, rc = New(as, mm, fa, 0x1000, 16, true)
	require.Equal(t, errno.EFAULT, rc)

	buf, rc := New(as, mm, fa, 0x1000, 16, false)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 16, buf.Len())
}

func TestCopyRoundTripDemandFaults(t *testing.T) {
	_, mm, fa := newTestSpace(t)
	as := mm.AS
	mapAnon(t, mm, 0x2000, 0x4000, true)

	wbuf, rc := New(as, mm, fa, 0x2000, 8, true)
	require.Equal(t, errno.Ok, rc)
	n, rc := wbuf.CopyOut([]byte("deadbeef"))
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 8, n)

	rbuf, rc := New(as, mm, fa, 0x2000, 8, false)
	require.Equal(t, errno.Ok, rc)
	out := make([]byte, 8)
	n, rc = rbuf.CopyIn(out)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 8, n)
	require.Equal(t, "deadbeef", string(out))
}

func TestCopySpansMultiplePages(t *testing.T) {
	_, mm, fa := newTestSpace(t)
	as := mm.AS
	mapAnon(t, mm, 0x10000, 0x10000+3*mem.PGSIZE, true)

	src := make([]byte, mem.PGSIZE+5)
	for i := range src {
		src[i] = byte(i)
	}
	wbuf, rc := New(as, mm, fa, 0x10000+mem.Va_t(mem.PGSIZE/2), len(src), true)
	require.Equal(t, errno.Ok, rc)
	n, rc := wbuf.CopyOut(src)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, len(src), n)

	rbuf, rc := New(as, mm, fa, 0x10000+mem.Va_t(mem.PGSIZE/2), len(src), false)
	require.Equal(t, errno.Ok, rc)
	dst := make([]byte, len(src))
	n, rc = rbuf.CopyIn(dst)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, len(src), n)
	require.Equal(t, src, dst)
}

func TestCopyInStringFitsAndTruncates(t *testing.T) {
	_, mm, fa := newTestSpace(t)
	as := mm.AS
	mapAnon(t, mm, 0x3000, 0x4000, true)

	wbuf, rc := New(as, mm, fa, 0x3000, 6, true)
	require.Equal(t, errno.Ok, rc)
	_, rc = wbuf.CopyOut([]byte("hi\x00xx"))
	require.Equal(t, errno.Ok, rc)

	s, rc := CopyInString(as, mm, fa, 0x3000, MaxPathLen)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, "hi", s)

	_, rc = CopyInString(as, mm, fa, 0x3000, 2)
	require.Equal(t, errno.ENAMETOOLONG, rc)
}

func TestCopyInStringArrayStopsAtNullPointer(t *testing.T) {
	_, mm, fa := newTestSpace(t)
	as := mm.AS
	mapAnon(t, mm, 0x5000, 0x7000, true)

	// argv vector at 0x5000: two pointers then a NULL terminator.
	strA := mem.Va_t(0x5100)
	strB := mem.Va_t(0x5200)

	writeCString(t, as, mm, fa, strA, "one")
	writeCString(t, as, mm, fa, strB, "two")

	vecBuf, rc := New(as, mm, fa, 0x5000, 12, true)
	require.Equal(t, errno.Ok, rc)
	var raw [12]byte
	putU32Test(raw[0:4], uint32(strA))
	putU32Test(raw[4:8], uint32(strB))
	putU32Test(raw[8:12], 0)
	_, rc = vecBuf.CopyOut(raw[:])
	require.Equal(t, errno.Ok, rc)

	argv, rc := CopyInStringArray(as, mm, fa, 0x5000)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, []string{"one", "two"}, argv)
}

func writeCString(t *testing.T, as *paging.AddressSpace, mm *vm.MM, fa *mem.FrameAllocator, va mem.Va_t, s string) {
	t.Helper()
	data := append([]byte(s), 0)
	buf, rc := New(as, mm, fa, va, len(data), true)
	require.Equal(t, errno.Ok, rc)
	_, rc = buf.CopyOut(data)
	require.Equal(t, errno.Ok, rc)
}

func putU32Test(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
