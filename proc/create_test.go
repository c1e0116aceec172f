package proc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
)

// buildELF assembles a minimal ELF32 executable with a single
// read+exec PT_LOAD segment containing code, matching the on-disk
// layout elf.Parse expects field-by-field.
func buildELF(t *testing.T, entry uint32, code []byte) []byte {
	t.Helper()
	const (
		ehdrSize = 52
		phdrSize = 32
	)
	vaddr := uint32(0x08048000)

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 1, 1}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))          // e_type ET_EXEC
	binary.Write(&buf, binary.LittleEndian, uint16(3))          // e_machine (unchecked)
	binary.Write(&buf, binary.LittleEndian, uint32(1))          // e_version
	binary.Write(&buf, binary.LittleEndian, entry)              // e_entry
	binary.Write(&buf, binary.LittleEndian, uint32(ehdrSize))   // e_phoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))          // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))          // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehdrSize))   // e_ehsize
	binary.Write(&buf, binary.LittleEndian, uint16(phdrSize))   // e_phentsize
	binary.Write(&buf, binary.LittleEndian, uint16(1))          // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))          // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0))          // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))          // e_shstrndx
	require.Equal(t, ehdrSize, buf.Len())

	fileOff := uint32(ehdrSize + phdrSize)
	binary.Write(&buf, binary.LittleEndian, uint32(1))           // p_type PT_LOAD
	binary.Write(&buf, binary.LittleEndian, fileOff)              // p_offset
	binary.Write(&buf, binary.LittleEndian, vaddr)                // p_vaddr
	binary.Write(&buf, binary.LittleEndian, vaddr)                // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint32(len(code)))    // p_filesz
	binary.Write(&buf, binary.LittleEndian, uint32(len(code)))    // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint32(1|4))          // p_flags R|X
	binary.Write(&buf, binary.LittleEndian, uint32(mem.PGSIZE))   // p_align
	require.Equal(t, int(fileOff), buf.Len())

	buf.Write(code)
	return buf.Bytes()
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	fa := mem.NewFrameAllocator([]mem.Region{
		{Start: 0, Length: 4096 * mem.PGSIZE, Kind: mem.RegionAvailable},
	})
	kernelAS, err := paging.New(fa, nil)
	require.NoError(t, err)
	return NewTable(fa, kernelAS)
}

func TestCreateUserProcessBuildsRunnableImage(t *testing.T) {
	table := newTestTable(t)
	entry := uint32(0x08048000)
	img := buildELF(t, entry, []byte{0x90, 0x90, 0xf4}) // nop nop hlt

	p, rc := CreateUserProcess(table, InitPID, img)
	require.Equal(t, errno.Ok, rc)
	require.NotNil(t, p)

	require.Equal(t, mem.Va_t(entry), p.EntryPoint)
	require.Equal(t, UserStackTopVirt, p.UserStackTop)
	require.NotZero(t, p.KernelESPForSwitch)

	pa, flags, ok := p.MM.AS.Walk(mem.Va_t(entry))
	require.True(t, ok)
	require.NotZero(t, flags&mem.PTE_U)
	codeByte := table.fa.Dmap(pa)[0]
	require.Equal(t, byte(0x90), codeByte)

	_, flags, ok = p.MM.AS.Walk(UserStackTopVirt - mem.Va_t(mem.PGSIZE))
	require.True(t, ok)
	require.NotZero(t, flags&mem.PTE_W)
	require.NotZero(t, flags&mem.PTE_U)

	got, ok := table.Get(p.PID)
	require.True(t, ok)
	require.Same(t, p, got)
}

func TestDestroyProcessFreesKernelStackFrames(t *testing.T) {
	table := newTestTable(t)
	img := buildELF(t, 0x08048000, []byte{0xf4})

	p, rc := CreateUserProcess(table, InitPID, img)
	require.Equal(t, errno.Ok, rc)

	frames := append([]mem.Pa_t{}, p.kstackFrames...)
	for _, f := range frames {
		require.Equal(t, 1, table.fa.Refcount(f))
	}

	DestroyProcess(table, p)

	for _, f := range frames {
		require.Equal(t, 0, table.fa.Refcount(f))
	}
	_, ok := table.Get(p.PID)
	require.False(t, ok)
}
