package elf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildImage assembles a minimal valid ELF32 executable with one
// PT_LOAD segment, enough for Parse to exercise end to end.
func buildImage(t *testing.T) []byte {
	t.Helper()

	const ehsize = 52
	const phsize = 32

	buf := make([]byte, ehsize+phsize)
	buf[0], buf[1], buf[2], buf[3] = magic0, magic1, magic2, magic3
	buf[4] = classELF32
	buf[5] = dataLSB
	le := binary.LittleEndian
	le.PutUint16(buf[16:], typeExec)
	le.PutUint32(buf[24:], 0x1000) // entry
	le.PutUint32(buf[28:], ehsize) // phoff
	le.PutUint16(buf[42:], phsize) // phentsize
	le.PutUint16(buf[44:], 1)      // phnum

	ph := buf[ehsize:]
	le.PutUint32(ph[0:], ptLoad)
	le.PutUint32(ph[4:], 0)      // offset
	le.PutUint32(ph[8:], 0x1000) // vaddr
	le.PutUint32(ph[16:], 4)     // filesz
	le.PutUint32(ph[20:], 8)     // memsz
	le.PutUint32(ph[24:], pfR|pfX)

	return buf
}

func TestParseValidImage(t *testing.T) {
	img, err := Parse(buildImage(t))
	require.NoError(t, err)
	require.Equal(t, uint32(0x1000), img.Entry)
	require.Len(t, img.Segments, 1)
	require.Equal(t, uint32(0x1000), img.Segments[0].VirtAddr)
	require.Equal(t, uint32(8), img.Segments[0].MemSize)
	require.True(t, img.Segments[0].Readable())
	require.True(t, img.Segments[0].Executable())
	require.False(t, img.Segments[0].Writable())
}

func TestParseRejectsBadMagic(t *testing.T) {
	buf := buildImage(t)
	buf[0] = 0
	_, err := Parse(buf)
	require.ErrorIs(t, err, ErrNotELF32)
}

func TestParseRejectsTruncated(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrNotELF32)
}
