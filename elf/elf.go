// Package elf implements a narrow real ELF32 program-header parser
// (spec §4.12, C12): just enough to find PT_LOAD segments and the
// entry point, the two things process creation needs to build a new
// address space's code/data VMAs. Grounded on biscuit's vm/as.go
// Vmadd_anon/Vmadd_file, which is how a parsed segment becomes a VMA;
// the binary layout itself follows the ELF32 specification directly
// via encoding/binary, the same approach gopher-os's multiboot parsing
// takes for its own fixed-layout binary format.
package elf

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	magic0, magic1, magic2, magic3 = 0x7f, 'E', 'L', 'F'

	classELF32 = 1
	dataLSB    = 1

	typeExec = 2
	typeDyn  = 3

	ptLoad = 1

	pfX = 1 << 0
	pfW = 1 << 1
	pfR = 1 << 2
)

// ErrNotELF32 is returned for any input that isn't a little-endian
// ELF32 executable.
var ErrNotELF32 = errors.New("elf: not a 32-bit little-endian ELF executable")

// Segment is one PT_LOAD program header, trimmed to the fields process
// creation needs to map it.
type Segment struct {
	VirtAddr uint32
	Offset   uint32
	FileSize uint32
	MemSize  uint32
	Flags    uint32 // pfR | pfW | pfX
}

func (s Segment) Readable() bool   { return s.Flags&pfR != 0 }
func (s Segment) Writable() bool   { return s.Flags&pfW != 0 }
func (s Segment) Executable() bool { return s.Flags&pfX != 0 }

// Image is a parsed ELF32 executable: its entry point and loadable
// segments, in file order.
type Image struct {
	Entry    uint32
	Segments []Segment
}

// rawEhdr and rawPhdr mirror the ELF32 on-disk structures exactly
// (Elf32_Ehdr / Elf32_Phdr), so Parse can read them with a single
// binary.Read each instead of hand-unpacking offsets.
type rawEhdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type rawPhdr struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

// Parse reads an ELF32 executable's header and PT_LOAD program
// headers out of raw, which must contain the whole file (this loader
// does not stream: process creation needs the file content available
// for the temp-map-and-copy step regardless).
func Parse(raw []byte) (*Image, error) {
	if len(raw) < 52 {
		return nil, ErrNotELF32
	}
	var eh rawEhdr
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &eh); err != nil {
		return nil, ErrNotELF32
	}
	if eh.Ident[0] != magic0 || eh.Ident[1] != magic1 || eh.Ident[2] != magic2 || eh.Ident[3] != magic3 {
		return nil, ErrNotELF32
	}
	if eh.Ident[4] != classELF32 || eh.Ident[5] != dataLSB {
		return nil, ErrNotELF32
	}
	if eh.Type != typeExec && eh.Type != typeDyn {
		return nil, ErrNotELF32
	}

	img := &Image{Entry: eh.Entry}
	for i := 0; i < int(eh.Phnum); i++ {
		off := int(eh.Phoff) + i*int(eh.Phentsize)
		if off+32 > len(raw) {
			return nil, ErrNotELF32
		}
		var ph rawPhdr
		if err := binary.Read(bytes.NewReader(raw[off:]), binary.LittleEndian, &ph); err != nil {
			return nil, ErrNotELF32
		}
		if ph.Type != ptLoad {
			continue
		}
		if int(ph.Offset+ph.Filesz) > len(raw) {
			return nil, ErrNotELF32
		}
		img.Segments = append(img.Segments, Segment{
			VirtAddr: ph.Vaddr,
			Offset:   ph.Offset,
			FileSize: ph.Filesz,
			MemSize:  ph.Memsz,
			Flags:    ph.Flags,
		})
	}
	return img, nil
}
