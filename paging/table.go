// Package paging implements the x86-32 two-level virtual memory
// mechanism (spec §4.4, C4): page directories and page tables, the
// kernel/user split, a recursive self-map, a temporary-mapping window,
// and page-fault error-code decoding. vm (C5) builds VMA and
// demand-paging policy on top of the Map/Unmap/Walk primitives here.
//
// Grounded on biscuit's mem/dmap.go VREC/VDIRECT recursive-mapping
// scheme, re-derived for a 10/10/12 two-level x86-32 split in place of
// biscuit's native amd64 four-level tables, and on gopher-os's
// kernel/mem/vmm package for the page-fault decode shape.
package paging

import (
	"github.com/TorMartin-ops/nucleus/mem"
)

// Entry is one page-directory or page-table slot. Both levels share the
// same low-order flag layout on x86-32.
type Entry mem.Pa_t

// Present reports whether the entry's P bit is set.
func (e Entry) Present() bool { return mem.Pa_t(e)&mem.PTE_P != 0 }

// Writable reports the entry's W bit.
func (e Entry) Writable() bool { return mem.Pa_t(e)&mem.PTE_W != 0 }

// User reports the entry's U bit.
func (e Entry) User() bool { return mem.Pa_t(e)&mem.PTE_U != 0 }

// Large reports the PDE-only PS bit (4 MiB page).
func (e Entry) Large() bool { return mem.Pa_t(e)&mem.PTE_PS != 0 }

// NoExec reports the software-tracked NX bit.
func (e Entry) NoExec() bool { return mem.Pa_t(e)&mem.PTE_NX != 0 }

// Addr returns the physical frame address the entry points at, masking
// off the flag bits.
func (e Entry) Addr() mem.Pa_t { return mem.Pa_t(e) & mem.PTE_ADDR }

// MakeEntry builds an entry pointing at frame pa with the given flag
// bits (mem.PTE_P, mem.PTE_W, ...) set.
func MakeEntry(pa mem.Pa_t, flags mem.Pa_t) Entry {
	return Entry((pa & mem.PTE_ADDR) | (flags &^ mem.PTE_ADDR))
}

const (
	// entriesPerTable is 1024 for both page directories and page tables
	// on x86-32 (10 bits of index, 4-byte entries, one 4 KiB page).
	entriesPerTable = 1 << 10
	entryMask       = entriesPerTable - 1

	// SelfMapSlot is the page-directory slot biscuit calls VREC: it
	// points at the directory's own frame, so once self-mapped, the
	// directory and every page table it owns are reachable at fixed
	// virtual addresses even after the kernel stops being able to treat
	// physical addresses as directly readable.
	SelfMapSlot = entriesPerTable - 1

	// TempMapSlot is the page-directory slot reserved for TempMap's
	// transient single-page window (biscuit's VDIRECT-equivalent
	// scratch slot), one below the self-map slot.
	TempMapSlot = entriesPerTable - 2

	// KernelSplit is the page-directory index at which the kernel half
	// of every address space begins (VA 0xC0000000, the conventional
	// 3 GiB/1 GiB user/kernel split carried over from gopher-os and
	// most teaching 32-bit kernels). Entries [KernelSplit, SelfMapSlot)
	// are shared identically across every address space; entries below
	// KernelSplit are private, per-process user mappings.
	KernelSplit = 768
)

// pdeIndex returns the page-directory index for virtual address va.
func pdeIndex(va mem.Va_t) uint32 { return uint32(va>>mem.PDSHIFT) & entryMask }

// pteIndex returns the page-table index for virtual address va.
func pteIndex(va mem.Va_t) uint32 { return uint32(va>>mem.PGSHIFT) & entryMask }

// table is a typed view over one page directory's or page table's
// backing frame, as fetched through the frame allocator's direct map.
type table []Entry

// entryTable reinterprets a frame's raw bytes as 1024 entries.
func entryTable(raw []byte) table {
	t := make(table, entriesPerTable)
	for i := range t {
		t[i] = Entry(mem.Pa_t(raw[i*4]) | mem.Pa_t(raw[i*4+1])<<8 |
			mem.Pa_t(raw[i*4+2])<<16 | mem.Pa_t(raw[i*4+3])<<24)
	}
	return t
}

// writeBack serializes t into raw, the inverse of entryTable. Table
// frames are small (4 KiB, 1024 entries) so a full read-modify-write on
// every access is cheap and keeps the byte-slice and Entry views from
// ever disagreeing.
func (t table) writeBack(raw []byte) {
	for i, e := range t {
		v := uint32(e)
		raw[i*4] = byte(v)
		raw[i*4+1] = byte(v >> 8)
		raw[i*4+2] = byte(v >> 16)
		raw[i*4+3] = byte(v >> 24)
	}
}
