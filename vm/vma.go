// Package vm implements mm_struct and the VMA tree (spec §4.5, C5): the
// per-process address-space description that sits above paging's raw
// Map/Unmap/Walk primitives, plus the fault-servicing policy that turns
// a decoded paging.Fault into a populated page or a process kill.
//
// Grounded on biscuit's vm/as.go (Vmregion_t/Vminfo_t/Sys_pgfault),
// trimmed to anonymous-zero and stack-growth fault handling;
// copy-on-write is left out in favor of fork's eager VMA copy (see
// proc/fork.go), the sanctioned alternative biscuit itself treats COW
// as optional to.
package vm

import "github.com/TorMartin-ops/nucleus/mem"

// Flags describes a VMA's access policy and backing kind.
type Flags uint32

const (
	Read Flags = 1 << iota
	Write
	Exec
	User
	GrowsDown
	Anon
	FileBacked
)

// Source is the minimal file-backing interface a file-backed VMA reads
// through. vfs.Vnode does not satisfy it (its Read takes an offset but
// reports an errno.Errno, not an error).
type Source interface {
	ReadAt(buf []byte, off int64) (int, error)
}

// VMA is a half-open virtual range [Start, End) with uniform access
// policy, per spec §4.5.
type VMA struct {
	Start, End mem.Va_t
	Flags      Flags
	Prot       mem.Pa_t // PTE_* bits installed when a page is mapped in
	File       Source
	FileOff    int64
}

// contains reports whether addr lies within the VMA's half-open range.
func (v *VMA) contains(addr mem.Va_t) bool {
	return addr >= v.Start && addr < v.End
}

// pageFloor rounds addr down to its containing page.
func pageFloor(addr mem.Va_t) mem.Va_t {
	return addr &^ mem.Va_t(mem.PGOFFSET)
}
