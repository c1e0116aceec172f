package vm

import (
	"sort"
	"sync"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
)

// MM is one process's address-space description: the VMA tree plus the
// top-level paging table it describes and the canonical segment
// boundaries the ELF loader and brk/stack-growth logic consult.
// Grounded on biscuit's Vminfo_t, owned exclusively by its PCB, per
// spec §4.5.
type MM struct {
	mu sync.Mutex

	AS *paging.AddressSpace
	fa *mem.FrameAllocator

	vmas []*VMA // sorted by Start; invariant checked by insertLocked

	Code, Data, Brk, StackTop mem.Va_t
}

// NewMM builds an empty address-space description over as.
func NewMM(as *paging.AddressSpace, fa *mem.FrameAllocator) *MM {
	return &MM{AS: as, fa: fa}
}

// FindVMA returns the VMA containing addr, or (nil, next) where next is
// the lowest-start VMA whose Start is > addr (nil if addr is past every
// VMA), matching spec §4.5's "contains, or the next-higher one".
func (mm *MM) FindVMA(addr mem.Va_t) (vma *VMA, next *VMA) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.findVMALocked(addr)
}

func (mm *MM) findVMALocked(addr mem.Va_t) (vma *VMA, next *VMA) {
	i := sort.Search(len(mm.vmas), func(i int) bool { return mm.vmas[i].End > addr })
	if i == len(mm.vmas) {
		return nil, nil
	}
	if mm.vmas[i].contains(addr) {
		return mm.vmas[i], nil
	}
	return nil, mm.vmas[i]
}

// InsertVMA adds v to the tree, rejecting any overlap with an existing
// VMA (spec §4.5 "insert_vma rejects overlaps", invariant §8).
func (mm *MM) InsertVMA(v *VMA) errno.Errno {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	i := sort.Search(len(mm.vmas), func(i int) bool { return mm.vmas[i].Start >= v.Start })
	if i > 0 && mm.vmas[i-1].End > v.Start {
		return errno.EINVAL
	}
	if i < len(mm.vmas) && mm.vmas[i].Start < v.End {
		return errno.EINVAL
	}

	mm.vmas = append(mm.vmas, nil)
	copy(mm.vmas[i+1:], mm.vmas[i:])
	mm.vmas[i] = v
	return errno.Ok
}

// VMACount reports the number of VMAs currently in the tree (spec §4.5
// mm_struct field, also used by TESTABLE PROPERTIES assertions).
func (mm *MM) VMACount() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.vmas)
}

// NonOverlapping reports whether every pair of VMAs satisfies the
// spec §8 ordering invariant; exposed for tests.
func (mm *MM) NonOverlapping() bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for i := 0; i < len(mm.vmas); i++ {
		v := mm.vmas[i]
		if v.Start >= v.End {
			return false
		}
		if i+1 < len(mm.vmas) && v.End > mm.vmas[i+1].Start {
			return false
		}
	}
	return true
}

// Snapshot returns a value copy of every VMA currently in the tree,
// sorted by Start, for callers (fork) that need to replicate the VMA
// set into a second mm_struct without holding mm's lock while they do
// the (slow) page-copying work.
func (mm *MM) Snapshot() []VMA {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	out := make([]VMA, len(mm.vmas))
	for i, v := range mm.vmas {
		out[i] = *v
	}
	return out
}

// Destroy unmaps and frees every user frame this mm_struct's VMAs
// reference, then destroys the address space through
// AddressSpace.Destroy, which frees the second-level page-table frames
// and the top-level table frame as well. The top-level frame is not
// left for the owning PCB to free.
func (mm *MM) Destroy() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	for _, v := range mm.vmas {
		for va := pageFloor(v.Start); va < v.End; va += mem.Va_t(mem.PGSIZE) {
			if pa, ok := mm.AS.Unmap(va); ok {
				mm.fa.Put(pa)
			}
		}
	}
	mm.vmas = nil
	mm.AS.Destroy()
}
