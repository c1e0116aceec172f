package paging

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/hal"
	"github.com/TorMartin-ops/nucleus/mem"
)

// Map installs a mapping from va to pa with the given flag bits. It
// allocates a new page-table frame on demand when va's page directory
// slot is empty (Present false), zeroing the new table before linking
// it in, the way gopher-os's vmm.Map grows its table tree lazily rather
// than pre-allocating all 1024 second-level tables up front.
//
// Map refuses to overwrite an existing present mapping (returns
// errno.EINVAL) to catch double-maps that would otherwise silently leak
// the frame the old mapping pointed at; callers that intend to replace
// a mapping must Unmap first.
func (as *AddressSpace) Map(va mem.Va_t, pa mem.Pa_t, flags mem.Pa_t) errno.Errno {
	as.mu.Lock()
	defer as.mu.Unlock()

	pd := entryTable(as.fa.Dmap(as.pd))
	pdi := pdeIndex(va)

	if !pd[pdi].Present() {
		ptFrame, ok := as.fa.AllocIRQSafe()
		if !ok {
			return errno.ENOMEM
		}
		raw := as.fa.Dmap(ptFrame)
		for i := range raw {
			raw[i] = 0
		}
		ptFlags := mem.PTE_P | mem.PTE_W
		if va < mem.Va_t(KernelSplit)<<mem.PDSHIFT {
			ptFlags |= mem.PTE_U
		}
		pd[pdi] = MakeEntry(ptFrame, ptFlags)
		pd.writeBack(as.fa.Dmap(as.pd))
	}

	pt := entryTable(as.fa.Dmap(pd[pdi].Addr()))
	pti := pteIndex(va)
	if pt[pti].Present() {
		return errno.EINVAL
	}
	pt[pti] = MakeEntry(pa, flags)
	pt.writeBack(as.fa.Dmap(pd[pdi].Addr()))

	hal.Default.FlushTLBEntry(uintptr(va))
	return errno.Ok
}

// Unmap clears the mapping at va, returning the physical frame it had
// pointed at and true, or (0, false) if va was not mapped. It does not
// itself drop the frame's refcount; vm callers that own the frame's
// reference do that (matching biscuit's Uvmfree, which separates
// "unmap the PTE" from "drop the page" so the same frame can be shared
// by a COW sibling after one address space unmaps it).
func (as *AddressSpace) Unmap(va mem.Va_t) (mem.Pa_t, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()

	pd := entryTable(as.fa.Dmap(as.pd))
	pdi := pdeIndex(va)
	if !pd[pdi].Present() {
		return 0, false
	}
	pt := entryTable(as.fa.Dmap(pd[pdi].Addr()))
	pti := pteIndex(va)
	if !pt[pti].Present() {
		return 0, false
	}
	old := pt[pti].Addr()
	pt[pti] = 0
	pt.writeBack(as.fa.Dmap(pd[pdi].Addr()))

	hal.Default.FlushTLBEntry(uintptr(va))
	return old, true
}

// Walk returns the physical address and flags currently mapped at va,
// or ok=false if unmapped at either level.
func (as *AddressSpace) Walk(va mem.Va_t) (pa mem.Pa_t, flags mem.Pa_t, ok bool) {
	as.mu.Lock()
	defer as.mu.Unlock()

	pd := entryTable(as.fa.Dmap(as.pd))
	pdi := pdeIndex(va)
	if !pd[pdi].Present() {
		return 0, 0, false
	}
	pt := entryTable(as.fa.Dmap(pd[pdi].Addr()))
	pti := pteIndex(va)
	e := pt[pti]
	if !e.Present() {
		return 0, 0, false
	}
	return e.Addr(), mem.Pa_t(e) &^ mem.PTE_ADDR, true
}

// ChangeProt rewrites the flag bits of an already-present mapping
// in place. Nothing in this module calls it: fork copies eagerly and
// there is no copy-on-write path.
func (as *AddressSpace) ChangeProt(va mem.Va_t, flags mem.Pa_t) errno.Errno {
	as.mu.Lock()
	defer as.mu.Unlock()

	pd := entryTable(as.fa.Dmap(as.pd))
	pdi := pdeIndex(va)
	if !pd[pdi].Present() {
		return errno.EINVAL
	}
	pt := entryTable(as.fa.Dmap(pd[pdi].Addr()))
	pti := pteIndex(va)
	if !pt[pti].Present() {
		return errno.EINVAL
	}
	pt[pti] = MakeEntry(pt[pti].Addr(), flags)
	pt.writeBack(as.fa.Dmap(pd[pdi].Addr()))

	hal.Default.FlushTLBEntry(uintptr(va))
	return errno.Ok
}
