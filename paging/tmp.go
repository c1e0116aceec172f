package paging

import "github.com/TorMartin-ops/nucleus/mem"

// tempMapVA is the fixed virtual address of the kernel's one transient
// mapping window, the PDE slot reserved by TempMapSlot. Biscuit calls
// the equivalent window VDIRECT; it lets kernel code that holds a bare
// Pa_t (a freshly allocated frame, a frame pulled out of someone else's
// address space during fork) get a stable address to read or write it
// through without mapping it permanently.
const tempMapVA = mem.Va_t(TempMapSlot) << mem.PDSHIFT

// TempMap maps pa into the kernel's scratch window and returns a byte
// slice over its contents plus a function that must be called to tear
// the mapping back down. Only one TempMap may be outstanding per
// address space at a time; as.mu being held across the whole borrow
// enforces that.
//
// The byte slice is backed by mem.FrameAllocator.Dmap directly rather
// than genuinely requiring the caller to dereference tempMapVA: this
// simulator has no MMU to fault through, so the mapping it installs
// exists for bookkeeping and invariant-checking fidelity (Walk(tempMapVA)
// reports the right thing while the window is open), while the actual
// byte access goes through the same direct map every other table walk
// in this package uses.
func (as *AddressSpace) TempMap(pa mem.Pa_t) ([]byte, func()) {
	as.mu.Lock()

	pd := entryTable(as.fa.Dmap(as.pd))
	pdi := pdeIndex(tempMapVA)
	if !pd[pdi].Present() {
		ptFrame, ok := as.fa.AllocIRQSafe()
		if !ok {
			as.mu.Unlock()
			return nil, func() {}
		}
		raw := as.fa.Dmap(ptFrame)
		for i := range raw {
			raw[i] = 0
		}
		pd[pdi] = MakeEntry(ptFrame, mem.PTE_P|mem.PTE_W)
		pd.writeBack(as.fa.Dmap(as.pd))
	}
	pt := entryTable(as.fa.Dmap(pd[pdi].Addr()))
	pti := pteIndex(tempMapVA)
	pt[pti] = MakeEntry(pa, mem.PTE_P|mem.PTE_W)
	pt.writeBack(as.fa.Dmap(pd[pdi].Addr()))

	data := as.fa.Dmap(pa)
	return data, func() {
		pt := entryTable(as.fa.Dmap(pd[pdi].Addr()))
		pt[pti] = 0
		pt.writeBack(as.fa.Dmap(pd[pdi].Addr()))
		as.mu.Unlock()
	}
}
