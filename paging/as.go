package paging

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/mem"
)

// AddressSpace is one process's (or the kernel's) page directory: the
// top-level table plus the frame allocator it draws page-table frames
// from. It corresponds to biscuit's Pmap_t / vm.Pgtbl, minus the
// recursive-mapping bookkeeping biscuit needs on real hardware, since
// this simulator reaches table contents through mem.FrameAllocator.Dmap
// instead of CPU address translation.
type AddressSpace struct {
	mu sync.Mutex

	fa *mem.FrameAllocator
	pd mem.Pa_t // physical frame holding the page directory
}

// New allocates a fresh, empty address space: no user mappings, and the
// kernel half either left empty (for the very first, bootstrap address
// space) or installed from kernel, matching every later AddressSpace so
// all kernel-half page-table frames are shared, not copied.
func New(fa *mem.FrameAllocator, kernel *AddressSpace) (*AddressSpace, error) {
	pdFrame, ok := fa.AllocIRQSafe()
	if !ok {
		return nil, errNoMem
	}
	raw := fa.Dmap(pdFrame)
	for i := range raw {
		raw[i] = 0
	}

	as := &AddressSpace{fa: fa, pd: pdFrame}
	pd := entryTable(raw)
	// Self-map: the last slot always points at this directory's own
	// frame, with U clear so only the kernel can walk it.
	pd[SelfMapSlot] = MakeEntry(pdFrame, mem.PTE_P|mem.PTE_W)

	if kernel != nil {
		kraw := fa.Dmap(kernel.pd)
		kpd := entryTable(kraw)
		for i := KernelSplit; i < SelfMapSlot; i++ {
			pd[i] = kpd[i]
		}
	}
	pd.writeBack(raw)
	return as, nil
}

// PD returns the physical frame holding this address space's top-level
// directory, the value a real x86-32 port would load into CR3.
func (as *AddressSpace) PD() mem.Pa_t { return as.pd }

// Clone builds a new address space sharing this one's kernel half and
// starting with an empty user half, the construction every new process
// and every fork child begins from (proc.Fork then fills the user half
// by eager copy; spec §4.5/§4.6).
func (as *AddressSpace) Clone(fa *mem.FrameAllocator) (*AddressSpace, error) {
	return New(fa, as)
}

// Destroy frees every page-table frame owned by this address space
// (the kernel-half frames are shared and are never freed here) along
// with the directory frame itself. It does not free the data frames
// the page tables pointed at; vm.MMStruct.Destroy walks the VMA tree
// and drops those references first.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()

	raw := as.fa.Dmap(as.pd)
	pd := entryTable(raw)
	for i := 0; i < KernelSplit; i++ {
		if !pd[i].Present() {
			continue
		}
		as.fa.Put(pd[i].Addr())
	}
	as.fa.Put(as.pd)
}

var errNoMem = &oomError{}

type oomError struct{}

func (*oomError) Error() string { return "paging: out of physical memory" }
