package mem

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/hal"
)

// frameInfo tracks a single physical frame's refcount and free-list
// link, mirroring biscuit's Physpg_t (Refcnt + nexti) but keyed by a
// dense slice indexed from the pool's start frame, same as biscuit.
type frameInfo struct {
	refcnt int32
	nexti  uint32 // index of next free frame, or freeListEnd
}

const freeListEnd = ^uint32(0)

// FrameAllocator owns the set of physical 4 KiB frames (§4.1, C1): it
// hands out zeroable frames with a refcount and reclaims them to the
// free list once the refcount drops to zero. Grounded on biscuit
// mem.Physmem_t, generalized to be constructed from an arbitrary boot
// memory map (gopher-os bootMemAllocator.AllocFrame's region walk)
// instead of a hardwired reservation.
type FrameAllocator struct {
	mu sync.Mutex

	frames  []frameInfo
	startPg uint32

	freeHead uint32
	freeLen  int

	failures int64 // OOM statistics counter, per spec §4.2

	// arena backs every tracked frame with real, addressable memory and
	// arenaBase is the physical address corresponding to arena[0]. This
	// stands in for the direct map biscuit's mem.Dmap and gopher-os's
	// identity-mapped physical region give a real kernel: code that has
	// a Pa_t needs a way to actually read or write the frame it names.
	arena     []byte
	arenaBase Pa_t
}

// NewFrameAllocator builds a frame allocator over the available ranges
// in regions. Frames are tracked densely from the lowest available
// page to the highest, as biscuit's Physmem_t does.
func NewFrameAllocator(regions []Region) *FrameAllocator {
	var lo, hi uint32
	first := true
	VisitAvailable(regions, func(start, end Pa_t) bool {
		s, e := start.Page(), Pa_t(uintptr(end)-1).Page()
		if first {
			lo, hi = s, e
			first = false
		} else {
			if s < lo {
				lo = s
			}
			if e > hi {
				hi = e
			}
		}
		return true
	})
	if first {
		return &FrameAllocator{freeHead: freeListEnd}
	}

	npages := hi - lo + 1
	fa := &FrameAllocator{
		startPg:   lo,
		frames:    make([]frameInfo, npages),
		freeHead:  freeListEnd,
		arena:     make([]byte, uint64(npages)<<PGSHIFT),
		arenaBase: Pa_t(lo) << PGSHIFT,
	}
	for i := range fa.frames {
		fa.frames[i].refcnt = -1 // not backed by an available region
	}

	var last uint32 = freeListEnd
	VisitAvailable(regions, func(start, end Pa_t) bool {
		for pg := start.Page(); pg < Pa_t(uintptr(end)).Page(); pg++ {
			idx := pg - lo
			fa.frames[idx].refcnt = 0
			if last == freeListEnd {
				fa.freeHead = idx
			} else {
				fa.frames[last].nexti = idx
			}
			fa.frames[idx].nexti = freeListEnd
			last = idx
			fa.freeLen++
		}
		return true
	})
	return fa
}

// idx converts a physical address to a dense frame index, or false if
// it is out of the tracked range.
func (fa *FrameAllocator) idx(p Pa_t) (uint32, bool) {
	pg := p.Page()
	if pg < fa.startPg || int(pg-fa.startPg) >= len(fa.frames) {
		return 0, false
	}
	return pg - fa.startPg, true
}

// Alloc reserves a free frame with refcount 1, or returns (0, false) on
// exhaustion. The frame's content is not guaranteed to be zero; callers
// needing a zeroed frame must zero it themselves (paging.Map callers do
// this for anonymous demand-paged pages per spec §4.5).
func (fa *FrameAllocator) Alloc() (Pa_t, bool) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.freeHead == freeListEnd {
		fa.failures++
		return 0, false
	}
	idx := fa.freeHead
	fa.freeHead = fa.frames[idx].nexti
	fa.freeLen--
	fa.frames[idx].refcnt = 1
	return Pa_t(fa.startPg+idx) << PGSHIFT, true
}

// Get bumps the reference count of an already-allocated frame.
func (fa *FrameAllocator) Get(p Pa_t) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	idx, ok := fa.idx(p)
	if !ok {
		panic("mem: Get of untracked frame")
	}
	if fa.frames[idx].refcnt <= 0 {
		panic("mem: Get of freed frame")
	}
	fa.frames[idx].refcnt++
}

// Put decrements the reference count of p and returns it to the free
// list when it reaches zero. It returns true iff the frame was freed.
func (fa *FrameAllocator) Put(p Pa_t) bool {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	idx, ok := fa.idx(p)
	if !ok {
		panic("mem: Put of untracked frame")
	}
	if fa.frames[idx].refcnt <= 0 {
		panic("mem: refcount underflow")
	}
	fa.frames[idx].refcnt--
	if fa.frames[idx].refcnt != 0 {
		return false
	}
	fa.frames[idx].nexti = fa.freeHead
	fa.freeHead = idx
	fa.freeLen++
	return true
}

// Dmap returns the live byte slice of exactly one page backing the
// frame at physical address p, letting table-walking and copying code
// actually read and write frame contents. p need not be page-aligned;
// the returned slice always starts at the containing page's first
// byte. Panics if p names an untracked frame, the same contract as Get
// and Put.
func (fa *FrameAllocator) Dmap(p Pa_t) []byte {
	idx, ok := fa.idx(p)
	if !ok {
		panic("mem: Dmap of untracked frame")
	}
	off := uint64(idx) << PGSHIFT
	return fa.arena[off : off+PGSIZE]
}

// Refcount reports a frame's current reference count.
func (fa *FrameAllocator) Refcount(p Pa_t) int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	idx, ok := fa.idx(p)
	if !ok {
		return 0
	}
	return int(fa.frames[idx].refcnt)
}

// Free reports the number of currently-free frames.
func (fa *FrameAllocator) Free() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.freeLen
}

// Failures reports the OOM statistics counter (spec §4.2).
func (fa *FrameAllocator) Failures() int64 {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.failures
}

// AllocIRQSafe is Alloc wrapped in hal.Default.IRQGuard, for call
// sites that may run from IRQ context (demand paging inside a page
// fault, per spec §4.2): interrupts stay masked across the allocator's
// critical section.
func (fa *FrameAllocator) AllocIRQSafe() (Pa_t, bool) {
	g := hal.Default.IRQGuard()
	defer g.Release()
	return fa.Alloc()
}
