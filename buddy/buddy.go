// Package buddy implements a power-of-two buddy allocator over one
// aligned virtual region (spec §4.2, C2), supplying backing for
// kmalloc and for large kernel blocks. Grounded on gopher-os's
// kernel/mem/physical.buddyAllocator: a per-order free-count plus a
// per-order free bitmap (one bit per block of that order). The
// alloc/free/coalesce algorithm is written fresh in that idiom, since
// the retrieved teacher file stopped at the data layout.
package buddy

import (
	"sync"
	"unsafe"

	"github.com/TorMartin-ops/nucleus/hal"
)

const (
	// MinOrder is the smallest block order the allocator hands out.
	MinOrder = 5 // 32 bytes
	// MaxOrder is the largest block order a single region can satisfy.
	MaxOrder = 22 // 4 MiB
	// headerSize is the one-byte order header placed before every
	// pointer returned by Alloc (not Raw), per spec §4.2.
	headerSize = 1
)

// Allocator manages one naturally-aligned virtual range
// [base, base+size). Orders run MinOrder..MaxOrder inclusive.
type Allocator struct {
	mu sync.Mutex

	arena    []byte
	arenaOff uintptr // a.base - (address of arena[0])
	base     uintptr
	size     uintptr

	// freeBitmap[ord] has one bit per block of order ord within the
	// region; bit set means that block is the head of a free block of
	// exactly that order (gopher-os's freeBitmap/freeCount shape).
	freeBitmap map[int][]uint64
	freeCount  map[int]int

	failures int64
}

// New builds an allocator over a freshly reserved arena of size bytes.
// size must be a power of two and at least 1<<MinOrder. The returned
// allocator owns the arena: addresses handed out by Alloc/AllocRaw
// address real backing memory for as long as the Allocator is kept
// alive.
func New(size uintptr) *Allocator {
	if size == 0 || size&(size-1) != 0 {
		panic("buddy: size must be a power of two")
	}
	topOrder := order(size)
	if topOrder > MaxOrder {
		panic("buddy: region too large")
	}

	// Over-allocate by one alignment unit so the arena can be trimmed
	// to a naturally-aligned base, the way a real buddy heap is carved
	// out of a larger kernel-heap-mapped region.
	raw := make([]byte, size+size)
	rawBase := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (rawBase + size - 1) &^ (size - 1)
	offset := aligned - rawBase

	a := &Allocator{
		arena:      raw,
		arenaOff:   offset,
		base:       aligned,
		size:       size,
		freeBitmap: make(map[int][]uint64),
		freeCount:  make(map[int]int),
	}
	for ord := MinOrder; ord <= MaxOrder; ord++ {
		nblocks := size >> uint(ord)
		if nblocks == 0 {
			nblocks = 1
		}
		words := (nblocks + 63) / 64
		if words == 0 {
			words = 1
		}
		a.freeBitmap[ord] = make([]uint64, words)
	}
	// The whole region starts as a single free block at the top order.
	a.setFree(topOrder, 0, true)
	a.freeCount[topOrder] = 1
	return a
}

func order(size uintptr) int {
	ord := 0
	for (uintptr(1) << uint(ord)) < size {
		ord++
	}
	return ord
}

func orderFor(need uintptr) int {
	ord := MinOrder
	for uintptr(1)<<uint(ord) < need {
		ord++
	}
	return ord
}

func (a *Allocator) blockIndex(ord int, off uintptr) uintptr {
	return off >> uint(ord)
}

func (a *Allocator) isFree(ord int, idx uintptr) bool {
	word := idx / 64
	bit := idx % 64
	if int(word) >= len(a.freeBitmap[ord]) {
		return false
	}
	return a.freeBitmap[ord][word]&(1<<bit) != 0
}

func (a *Allocator) setFree(ord int, idx uintptr, free bool) {
	word := idx / 64
	bit := idx % 64
	if free {
		a.freeBitmap[ord][word] |= 1 << bit
	} else {
		a.freeBitmap[ord][word] &^= 1 << bit
	}
}

// byteAt returns a pointer to the arena byte backing address addr,
// which must lie within [a.base, a.base+a.size).
func (a *Allocator) byteAt(addr uintptr) *byte {
	off := addr - a.base + a.arenaOff
	return &a.arena[off]
}

// Bytes returns the live byte slice of length n backed by the arena at
// address addr, letting callers actually read/write an allocation.
func (a *Allocator) Bytes(addr uintptr, n int) []byte {
	off := addr - a.base + a.arenaOff
	return a.arena[off : off+uintptr(n)]
}

// Alloc returns a pointer past a one-byte order header for a block big
// enough for size bytes plus the header, or 0 on OOM.
func (a *Allocator) Alloc(size uintptr) uintptr {
	ord := orderFor(size + headerSize)
	p := a.AllocRaw(ord)
	if p == 0 {
		return 0
	}
	*a.byteAt(p) = uint8(ord)
	return p + headerSize
}

// Free releases a pointer previously returned by Alloc.
func (a *Allocator) Free(p uintptr) {
	ord := int(*a.byteAt(p - headerSize))
	a.FreeRaw(p-headerSize, ord)
}

// AllocRaw allocates a block of exactly order ord, with no header, and
// returns a physically/virtually page-aligned address when ord is at
// least the page order the caller is responsible for choosing (the
// allocator itself just guarantees alignment to 1<<ord, which implies
// page alignment for any ord >= PAGE_ORDER).
func (a *Allocator) AllocRaw(ord int) uintptr {
	g := hal.Default.IRQGuard()
	defer g.Release()
	a.mu.Lock()
	defer a.mu.Unlock()

	if ord < MinOrder {
		ord = MinOrder
	}
	if ord > MaxOrder {
		a.failures++
		return 0
	}

	src := ord
	for src <= MaxOrder && a.freeCount[src] == 0 {
		src++
	}
	if src > MaxOrder {
		a.failures++
		return 0
	}

	idx := a.firstFree(src)
	a.setFree(src, idx, false)
	a.freeCount[src]--
	off := idx << uint(src)

	// Split down from src to ord, keeping the lower half and freeing
	// the upper half (the buddy) at each level.
	for lvl := src; lvl > ord; lvl-- {
		half := uintptr(1) << uint(lvl-1)
		buddyOff := off + half
		bidx := a.blockIndex(lvl-1, buddyOff)
		a.setFree(lvl-1, bidx, true)
		a.freeCount[lvl-1]++
	}

	addr := a.base + off
	if uintptr(1)<<uint(ord) >= 4096 && addr%4096 != 0 {
		panic("buddy: page-order allocation misaligned")
	}
	return addr
}

// firstFree scans the free bitmap for order ord and returns the index
// of a set bit. Panics if none exists — callers must check freeCount
// first.
func (a *Allocator) firstFree(ord int) uintptr {
	bm := a.freeBitmap[ord]
	for w, word := range bm {
		if word == 0 {
			continue
		}
		for b := 0; b < 64; b++ {
			if word&(1<<uint(b)) != 0 {
				return uintptr(w)*64 + uintptr(b)
			}
		}
	}
	panic("buddy: freeCount/freeBitmap inconsistent")
}

// FreeRaw releases a block of order ord previously returned by
// AllocRaw, coalescing with its buddy iteratively (the XOR trick:
// buddy offset = off XOR (1<<ord)) until the buddy is not free or
// MaxOrder is reached, per spec §4.2.
func (a *Allocator) FreeRaw(p uintptr, ord int) {
	g := hal.Default.IRQGuard()
	defer g.Release()
	a.mu.Lock()
	defer a.mu.Unlock()

	off := p - a.base
	for ord < MaxOrder {
		buddyOff := off ^ (uintptr(1) << uint(ord))
		bidx := a.blockIndex(ord, buddyOff)
		if !a.isFree(ord, bidx) {
			break
		}
		// Buddy is free: remove it and merge upward.
		a.setFree(ord, bidx, false)
		a.freeCount[ord]--
		if buddyOff < off {
			off = buddyOff
		}
		ord++
	}
	idx := a.blockIndex(ord, off)
	a.setFree(ord, idx, true)
	a.freeCount[ord]++
}

// Failures reports the OOM statistics counter (spec §4.2).
func (a *Allocator) Failures() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures
}

// NoFreeBuddyPairs reports whether no two free buddies of the same
// order below MaxOrder currently coexist (true when none do) — the
// invariant spec §8 requires to hold after every Free call. Exposed
// for tests.
func (a *Allocator) NoFreeBuddyPairs() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ord := MinOrder; ord < MaxOrder; ord++ {
		nblocks := a.size >> uint(ord)
		for idx := uintptr(0); idx < nblocks; idx += 2 {
			if a.isFree(ord, idx) && a.isFree(ord, idx+1) {
				return false
			}
		}
	}
	return true
}
