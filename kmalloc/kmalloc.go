// Package kmalloc implements a small-object allocator layered on
// buddy (spec §4.3, C3): fixed size-class caches so that frequent
// small kernel allocations don't each consume a whole buddy block.
// Fresh code, sized and shaped like biscuit's other small,
// single-purpose packages (one file, narrow surface).
package kmalloc

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/buddy"
)

// sizeClasses are the byte sizes kmalloc rounds requests up to, each
// 8-byte aligned per spec §4.3.
var sizeClasses = []uintptr{16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// Heap is a kmalloc instance backed by one buddy.Allocator.
type Heap struct {
	mu   sync.Mutex
	b    *buddy.Allocator
	free map[uintptr][]uintptr // size class -> free block list
}

// NewHeap builds a kmalloc heap over a freshly reserved buddy arena of
// arenaSize bytes.
func NewHeap(arenaSize uintptr) *Heap {
	return &Heap{
		b:    buddy.New(arenaSize),
		free: make(map[uintptr][]uintptr),
	}
}

func classFor(n uintptr) (uintptr, bool) {
	for _, c := range sizeClasses {
		if n <= c {
			return c, true
		}
	}
	return 0, false
}

// Alloc returns an 8-byte-aligned block of at least n bytes, or 0 on
// OOM or if n exceeds the largest size class (callers needing more
// should use buddy directly, per spec "small-object allocator").
func (h *Heap) Alloc(n uintptr) uintptr {
	class, ok := classFor(n)
	if !ok {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if free := h.free[class]; len(free) > 0 {
		p := free[len(free)-1]
		h.free[class] = free[:len(free)-1]
		return p
	}
	ord := 0
	for uintptr(1)<<uint(ord) < class {
		ord++
	}
	return h.b.AllocRaw(ord)
}

// Free returns a block previously returned by Alloc, for size n, to
// its size-class free list for reuse.
func (h *Heap) Free(p uintptr, n uintptr) {
	class, ok := classFor(n)
	if !ok {
		panic("kmalloc: Free of unknown size class")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.free[class] = append(h.free[class], p)
}

// Bytes exposes the live backing storage of an allocation, letting
// callers actually read/write it (same contract as buddy.Bytes).
func (h *Heap) Bytes(p uintptr, n int) []byte {
	return h.b.Bytes(p, n)
}

// Failures forwards the backing buddy arena's OOM counter, so a
// kmalloc heap can be reported alongside the other allocators in a
// debug stats snapshot.
func (h *Heap) Failures() int64 {
	return h.b.Failures()
}
