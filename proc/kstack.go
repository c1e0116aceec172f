package proc

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/hal"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
)

// Kernel-stack virtual-address window and per-process size, per spec
// §4.6. ProcessKStackSize is the usable region; one additional guard
// page is reserved below it.
const (
	KernelStackVirtStart = mem.Va_t(0xF0000000)
	KernelStackVirtEnd   = mem.Va_t(0xF8000000)
	ProcessKStackSize    = 4 * mem.PGSIZE
)

// kstackBump is the virtual-address bump allocator for kernel stacks
// (spec §5's dedicated lock class). It never reclaims a reserved
// range: "the virtual range is not recycled in this minimal
// implementation" (spec §4.6 destroy_process note).
type kstackBump struct {
	mu   sync.Mutex
	next mem.Va_t
}

func newKStackBump() *kstackBump {
	return &kstackBump{next: KernelStackVirtStart}
}

func (b *kstackBump) reserve(pages int) (mem.Va_t, errno.Errno) {
	g := hal.Default.IRQGuard()
	defer g.Release()
	b.mu.Lock()
	defer b.mu.Unlock()

	size := mem.Va_t(pages) * mem.Va_t(mem.PGSIZE)
	if b.next+size > KernelStackVirtEnd {
		return 0, errno.ENOMEM
	}
	start := b.next
	b.next += size
	return start, errno.Ok
}

// allocKernelStack implements spec §4.6 step 3: PROCESS_KSTACK_SIZE /
// PAGE_SIZE usable frames plus one unmapped guard frame at the low
// end, mapped with kernel-data flags (no PTE_U), write-tested at the
// lowest and highest usable word, with a full rollback on any failure.
// Returns the virtual address just past the usable region (the
// stack's initial top) and the frames backing it, in low-to-high
// order.
func (t *Table) allocKernelStack(as *paging.AddressSpace) (mem.Va_t, []mem.Pa_t, errno.Errno) {
	usablePages := int(ProcessKStackSize / mem.PGSIZE)
	totalPages := usablePages + 1 // +1 guard

	base, rc := t.kstackBump.reserve(totalPages)
	if rc != errno.Ok {
		return 0, nil, rc
	}
	// base..base+PGSIZE is the unmapped guard; usable frames start one
	// page above it.
	usableBase := base + mem.Va_t(mem.PGSIZE)

	frames := make([]mem.Pa_t, 0, usablePages)
	rollback := func() {
		for i, f := range frames {
			as.Unmap(usableBase + mem.Va_t(i)*mem.Va_t(mem.PGSIZE))
			t.fa.Put(f)
		}
	}

	for i := 0; i < usablePages; i++ {
		f, ok := t.fa.AllocIRQSafe()
		if !ok {
			rollback()
			return 0, nil, errno.ENOMEM
		}
		va := usableBase + mem.Va_t(i)*mem.Va_t(mem.PGSIZE)
		if ec := as.Map(va, f, mem.PTE_P|mem.PTE_W); ec != errno.Ok {
			t.fa.Put(f)
			rollback()
			return 0, nil, ec
		}
		frames = append(frames, f)
	}

	top := usableBase + mem.Va_t(usablePages)*mem.Va_t(mem.PGSIZE)
	if rc := writeTest(t.fa, frames[0], frames[len(frames)-1]); rc != errno.Ok {
		rollback()
		return 0, nil, rc
	}
	return top, frames, errno.Ok
}

// writeTest writes and reads back a marker word at the lowest word of
// the lowest usable frame and the highest word of the highest usable
// frame, catching a misconfigured direct map before the stack is ever
// used.
func writeTest(fa *mem.FrameAllocator, lo, hi mem.Pa_t) errno.Errno {
	for _, w := range []struct {
		f   mem.Pa_t
		off int
	}{{lo, 0}, {hi, mem.PGSIZE - 4}} {
		b := fa.Dmap(w.f)[w.off:]
		b[0], b[1], b[2], b[3] = 0xDE, 0xAD, 0xBE, 0xEF
		if b[0] != 0xDE || b[3] != 0xEF {
			return errno.EIO
		}
	}
	return errno.Ok
}
