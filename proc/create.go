// create.go implements create_user_process / destroy_process, spec
// §4.6-§4.7 (C6+C12 glue): the sequencing that turns a parsed ELF32
// image into a runnable PCB with a populated mm_struct, an eagerly
// mapped user-stack top page, and an initial kernel-stack IRET frame,
// and the reverse teardown. Grounded on the sequencing biscuit's
// process-creation path documents in comments even though the actual
// ELF-to-VMA wiring is this repo's own (biscuit delegates to a loader
// this retrieval slice didn't include); segment staging follows spec
// §4.6 step 5 ("via temp-map + copy").
package proc

import (
	"github.com/TorMartin-ops/nucleus/elf"
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
	"github.com/TorMartin-ops/nucleus/vm"
)

// Address-space layout constants spec §4.6/§4.11 name directly.
const (
	UserStackTopVirt    = mem.KernelSpaceVirtStart
	userStackReserve    = 8 * 1024 * 1024 // initial grows-down VMA span
	UserStackBottomVirt = UserStackTopVirt - mem.Va_t(userStackReserve)
)

// Selector placeholders: real GDT layout is an external collaborator
// (spec §1 lists GDT/IDT/TSS table layout as out of scope); these only
// need to be distinct, RPL-3 values for the IRET frame uaccess and
// process-creation code build and inspect.
const (
	userCodeSelector uint32 = 0x1B // index 3, RPL 3
	userDataSelector uint32 = 0x23 // index 4, RPL 3
	eflagsIF                = 1<<9 | 1<<1
)

// CreateUserProcess sequences spec §4.6 steps 1-9: allocate a PCB,
// build its address space (cloning the kernel half), parse elfBytes
// and map its PT_LOAD segments, insert the standard heap/stack VMAs,
// eagerly map the user stack's top page, verify both mappings, and
// build the initial kernel-stack frame for the first IRET into user
// mode. ppid is the creator (InitPID for the very first process).
func CreateUserProcess(t *Table, ppid int32, elfBytes []byte) (*PCB, errno.Errno) {
	img, err := elf.Parse(elfBytes)
	if err != nil {
		return nil, errno.EINVAL
	}

	pid := t.allocPID()
	p := New(pid, ppid)

	as, aserr := t.kernelAS.Clone(t.fa)
	if aserr != nil {
		return nil, errno.ENOMEM
	}
	mmStruct := vm.NewMM(as, t.fa)

	top, frames, rc := t.allocKernelStack(as)
	if rc != errno.Ok {
		as.Destroy()
		return nil, rc
	}
	p.KernelStackVaddrTop = top
	p.KernelStackPhysBase = frames[0]
	p.kstackFrames = frames

	var brk mem.Va_t
	for _, seg := range img.Segments {
		if rc := mapSegment(as, t.fa, elfBytes, seg); rc != errno.Ok {
			return nil, rc
		}
		prot := mem.Pa_t(mem.PTE_P | mem.PTE_U)
		flags := vm.Read | vm.User | vm.Anon
		if seg.Writable() {
			prot |= mem.PTE_W
			flags |= vm.Write
		}
		if seg.Executable() {
			flags |= vm.Exec
		}
		start := mem.Va_t(mem.Rounddown(int(seg.VirtAddr), mem.PGSIZE))
		end := mem.Va_t(mem.Roundup(int(seg.VirtAddr+seg.MemSize), mem.PGSIZE))
		if rc := mmStruct.InsertVMA(&vm.VMA{Start: start, End: end, Flags: flags, Prot: prot}); rc != errno.Ok {
			return nil, rc
		}
		switch {
		case seg.Executable() && mmStruct.Code == 0:
			mmStruct.Code = start
		case seg.Writable() && mmStruct.Data == 0:
			mmStruct.Data = start
		}
		if end > brk {
			brk = end
		}
	}

	mmStruct.Brk = brk
	mmStruct.StackTop = UserStackTopVirt

	if rc := mmStruct.InsertVMA(&vm.VMA{
		Start: UserStackBottomVirt, End: UserStackTopVirt,
		Flags: vm.Read | vm.Write | vm.User | vm.Anon | vm.GrowsDown,
		Prot:  mem.Pa_t(mem.PTE_P | mem.PTE_W | mem.PTE_U),
	}); rc != errno.Ok {
		return nil, rc
	}

	stackPageVA := UserStackTopVirt - mem.Va_t(mem.PGSIZE)
	stackFrame, ok := t.fa.AllocIRQSafe()
	if !ok {
		return nil, errno.ENOMEM
	}
	zero(t.fa.Dmap(stackFrame))
	if rc := as.Map(stackPageVA, stackFrame, mem.PTE_P|mem.PTE_W|mem.PTE_U); rc != errno.Ok {
		t.fa.Put(stackFrame)
		return nil, rc
	}

	if _, flags, ok := as.Walk(mem.Va_t(img.Entry)); !ok || flags&mem.PTE_U == 0 {
		return nil, errno.EINVAL
	}
	if _, flags, ok := as.Walk(stackPageVA); !ok || flags&mem.PTE_W == 0 || flags&mem.PTE_U == 0 {
		return nil, errno.EINVAL
	}

	p.MM = mmStruct
	p.EntryPoint = mem.Va_t(img.Entry)
	p.UserStackTop = UserStackTopVirt
	buildIRETFrame(t.fa, p, img.Entry, uint32(UserStackTopVirt))

	// stdio FD wiring (fds 0/1/2) is console's job, done by the caller
	// once it has a console.Vnode to install.

	t.Insert(p)
	return p, errno.Ok
}

// mapSegment allocates one frame per page of seg's memory image,
// zero-fills it, copies in the file-backed portion through the
// kernel's temp-map window (spec §4.6 step 5), and maps it into as.
func mapSegment(as *paging.AddressSpace, fa *mem.FrameAllocator, elfBytes []byte, seg elf.Segment) errno.Errno {
	start := mem.Rounddown(int(seg.VirtAddr), mem.PGSIZE)
	end := mem.Roundup(int(seg.VirtAddr+seg.MemSize), mem.PGSIZE)

	for va := start; va < end; va += mem.PGSIZE {
		frame, ok := fa.AllocIRQSafe()
		if !ok {
			return errno.ENOMEM
		}
		buf, unmap := as.TempMap(frame)
		if buf == nil {
			fa.Put(frame)
			return errno.ENOMEM
		}
		zero(buf)
		copySegmentRange(buf, elfBytes, seg, uint32(va))
		unmap()

		protFlags := mem.Pa_t(mem.PTE_P | mem.PTE_U)
		if seg.Writable() {
			protFlags |= mem.PTE_W
		}
		if rc := as.Map(mem.Va_t(va), frame, protFlags); rc != errno.Ok {
			fa.Put(frame)
			return rc
		}
	}
	return errno.Ok
}

// copySegmentRange copies the portion of seg's file image that falls
// within the page starting at pageVA into buf (a mapped page's bytes),
// leaving bytes past the file size zero (.bss).
func copySegmentRange(buf []byte, elfBytes []byte, seg elf.Segment, pageVA uint32) {
	for i := 0; i < mem.PGSIZE; i++ {
		va := pageVA + uint32(i)
		if va < seg.VirtAddr || va >= seg.VirtAddr+seg.FileSize {
			continue
		}
		fileOff := seg.Offset + (va - seg.VirtAddr)
		if int(fileOff) < len(elfBytes) {
			buf[i] = elfBytes[fileOff]
		}
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// buildIRETFrame writes the five-slot frame spec §4.7 describes at the
// top of p's kernel stack: SS, ESP, EFLAGS, CS, EIP in high-to-low
// address order, and records the resulting ESP as
// KernelESPForSwitch — the value sched loads before a task's first
// IRET into user mode.
func buildIRETFrame(fa *mem.FrameAllocator, p *PCB, entry, userESP uint32) {
	top := p.kstackFrames[len(p.kstackFrames)-1]
	page := fa.Dmap(top)

	const frameBytes = 20
	off := mem.PGSIZE - frameBytes
	putU32(page[off:], entry)
	putU32(page[off+4:], userCodeSelector)
	putU32(page[off+8:], eflagsIF)
	putU32(page[off+12:], userESP)
	putU32(page[off+16:], userDataSelector)

	p.KernelESPForSwitch = uintptr(p.KernelStackVaddrTop) - frameBytes
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// DestroyProcess implements spec §4.6 destroy_process: close every FD,
// tear down the mm_struct (which frees user frames, page tables, and
// the top-level directory frame), free the kernel-stack physical
// frames (the virtual range itself is never recycled, per spec), and
// remove the PCB from the table, re-parenting any remaining children
// to InitPID.
func DestroyProcess(t *Table, p *PCB) {
	p.FDs.CloseAll()
	if p.MM != nil {
		p.MM.Destroy()
	}
	for _, f := range p.kstackFrames {
		t.fa.Put(f)
	}
	t.Reparent(p.PID)
	t.Remove(p.PID)
}
