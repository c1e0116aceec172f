// execve.go implements execve's replace-or-fail half: build an
// entirely new address space, kernel stack, and VMA set from a freshly
// parsed ELF image, and only swap it into the live PCB once every step
// has succeeded, so a failing execve leaves the calling process
// undisturbed rather than half-replaced.
package proc

import (
	"github.com/TorMartin-ops/nucleus/elf"
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/vm"
)

// ReplaceImage parses elfBytes and, on success, replaces p's address
// space, kernel stack, and entry/stack state with the freshly built
// ones, freeing the old ones only after the swap succeeds. p's FD
// table, PID, PPID, and process-group/session identity are untouched,
// matching POSIX execve's non-FD-related state preservation.
func ReplaceImage(t *Table, p *PCB, elfBytes []byte) errno.Errno {
	img, err := elf.Parse(elfBytes)
	if err != nil {
		return errno.EINVAL
	}

	as, aserr := t.kernelAS.Clone(t.fa)
	if aserr != nil {
		return errno.ENOMEM
	}
	cleanupAS := true
	defer func() {
		if cleanupAS {
			as.Destroy()
		}
	}()

	top, frames, rc := t.allocKernelStack(as)
	if rc != errno.Ok {
		return rc
	}
	cleanupFrames := frames
	defer func() {
		if cleanupAS {
			for _, f := range cleanupFrames {
				t.fa.Put(f)
			}
		}
	}()

	mmStruct := vm.NewMM(as, t.fa)
	var brk mem.Va_t
	for _, seg := range img.Segments {
		if rc := mapSegment(as, t.fa, elfBytes, seg); rc != errno.Ok {
			return rc
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
			return rc
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
		return rc
	}

	stackPageVA := UserStackTopVirt - mem.Va_t(mem.PGSIZE)
	stackFrame, ok := t.fa.AllocIRQSafe()
	if !ok {
		return errno.ENOMEM
	}
	zero(t.fa.Dmap(stackFrame))
	if rc := as.Map(stackPageVA, stackFrame, mem.PTE_P|mem.PTE_W|mem.PTE_U); rc != errno.Ok {
		t.fa.Put(stackFrame)
		return rc
	}

	if _, flags, ok := as.Walk(mem.Va_t(img.Entry)); !ok || flags&mem.PTE_U == 0 {
		return errno.EINVAL
	}
	if _, flags, ok := as.Walk(stackPageVA); !ok || flags&mem.PTE_W == 0 || flags&mem.PTE_U == 0 {
		return errno.EINVAL
	}

	oldMM, oldFrames := p.MM, p.kstackFrames

	p.MM = mmStruct
	p.KernelStackVaddrTop = top
	p.KernelStackPhysBase = frames[0]
	p.kstackFrames = frames
	p.EntryPoint = mem.Va_t(img.Entry)
	p.UserStackTop = UserStackTopVirt
	p.HasRun = false
	buildIRETFrame(t.fa, p, img.Entry, uint32(UserStackTopVirt))

	cleanupAS = false
	oldMM.Destroy()
	for _, f := range oldFrames {
		t.fa.Put(f)
	}
	return errno.Ok
}
