// fork.go implements spec §4.15 fork: allocate a child PCB and PID,
// clone the top-level table and duplicate every VMA (eager copy, the
// spec's explicitly sanctioned alternative to copy-on-write), duplicate
// the FD table, and set the child up to resume as if fork() returned 0.
//
// There is no real CPU register file here to snapshot mid-syscall
// (spec §9's "hosted simulator" pattern again), so the child's first
// run is modeled the same way a freshly created process's is: an IRET
// frame built at EntryPoint/UserStackTop, rather than a genuine resume
// at the parent's exact program counter.
package proc

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/vm"
)

// Fork duplicates parent into a new child PCB with its own PID,
// enqueued into t but not yet scheduled (the caller — sched/syscall
// glue — enqueues it with the scheduler). Returns errno.ENOMEM on any
// resource exhaustion, leaving parent entirely untouched.
func Fork(t *Table, parent *PCB) (*PCB, errno.Errno) {
	pid := t.allocPID()
	child := New(pid, parent.PID)
	child.SID = parent.SID
	child.PGID = parent.PGID
	child.Cwd = parent.Cwd

	as, err := parent.MM.AS.Clone(t.fa)
	if err != nil {
		return nil, errno.ENOMEM
	}

	top, kframes, rc := t.allocKernelStack(as)
	if rc != errno.Ok {
		as.Destroy()
		return nil, rc
	}
	child.KernelStackVaddrTop = top
	child.KernelStackPhysBase = kframes[0]
	child.kstackFrames = kframes

	childMM := vm.NewMM(as, t.fa)
	childMM.Code, childMM.Data, childMM.Brk, childMM.StackTop =
		parent.MM.Code, parent.MM.Data, parent.MM.Brk, parent.MM.StackTop

	var dataFrames []mem.Pa_t
	rollback := func() {
		for _, f := range dataFrames {
			t.fa.Put(f)
		}
		for _, f := range kframes {
			t.fa.Put(f)
		}
		as.Destroy()
	}

	for _, v := range parent.MM.Snapshot() {
		vcopy := v
		if rc := childMM.InsertVMA(&vcopy); rc != errno.Ok {
			rollback()
			return nil, rc
		}
	}
	for _, v := range parent.MM.Snapshot() {
		start := mem.Va_t(mem.Rounddown(int(v.Start), mem.PGSIZE))
		for va := start; va < v.End; va += mem.Va_t(mem.PGSIZE) {
			pa, flags, ok := parent.MM.AS.Walk(va)
			if !ok {
				continue
			}
			frame, ok := t.fa.AllocIRQSafe()
			if !ok {
				rollback()
				return nil, errno.ENOMEM
			}
			copy(t.fa.Dmap(frame), t.fa.Dmap(pa))
			if rc := as.Map(va, frame, flags); rc != errno.Ok {
				t.fa.Put(frame)
				rollback()
				return nil, rc
			}
			dataFrames = append(dataFrames, frame)
		}
	}

	child.MM = childMM
	child.EntryPoint = parent.EntryPoint
	child.UserStackTop = parent.UserStackTop
	buildIRETFrame(t.fa, child, uint32(parent.EntryPoint), uint32(parent.UserStackTop))

	parent.FDs.CloneInto(child.FDs)

	t.Insert(child)
	parent.AddChild(child.PID)
	return child, errno.Ok
}
