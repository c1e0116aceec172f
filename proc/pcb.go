// Package proc implements the process model (spec §4.6/§4.7/§4.16,
// C6): the PCB, kernel-stack allocation with a guard page, the
// per-process FD table, process hierarchy, and process groups and
// sessions. create_user_process/destroy_process sequencing lives in
// create.go; accounting grounded on biscuit's accnt/accnt.go lives in
// accnt.go.
//
// Grounded on biscuit's fd/fd.go (Fd_t, Copyfd) for the FD table and
// tinfo/tinfo.go for the PCB's identity/hierarchy fields; the
// process-group table follows spec §9's "pointer-graph ownership"
// design note (PID-keyed tables, not raw parent/child/sibling
// pointers).
package proc

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/vm"
)

// State is a PCB's lifecycle state.
type State int

const (
	Initialising State = iota
	Ready
	Running
	Sleeping
	Blocked
	Zombie
)

// PCB is one process control block, per spec §3 DATA MODEL.
type PCB struct {
	mu sync.Mutex

	PID, PPID  int32
	SID, PGID  int32
	IsSessionLeader bool
	IsGroupLeader   bool

	State    State
	ExitCode int32

	MM *vm.MM

	KernelStackVaddrTop mem.Va_t
	KernelStackPhysBase mem.Pa_t // lowest usable frame (just above the guard)
	kstackFrames        []mem.Pa_t

	UserStackTop mem.Va_t
	EntryPoint   mem.Va_t

	// KernelESPForSwitch is the saved kernel stack pointer used for
	// this task's very first context switch (spec §4.7): the five-slot
	// IRET frame built at process-creation time. sched consults this
	// only on the task's first run; afterward it saves/restores through
	// the normal context-switch path.
	KernelESPForSwitch uintptr
	HasRun             bool

	FDs *FDTable

	Children []int32

	// Orphaned is set once Table.Reparent hands this PCB to InitPID
	// because its original parent exited first. Only orphaned zombies
	// are eligible for the idle-task reaper (sched.ReapOne): a zombie
	// with its original parent still alive must wait for that parent's
	// own waitpid to collect it, or it would lose its exit status
	// before the parent ever observes it.
	Orphaned bool

	Acct Accounting

	// Cwd is the process's current working directory, always an
	// already-canonical absolute path (spec §4.15 sys_chdir/getcwd).
	Cwd string
}

// New returns a freshly zeroed PCB, matching step 1 of
// create_user_process ("allocate zeroed PCB").
func New(pid, ppid int32) *PCB {
	return &PCB{
		PID:   pid,
		PPID:  ppid,
		SID:   ppid,
		PGID:  ppid,
		State: Initialising,
		FDs:   NewFDTable(),
		Cwd:   "/",
	}
}

// SetState transitions the PCB to a new lifecycle state under its lock.
func (p *PCB) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = s
}

// GetState reads the PCB's current lifecycle state.
func (p *PCB) GetState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}

// AddChild records a child PID in the hierarchy table (spec §9).
func (p *PCB) AddChild(pid int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Children = append(p.Children, pid)
}

// ChildrenSnapshot returns a copy of the child-PID list, safe to range
// over without holding p's lock (waitpid scans it while potentially
// blocking).
func (p *PCB) ChildrenSnapshot() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int32, len(p.Children))
	copy(out, p.Children)
	return out
}

// RemoveChild drops a child PID, used when a child is reaped or
// re-parented.
func (p *PCB) RemoveChild(pid int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.Children {
		if c == pid {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			return
		}
	}
}
