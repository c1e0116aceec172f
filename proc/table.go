package proc

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/hal"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
)

// InitPID is the PID re-parented orphans are attached to, per spec §9
// "children whose parent exits become children of PID 1".
const InitPID = 1

// Table is the kernel's process registry: the PID-keyed "all tasks"
// table spec §9 specifies in place of a raw parent/child/sibling
// pointer graph, the monotonic PID counter, and the kernel-stack
// virtual-address bump allocator, all under locks spec §5 calls out
// explicitly.
type Table struct {
	mu      sync.Mutex
	nextPID int32
	procs   map[int32]*PCB

	groups   map[int32]map[int32]bool // pgid -> set of pid
	sessions map[int32]*sessionInfo   // sid -> info

	kstackBump *kstackBump
	fa         *mem.FrameAllocator
	kernelAS   *paging.AddressSpace
}

type sessionInfo struct {
	leader int32
	ctrlFG int32 // foreground process group, 0 if none
	hasTTY bool
}

// NewTable builds an empty process table over the given frame
// allocator and canonical kernel address space (the one every new
// process's address space clones its kernel half from).
func NewTable(fa *mem.FrameAllocator, kernelAS *paging.AddressSpace) *Table {
	return &Table{
		nextPID:    InitPID,
		procs:      make(map[int32]*PCB),
		groups:     make(map[int32]map[int32]bool),
		sessions:   make(map[int32]*sessionInfo),
		kstackBump: newKStackBump(),
		fa:         fa,
		kernelAS:   kernelAS,
	}
}

// FA returns the frame allocator this table's processes draw page
// frames from, for packages (uaccess-driven syscalls) that need it
// alongside a PCB but must not import proc's private fields directly.
func (t *Table) FA() *mem.FrameAllocator { return t.fa }

// allocPID returns the next monotonically increasing PID, guarded by
// the table's lock (spec §4.6 step 1, §5 "the PID counter").
func (t *Table) allocPID() int32 {
	g := hal.Default.IRQGuard()
	defer g.Release()
	t.mu.Lock()
	defer t.mu.Unlock()
	pid := t.nextPID
	t.nextPID++
	return pid
}

// Insert adds p to the all-tasks table and its process group/session.
func (t *Table) Insert(p *PCB) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs[p.PID] = p
	t.addToGroupLocked(p.PGID, p.PID)
	if _, ok := t.sessions[p.SID]; !ok {
		t.sessions[p.SID] = &sessionInfo{leader: p.SID}
	}
}

func (t *Table) addToGroupLocked(pgid, pid int32) {
	g, ok := t.groups[pgid]
	if !ok {
		g = make(map[int32]bool)
		t.groups[pgid] = g
	}
	g[pid] = true
}

// Get looks up a PCB by PID.
func (t *Table) Get(pid int32) (*PCB, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}

// Remove deletes pid from the all-tasks table and its process group,
// the table-side half of destroy_process.
func (t *Table) Remove(pid int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	if !ok {
		return
	}
	if g := t.groups[p.PGID]; g != nil {
		delete(g, pid)
		if len(g) == 0 {
			delete(t.groups, p.PGID)
		}
	}
	delete(t.procs, pid)
}

// Reparent walks every process whose PPID is pid and reassigns it to
// InitPID, spec §9's orphan re-parenting, marking each as Orphaned so
// the idle-task reaper knows no other parent is waiting on it.
func (t *Table) Reparent(pid int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.procs {
		if p.PPID == pid {
			p.PPID = InitPID
			p.Orphaned = true
		}
	}
}

// Children returns the PIDs of every live process whose PPID is pid.
func (t *Table) Children(pid int32) []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int32
	for cpid, p := range t.procs {
		if p.PPID == pid {
			out = append(out, cpid)
		}
	}
	return out
}
