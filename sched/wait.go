package sched

import (
	"github.com/TorMartin-ops/nucleus/hal"
	"github.com/TorMartin-ops/nucleus/proc"
)

// AddWaiter records t as blocked inside waitpid on behalf of process
// ppid, so that when one of ppid's children exits (via
// RemoveCurrentTaskWithCode) t is woken to re-check for a zombie. This
// is the hosted stand-in for "block in waitpid" (spec §5 suspension
// points): no real condition variable ties parent and child, just the
// same enqueue/dequeue machinery every other blocked task uses.
func (s *Scheduler) AddWaiter(ppid int32, t *TCB) {
	g := hal.Default.IRQGuard()
	s.mu.Lock()
	if s.waiters == nil {
		s.waiters = make(map[int32][]*TCB)
	}
	s.waiters[ppid] = append(s.waiters[ppid], t)
	s.mu.Unlock()
	g.Release()
}

// wakeWaiters unblocks every task parked in AddWaiter for ppid, called
// once a child of ppid transitions to ZOMBIE.
func (s *Scheduler) wakeWaiters(ppid int32) {
	g := hal.Default.IRQGuard()
	s.mu.Lock()
	ws := s.waiters[ppid]
	delete(s.waiters, ppid)
	s.mu.Unlock()
	g.Release()

	for _, w := range ws {
		s.Unblock(w)
	}
}

// ReapPID reaps the single zombie task pid, if it is in fact a zombie,
// the targeted counterpart to ReapOne that waitpid uses once it has
// already found the exact child it wants to collect.
func (s *Scheduler) ReapPID(pid int32) bool {
	g := hal.Default.IRQGuard()
	s.mu.Lock()
	t, ok := s.all[pid]
	if !ok || t.PCB.GetState() != proc.Zombie {
		s.mu.Unlock()
		g.Release()
		return false
	}
	delete(s.all, pid)
	s.mu.Unlock()
	g.Release()

	proc.DestroyProcess(s.table, t.PCB)
	return true
}
