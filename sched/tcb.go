// Package sched implements the priority-preemptive scheduler (C7):
// multi-level ready queues, a time-ordered sleep queue, the tick
// handler, schedule, context switching between kernel contexts (and
// into user mode for a task's first run), priority inheritance for
// blocking relationships, and zombie reaping.
//
// There is no real CPU beneath this module, so "context switch" has no
// register save/restore to perform; Scheduler exposes OnFirstRun and
// OnResume hooks a host (cmd/nucleus, or a test) can install to observe
// or simulate the two switch paths spec §4.7/§4.9 describe, the same
// way paging.AddressSpace.TempMap gives a hosted realization of a
// mechanism that would otherwise require a real MMU.
//
// Fresh per spec §4.8-§4.10; locking idiom grounded on gopher-os's
// kernel/sync.Spinlock (explicit acquire/release, IRQ-masked via the
// hal package here rather than inline assembly).
package sched

import (
	"github.com/TorMartin-ops/nucleus/proc"
)

// Levels is SCHED_PRIORITY_LEVELS: four FIFO run queues, 0 highest
// priority, Levels-1 (idle) lowest.
const Levels = 4

// IdlePriority is the level reserved for the idle task, per spec §4.8
// "idle is the last level".
const IdlePriority = Levels - 1

// TCB is the scheduler's view of one schedulable entity (spec §3): a
// back-pointer to the PCB it drives, base and effective priority
// (distinct so priority inheritance can raise the latter without
// losing the former), remaining time-slice ticks, sleep wake-time, and
// the blocking-relationship lists §4.10 walks.
type TCB struct {
	PCB *proc.PCB

	BasePriority      int
	EffectivePriority int
	TicksRemaining    int

	// InRunQueue is authoritative per spec §8: true iff this TCB is
	// linked from exactly one run queue right now.
	InRunQueue bool
	wakeTick   uint64 // valid only while queued on the sleep queue

	// BlockedTasks is every TCB currently blocked on this one (spec
	// §4.10 step "append W to H's blocked-tasks list"); BlockingOn is
	// the inverse edge, nil when not blocked on anything.
	BlockedTasks []*TCB
	BlockingOn   *TCB
}

// newTCB wraps p at the given base priority, ready to be enqueued.
func newTCB(p *proc.PCB, basePriority int) *TCB {
	return &TCB{
		PCB:               p,
		BasePriority:      basePriority,
		EffectivePriority: basePriority,
	}
}

// isIdle reports whether t is the scheduler's idle sentinel (no PCB).
func (t *TCB) isIdle() bool { return t == nil || t.PCB == nil }
