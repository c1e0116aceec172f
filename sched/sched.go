package sched

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/hal"
	"github.com/TorMartin-ops/nucleus/proc"
)

// timeSliceMS is the per-level time slice in milliseconds, per spec
// §4.8 ("200/100/50/25 ms"), indexed by priority level.
var timeSliceMS = [Levels]int{200, 100, 50, 25}

// Scheduler owns the run queues, sleep queue, and all-tasks table for
// a single CPU. Every field it mutates from the tick handler is also
// reachable from ordinary kernel context, so every method takes
// hal.Default.IRQGuard() before its own lock, per spec §5's "IRQ-
// masking spinlocks protect ... each run queue, the sleep queue, the
// all-tasks list."
type Scheduler struct {
	mu sync.Mutex

	runQueues [Levels][]*TCB
	sleep     []*TCB // ascending by wakeTick; ties FIFO (stable insert)

	all map[int32]*TCB // PID -> TCB, the "all tasks" list spec §4.8's reaper walks

	waiters map[int32][]*TCB // ppid -> tasks parked in waitpid on it

	current  *TCB
	tick     uint64
	reflag   bool // reschedule flag; edge-triggered per spec §5

	// OnFirstRun and OnResume are the hosted realization of spec §4.7's
	// IRET path and §4.9's save/restore path: cmd/nucleus wires these
	// to whatever "run the task" means for its host (here, nothing real
	// to execute, so the default no-ops just record the transition via
	// LastSwitch for tests to assert against).
	OnFirstRun func(p *proc.PCB)
	OnResume   func(prev, next *proc.PCB)

	LastSwitch SwitchKind

	table *proc.Table
}

// SwitchKind records which of the two context-switch paths Schedule
// last took, spec §4.9's distinction between a task's first run and
// every run after.
type SwitchKind int

const (
	NoSwitch SwitchKind = iota
	FirstRun
	Resume
)

// New builds an empty scheduler over table (used by the zombie reaper
// to call proc.DestroyProcess).
func New(table *proc.Table) *Scheduler {
	return &Scheduler{
		all:   make(map[int32]*TCB),
		table: table,
	}
}

// sliceTicks converts timeSliceMS[level] to ticks at the HAL's
// configured tick rate, rounding up so every level gets at least one
// tick even at a coarse tick rate.
func sliceTicks(level int) int {
	hz := hal.Default.TicksPerSecond()
	ms := uint64(timeSliceMS[level])
	ticks := (ms*hz + 999) / 1000
	if ticks == 0 {
		ticks = 1
	}
	return int(ticks)
}

// AddTask wraps p as a new TCB at basePriority and enqueues it READY,
// the scheduler-side half of inserting a freshly created or forked
// process into the system.
func (s *Scheduler) AddTask(p *proc.PCB, basePriority int) *TCB {
	t := newTCB(p, basePriority)

	g := hal.Default.IRQGuard()
	s.mu.Lock()
	s.all[p.PID] = t
	s.mu.Unlock()
	g.Release()

	p.SetState(proc.Ready)
	s.enqueue(t)
	return t
}

// enqueue appends t to the tail of its effective-priority run queue,
// per spec §5 "a woken task is always placed at the tail of its
// queue." Caller must not hold s.mu.
func (s *Scheduler) enqueue(t *TCB) {
	if t.isIdle() {
		return
	}
	g := hal.Default.IRQGuard()
	defer g.Release()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(t)
}

func (s *Scheduler) enqueueLocked(t *TCB) {
	if t.InRunQueue {
		return
	}
	lvl := clampLevel(t.EffectivePriority)
	s.runQueues[lvl] = append(s.runQueues[lvl], t)
	t.InRunQueue = true
}

func clampLevel(p int) int {
	if p < 0 {
		return 0
	}
	if p > IdlePriority {
		return IdlePriority
	}
	return p
}

// removeFromQueueLocked splices t out of whichever run queue it's on,
// if any.
func (s *Scheduler) removeFromQueueLocked(t *TCB) {
	if !t.InRunQueue {
		return
	}
	for lvl := 0; lvl < Levels; lvl++ {
		q := s.runQueues[lvl]
		for i, qt := range q {
			if qt == t {
				s.runQueues[lvl] = append(q[:i], q[i+1:]...)
				t.InRunQueue = false
				return
			}
		}
	}
}

// Current returns the currently running TCB, nil if none (boot, or
// idle running with no prior task).
func (s *Scheduler) Current() *TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Lookup returns the TCB for pid, if it is still tracked.
func (s *Scheduler) Lookup(pid int32) (*TCB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.all[pid]
	return t, ok
}

// Tick is the IRQ-context tick handler, spec §4.8: advances the tick
// count, wakes expired sleepers, charges the current task's time
// slice, and requests a reschedule when it runs out.
func (s *Scheduler) Tick() {
	g := hal.Default.IRQGuard()

	now := hal.Default.Tick()

	s.mu.Lock()
	var woken []*TCB
	for len(s.sleep) > 0 && s.sleep[0].wakeTick <= now {
		t := s.sleep[0]
		s.sleep = s.sleep[1:]
		t.PCB.SetState(proc.Ready)
		woken = append(woken, t)
	}
	cur := s.current
	if cur != nil && !cur.isIdle() {
		cur.PCB.Acct.TickUser()
		cur.TicksRemaining--
		if cur.TicksRemaining <= 0 {
			s.reflag = true
		}
	}
	reschedule := s.reflag
	s.reflag = false
	s.mu.Unlock()
	g.Release()

	for _, t := range woken {
		s.enqueueLocked_public(t)
	}
	if reschedule {
		s.Schedule()
	}
}

// enqueueLocked_public is enqueue without taking the IRQ guard, used
// by Tick for the sleepers it wakes after releasing the guard; named
// distinctly from
// enqueueLocked (which additionally assumes s.mu) since this one takes
// s.mu itself.
func (s *Scheduler) enqueueLocked_public(t *TCB) {
	s.mu.Lock()
	s.enqueueLocked(t)
	s.mu.Unlock()
}

// pickNextLocked scans priority levels low-to-high and dequeues the
// head of the first non-empty queue, per spec §4.8 step 2.
func (s *Scheduler) pickNextLocked() *TCB {
	for lvl := 0; lvl < Levels; lvl++ {
		q := s.runQueues[lvl]
		if len(q) > 0 {
			t := q[0]
			s.runQueues[lvl] = q[1:]
			t.InRunQueue = false
			return t
		}
	}
	return nil
}

// defaultIdleFn is invoked directly (not as a context switch) whenever
// no task is runnable, per spec §4.8 step 2 and §9 "never enter it
// through the normal context-switch path." It runs hal.Default.Halt
// plus one reap attempt; it is unexported, so only this package (and
// its tests) can replace it.
var defaultIdleFn = func(s *Scheduler) {
	hal.Default.Halt()
	s.ReapOne()
}

// Schedule implements spec §4.8's schedule(): pick the next runnable
// task, requeue the previous one if it was still running, perform the
// switch, and restore IF. Locks are released before invoking the
// OnFirstRun/OnResume hooks, since spec §5 forbids holding a lock
// across anything that stands in for the switch itself.
func (s *Scheduler) Schedule() {
	g := hal.Default.IRQGuard()

	s.mu.Lock()
	next := s.pickNextLocked()
	if next == nil {
		s.mu.Unlock()
		g.Release()
		defaultIdleFn(s)
		return
	}

	prev := s.current
	if next == prev {
		next.PCB.SetState(proc.Running)
		s.LastSwitch = NoSwitch
		s.mu.Unlock()
		g.Release()
		return
	}

	if prev != nil && !prev.isIdle() && prev.PCB.GetState() == proc.Running {
		prev.PCB.SetState(proc.Ready)
		s.enqueueLocked(prev)
	}

	s.current = next
	next.PCB.SetState(proc.Running)
	next.TicksRemaining = sliceTicks(clampLevel(next.EffectivePriority))

	first := !next.PCB.HasRun
	if first {
		next.PCB.HasRun = true
	}
	s.mu.Unlock()
	g.Release()

	var prevPCB *proc.PCB
	if prev != nil && !prev.isIdle() {
		prevPCB = prev.PCB
	}
	if first {
		s.LastSwitch = FirstRun
		if s.OnFirstRun != nil {
			s.OnFirstRun(next.PCB)
		}
	} else {
		s.LastSwitch = Resume
		if s.OnResume != nil {
			s.OnResume(prevPCB, next.PCB)
		}
	}
}

// SleepMs implements spec §4.8 sleep_ms: sleep_ms(0) yields (one
// Schedule call with the caller re-enqueued immediately); otherwise the
// caller is marked SLEEPING and inserted into the sleep queue in
// wake-tick order, with a wake tick that overflows clamped to
// ^uint64(0) (the 64-bit analogue of the classic 32-bit clamp).
func (s *Scheduler) SleepMs(t *TCB, ms int) {
	if ms <= 0 {
		s.enqueue(t)
		s.Schedule()
		return
	}

	g := hal.Default.IRQGuard()
	hz := hal.Default.TicksPerSecond()
	reqTicks := uint64(ms) * hz / 1000
	if reqTicks == 0 {
		reqTicks = 1
	}

	s.mu.Lock()
	now := hal.Default.Now()
	wake := now + reqTicks
	if wake < now { // overflow
		wake = ^uint64(0)
	}
	t.wakeTick = wake
	t.PCB.SetState(proc.Sleeping)

	i := 0
	for i < len(s.sleep) && s.sleep[i].wakeTick <= wake {
		i++
	}
	s.sleep = append(s.sleep, nil)
	copy(s.sleep[i+1:], s.sleep[i:])
	s.sleep[i] = t
	s.mu.Unlock()
	g.Release()

	s.Schedule()
}

// Block marks t BLOCKED and removes it from any run queue, leaving it
// off every queue until Unblock is called; used by tty/pipe-style
// waiters that park via a blocking relationship rather than a timer.
func (s *Scheduler) Block(t *TCB) {
	g := hal.Default.IRQGuard()
	s.mu.Lock()
	s.removeFromQueueLocked(t)
	s.mu.Unlock()
	g.Release()
	t.PCB.SetState(proc.Blocked)
}

// Unblock implements scheduler_unblock_task: a BLOCKED task transitions
// to READY and is enqueued, and the reschedule hint is set so the next
// tick or explicit Schedule call considers it.
func (s *Scheduler) Unblock(t *TCB) {
	t.PCB.SetState(proc.Ready)
	s.enqueue(t)

	g := hal.Default.IRQGuard()
	s.mu.Lock()
	s.reflag = true
	s.mu.Unlock()
	g.Release()
}

// RemoveCurrentTaskWithCode implements remove_current_task_with_code:
// marks the current task ZOMBIE, records its exit code, and calls
// Schedule; it must not return to the caller's kernel stack, which
// sched.Scheduler cannot itself enforce in a hosted simulator (there is
// no real stack to abandon), so callers must treat this call as
// diverging and never touch the calling TCB's state again.
func (s *Scheduler) RemoveCurrentTaskWithCode(t *TCB, code int32) {
	t.PCB.ExitCode = code
	t.PCB.SetState(proc.Zombie)

	g := hal.Default.IRQGuard()
	s.mu.Lock()
	s.removeFromQueueLocked(t)
	s.mu.Unlock()
	g.Release()

	s.wakeWaiters(t.PCB.PPID)
	s.Schedule()
}

// ReapOne is the zombie-reaper idle-task work item (spec §4.8): it
// splices out one ORPHANED zombie task from the all-tasks list and
// destroys it, returning false if there was nothing to reap. A zombie
// whose original parent is still alive is left alone here even if it
// is sitting unqueued (sleeping, blocked, or simply not yet in
// waitpid): that parent still owns collecting its exit status via
// waitpid, and reaping it out from under them would let the child's
// PID and exit code vanish before the parent ever observes either.
// Only processes Table.Reparent has already handed to InitPID — true
// orphans nobody is ever going to wait() for — are this reaper's job,
// mirroring a real kernel's init loop reaping adopted orphans.
func (s *Scheduler) ReapOne() bool {
	g := hal.Default.IRQGuard()
	s.mu.Lock()
	var victim *TCB
	for pid, t := range s.all {
		if t.PCB.GetState() == proc.Zombie && t.PCB.Orphaned {
			victim = t
			delete(s.all, pid)
			break
		}
	}
	s.mu.Unlock()
	g.Release()

	if victim == nil {
		return false
	}
	proc.DestroyProcess(s.table, victim.PCB)
	return true
}
