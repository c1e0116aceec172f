package sched

import "github.com/TorMartin-ops/nucleus/hal"

// AddBlockedTask implements spec §4.10 step 1: waiter blocks on
// holder. It refuses to create an edge that would close a cycle (spec
// §9 "implementations should detect and refuse to add an edge that
// would close a cycle"), since the blocking graph is only guaranteed
// acyclic by construction as long as that check holds. Returns false
// if the edge was refused.
func (s *Scheduler) AddBlockedTask(waiter, holder *TCB) bool {
	if waiter == holder {
		return false
	}
	for h := holder; h != nil; h = h.BlockingOn {
		if h == waiter {
			return false // would close a cycle
		}
	}

	waiter.BlockingOn = holder
	holder.BlockedTasks = append(holder.BlockedTasks, waiter)

	s.propagate(waiter, holder)
	return true
}

// propagate implements spec §4.10 step 2: if waiter's effective
// priority outranks holder's, raise holder's effective priority to
// match, move it to the matching ready queue if it's currently
// queued, and recurse into whatever holder itself is blocked on.
func (s *Scheduler) propagate(waiter, holder *TCB) {
	if waiter.EffectivePriority >= holder.EffectivePriority {
		return
	}
	holder.EffectivePriority = waiter.EffectivePriority
	s.requeueAtEffective(holder)
	if holder.BlockingOn != nil {
		s.propagate(holder, holder.BlockingOn)
	}
}

// requeueAtEffective moves t to the run queue matching its current
// EffectivePriority, if it is currently enqueued at all.
func (s *Scheduler) requeueAtEffective(t *TCB) {
	g := hal.Default.IRQGuard()
	s.mu.Lock()
	if t.InRunQueue {
		s.removeFromQueueLocked(t)
		s.enqueueLocked(t)
	}
	s.mu.Unlock()
	g.Release()
}

// RemoveBlockedTask implements spec §4.10's unblock half: waiter is
// removed from holder's blocked-tasks list, and holder's effective
// priority is recomputed as min(base, min over remaining waiters'
// effective priorities); if that changed and holder is queued, it is
// moved to the matching queue.
func (s *Scheduler) RemoveBlockedTask(waiter, holder *TCB) {
	for i, w := range holder.BlockedTasks {
		if w == waiter {
			holder.BlockedTasks = append(holder.BlockedTasks[:i], holder.BlockedTasks[i+1:]...)
			break
		}
	}
	if waiter.BlockingOn == holder {
		waiter.BlockingOn = nil
	}

	newEff := holder.BasePriority
	for _, w := range holder.BlockedTasks {
		if w.EffectivePriority < newEff {
			newEff = w.EffectivePriority
		}
	}
	if newEff == holder.EffectivePriority {
		return
	}
	holder.EffectivePriority = newEff
	s.requeueAtEffective(holder)
}
