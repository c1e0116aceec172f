package proc

import "sync"

// Accounting tracks the per-process resource counters biscuit's
// accnt/accnt.go keeps (user/kernel time in ticks and a syscall tally),
// trimmed to what C7's tick handler and C8's dispatcher can actually
// drive in this simulator.
type Accounting struct {
	mu sync.Mutex

	UserTicks   uint64
	KernelTicks uint64
	Syscalls    uint64
}

// TickUser and TickKernel count one timer tick charged to user or
// kernel mode, respectively. sched's tick handler calls TickUser once
// per tick for the running process; nothing calls TickKernel, so
// KernelTicks stays zero.
func (a *Accounting) TickUser()   { a.mu.Lock(); a.UserTicks++; a.mu.Unlock() }
func (a *Accounting) TickKernel() { a.mu.Lock(); a.KernelTicks++; a.mu.Unlock() }

// RecordSyscall is called by the dispatcher once per syscall entry.
func (a *Accounting) RecordSyscall() { a.mu.Lock(); a.Syscalls++; a.mu.Unlock() }

// Counters is a lock-free snapshot of Accounting's fields.
type Counters struct {
	UserTicks   uint64
	KernelTicks uint64
	Syscalls    uint64
}

// Snapshot returns a consistent copy of the counters.
func (a *Accounting) Snapshot() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Counters{UserTicks: a.UserTicks, KernelTicks: a.KernelTicks, Syscalls: a.Syscalls}
}
