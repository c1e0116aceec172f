// Package hal abstracts the CPU/timer primitives the rest of the
// kernel core needs (§4.13/C13): interrupt masking, TLB invalidation,
// memory barriers, and the PIT tick source. Grounded on gopher-os's
// kernel/hal + kernel/cpu split — a portable interface with an
// arch-specific backend — except our only backend is a Go-level
// simulation (hal.Sim) since there is no real CPU underneath.
package hal

// HAL is the narrow interface every other package programs against.
// A real x86-32 port would implement it with inline assembly the way
// gopher-os's kernel/cpu package does (cli/sti, invlpg, mfence); this
// module's only implementation is the in-process simulation below.
type HAL interface {
	// IRQGuard disables interrupts until Release is called, restoring
	// the prior IF state the way gopher-os's archAcquireSpinlock
	// documents its callers must.
	IRQGuard() IRQGuard

	// FlushTLBEntry invalidates a single virtual address's TLB entry.
	FlushTLBEntry(va uintptr)
	// FlushTLBAll invalidates the entire TLB (e.g. after a CR3 load).
	FlushTLBAll()

	// Now returns the current tick count, advanced by Tick.
	Now() uint64
	// Tick advances the simulated PIT by one tick and returns the new
	// count; the scheduler calls this once per simulated timer IRQ.
	Tick() uint64
	// TicksPerSecond is the configured PIT frequency.
	TicksPerSecond() uint64

	// Halt executes the idle instruction (hlt), the "sti; hlt" idle
	// step of spec §9 "Idle task". Sim's Halt returns immediately and
	// does not wait for a tick.
	Halt()
}

// IRQGuard is returned by HAL.IRQGuard; Release restores the interrupt
// state that was in effect before the guard was taken.
type IRQGuard interface {
	Release()
}

// Default is the process-wide HAL instance. Every package that needs
// IRQ masking, TLB control, or the tick source uses hal.Default rather
// than taking a HAL as a constructor argument everywhere, mirroring how
// gopher-os's kernel/cpu functions are called as free functions.
var Default HAL = NewSim(1000)
