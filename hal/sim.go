package hal

import "sync"

// Sim is a Go-only HAL backend: IRQ masking becomes a plain mutex, TLB
// flushes are no-ops (there is no real MMU to invalidate), and the PIT
// is a counter advanced explicitly by whoever drives the simulation
// (normally sched.Scheduler.Tick). This mirrors the role gopher-os's
// kernel/cpu package plays for its x86 backend, but targets "no real
// hardware" instead of "real x86".
type Sim struct {
	mu sync.Mutex

	ticksPerSecond uint64
	ticks          uint64

	irqMask sync.Mutex
}

// NewSim constructs a simulated HAL ticking at hz ticks/second.
func NewSim(hz uint64) *Sim {
	return &Sim{ticksPerSecond: hz}
}

type simGuard struct {
	s *Sim
}

func (g simGuard) Release() {
	g.s.irqMask.Unlock()
}

// IRQGuard masks "interrupts" by taking a dedicated mutex; real tasks
// and the tick source both go through this guard so that a caller
// holding it is never re-entered, the same mutual-exclusion property
// real cli/sti masking provides on a single CPU.
func (s *Sim) IRQGuard() IRQGuard {
	s.irqMask.Lock()
	return simGuard{s}
}

func (s *Sim) FlushTLBEntry(uintptr) {}
func (s *Sim) FlushTLBAll()          {}

func (s *Sim) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func (s *Sim) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	return s.ticks
}

func (s *Sim) TicksPerSecond() uint64 {
	return s.ticksPerSecond
}

// Halt is a no-op in the simulator: the scheduler's idle loop already
// returns control to the driver (test or cmd/nucleus) instead of
// spinning, since there is no real hlt to block on.
func (s *Sim) Halt() {}
