package paging

import "github.com/TorMartin-ops/nucleus/mem"

// Fault error-code bits, per the x86-32 architecture manual: the CPU
// pushes this word on every #PF before vectoring to the handler.
const (
	errPresent  = 1 << 0 // 0: no translation existed, 1: protection violation
	errWrite    = 1 << 1 // the access was a write
	errUser     = 1 << 2 // the access came from CPL 3
	errReserved = 1 << 3 // a reserved bit was set in a paging-structure entry
	errFetch    = 1 << 4 // the access was an instruction fetch (requires NX support)
)

// Fault is the decoded form of a page-fault error code plus the
// faulting linear address from CR2, the input vm's fault handler
// (spec §4.5) turns into demand-paging or stack-growth policy —
// or a SIGSEGV-equivalent process kill if none apply. Grounded on
// gopher-os's kernel/mem/vmm page-fault entry, which decodes the same
// bits before dispatching to its page-fault handler chain.
type Fault struct {
	VA       mem.Va_t
	Protection bool // true: permission violation, false: not-present
	Write    bool
	User     bool
	Reserved bool
	Fetch    bool
}

// DecodeFault turns a raw x86-32 page-fault error code and faulting
// address into a Fault.
func DecodeFault(errcode uint32, va mem.Va_t) Fault {
	return Fault{
		VA:         va,
		Protection: errcode&errPresent != 0,
		Write:      errcode&errWrite != 0,
		User:       errcode&errUser != 0,
		Reserved:   errcode&errReserved != 0,
		Fetch:      errcode&errFetch != 0,
	}
}
