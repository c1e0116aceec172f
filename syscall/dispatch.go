// Package syscall implements the system-call surface (spec §4.11-§4.16,
// C8): the syscall numbers and dispatch table, and, spread across the
// other files in this package, the per-call implementations that glue
// proc/sched/vm/uaccess/vfs/tty/pipe together. Grounded on biscuit's
// caller/caller.go call-path idea (a dispatch table keyed by syscall
// number handing each call its arguments and a *caller.Tnote-equivalent
// handle onto the current task), generalized into a single
// Dispatch(nr, a1, a2, a3, ctx) int32 entry point matching spec §6's
// "arguments passed in registers as (arg1, arg2, arg3, isr_frame*)".
package syscall

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/proc"
	"github.com/TorMartin-ops/nucleus/sched"
	"github.com/TorMartin-ops/nucleus/vfs"
)

// Nr is a syscall number.
type Nr int32

// The required syscall surface, per spec §6.
const (
	NrRead Nr = iota
	NrWrite
	NrOpen
	NrClose
	NrLseek
	NrDup2
	NrMkdir
	NrRmdir
	NrUnlink
	NrStat
	NrChdir
	NrGetcwd
	NrGetdents
	NrExit
	NrFork
	NrExecve
	NrWaitpid
	NrGetpid
	NrGetppid
)

// Open flags, Linux-numbered subset (spec doesn't name the exact
// values but §6 ties errno to "Linux conventions for the subset used",
// so open's flag bits follow the same convention).
const (
	ORDONLY = 0x0
	OWRONLY = 0x1
	ORDWR   = 0x2
	OCREAT  = 0x40
	OTRUNC  = 0x200
)

// MaxRWChunkSize bounds a single read/write iteration's kernel bounce
// buffer, per spec §4.12 (MAX_RW_CHUNK_SIZE = PAGE_SIZE).
const MaxRWChunkSize = 4096

// Kernel bundles the subsystem handles every syscall implementation
// needs: the process table (PID lookup, fork/exec/destroy), the
// scheduler (blocking, waking, reaping), and the filesystem driver
// path-based calls dispatch through (spec §6 "VFS driver table").
type Kernel struct {
	Table *proc.Table
	Sched *sched.Scheduler
	FS    vfs.Driver
}

// Dispatch is the syscall-ABI entry point: it looks up nr's
// implementation, runs it against the calling task's PCB/TCB, and
// encodes the result as spec §6 requires — non-negative on success,
// -errno on failure. Unknown syscall numbers report -ENOSYS, per the
// spec's "sys_stat/sys_chdir/sys_getdents are stubs" note generalized
// to any number this table doesn't recognise (those three are no
// longer stubs here; see syscall/fs.go).
func Dispatch(k *Kernel, p *proc.PCB, t *sched.TCB, nr Nr, a1, a2, a3 uint32) int32 {
	p.Acct.RecordSyscall()

	switch nr {
	case NrRead:
		return encode(sysRead(k, p, a1, a2, a3))
	case NrWrite:
		return encode(sysWrite(k, p, a1, a2, a3))
	case NrOpen:
		return encode(sysOpen(k, p, a1, a2))
	case NrClose:
		return encode(0, p.FDs.Close(int(int32(a1))))
	case NrLseek:
		return encode(sysLseek(p, a1, a2, a3))
	case NrDup2:
		return encode(sysDup2(p, a1, a2))
	case NrMkdir:
		return encode(sysMkdir(k, p, a1))
	case NrRmdir:
		return encode(sysRmdir(k, p, a1))
	case NrUnlink:
		return encode(sysUnlink(k, p, a1))
	case NrStat:
		return encode(sysStat(k, p, a1, a2))
	case NrChdir:
		return encode(sysChdir(k, p, a1))
	case NrGetcwd:
		return encode(sysGetcwd(k, p, a1, a2))
	case NrGetdents:
		return encode(sysGetdents(k, p, a1, a2, a3))
	case NrExit:
		sysExit(k, t, int32(a1))
		return 0 // unreachable in a real kernel; see sched.RemoveCurrentTaskWithCode
	case NrFork:
		return encode(sysFork(k, p, t))
	case NrExecve:
		return encode(sysExecve(k, p, a1, a2, a3))
	case NrWaitpid:
		return encode(sysWaitpid(k, p, t, int32(a1), a2, int32(a3)))
	case NrGetpid:
		return p.PID
	case NrGetppid:
		return p.PPID
	default:
		return errno.ENOSYS.Neg()
	}
}

// encode turns a (value, errno) pair into the syscall ABI's single
// signed return value.
func encode(v int32, rc errno.Errno) int32 {
	if rc != errno.Ok {
		return rc.Neg()
	}
	return v
}
