// Package console implements the console/VFS glue (spec §4.11, C11):
// the stdin/stdout/stderr vnodes every process is given at creation,
// and the dispatch rule that recognises a pipe vnode (a vfs.Vnode
// whose backing "data" is a *pipe.Pipe rather than a filesystem
// driver) and routes reads/writes to it instead of the VFS. Grounded
// on biscuit's fd/fd.go device-vnode dispatch and spec §4.12/§4.13.
package console

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/pipe"
	"github.com/TorMartin-ops/nucleus/sched"
	"github.com/TorMartin-ops/nucleus/tty"
	"github.com/TorMartin-ops/nucleus/vfs"
)

// Writer is the host-facing sink stdout/stderr write through (the VGA
// terminal and serial port on real hardware; cmd/nucleus binds this to
// the host process's os.Stdout).
type Writer interface {
	Write(p []byte) (int, error)
}

// Vnode is the stdio vnode: reads go through the terminal line
// discipline, writes go to the host writer unchanged, and lseek always
// fails since a terminal is not seekable, per spec §6.
type Vnode struct {
	line *tty.LineDiscipline
	out  Writer
}

// New builds a console vnode backed by line (stdin) and out (stdout /
// stderr).
func New(line *tty.LineDiscipline, out Writer) *Vnode {
	return &Vnode{line: line, out: out}
}

func (v *Vnode) Read(buf []byte, _ int64) (int, errno.Errno) {
	return v.line.ReadLineBlocking(buf)
}

func (v *Vnode) Write(buf []byte, _ int64) (int, errno.Errno) {
	n, err := v.out.Write(buf)
	if err != nil {
		return n, errno.EIO
	}
	return n, errno.Ok
}

func (v *Vnode) Stat() (vfs.Stat, errno.Errno)            { return vfs.Stat{}, errno.Ok }
func (v *Vnode) Lseek(int64, int) (int64, errno.Errno)    { return 0, errno.ESPIPE }
func (v *Vnode) Readdir() ([]vfs.Dirent, errno.Errno)     { return nil, errno.ENOTDIR }
func (v *Vnode) Close() errno.Errno                       { return errno.Ok }

var _ vfs.Vnode = (*Vnode)(nil)

// PipeVnode wraps one end of a pipe.Pipe as a vfs.Vnode, so the FD
// table and syscall read/write dispatch can treat a pipe end exactly
// like any other open file while actually routing I/O through the
// pipe (spec §4.14's "vnode is recognisable as a pipe when its
// filesystem-driver slot is null and its per-vnode data pointer is
// non-null" — here that recognition is just the concrete Go type,
// since this is a typed language rather than a tagged-union C one).
type PipeVnode struct {
	p        *pipe.Pipe
	isWriter bool

	// sched/self, when both set, let a blocking Read/Write on this end
	// register a priority-inheritance edge (spec §4.10) against
	// whichever task last touched the other end. Nil for pipe ends with
	// no live scheduler context (unexercised today: pipe creation isn't
	// one of the required syscalls, so every pipe currently in the tree
	// is wired up directly by kernel-internal or test code).
	sched *sched.Scheduler
	self  *sched.TCB
}

// NewPipeReadEnd and NewPipeWriteEnd wrap the two ends of p with no
// priority-inheritance wiring.
func NewPipeReadEnd(p *pipe.Pipe) *PipeVnode  { return &PipeVnode{p: p, isWriter: false} }
func NewPipeWriteEnd(p *pipe.Pipe) *PipeVnode { return &PipeVnode{p: p, isWriter: true} }

// NewPipeReadEndFor and NewPipeWriteEndFor wrap the two ends of p the
// same way, additionally binding the task that owns this end so its
// blocking reads/writes participate in priority inheritance.
func NewPipeReadEndFor(p *pipe.Pipe, s *sched.Scheduler, self *sched.TCB) *PipeVnode {
	return &PipeVnode{p: p, isWriter: false, sched: s, self: self}
}

func NewPipeWriteEndFor(p *pipe.Pipe, s *sched.Scheduler, self *sched.TCB) *PipeVnode {
	return &PipeVnode{p: p, isWriter: true, sched: s, self: self}
}

func (v *PipeVnode) Read(buf []byte, _ int64) (int, errno.Errno) {
	if v.isWriter {
		return 0, errno.EINVAL
	}
	return v.p.Read(buf, v.sched, v.self)
}

func (v *PipeVnode) Write(buf []byte, _ int64) (int, errno.Errno) {
	if !v.isWriter {
		return 0, errno.EINVAL
	}
	return v.p.Write(buf, v.sched, v.self)
}

func (v *PipeVnode) Stat() (vfs.Stat, errno.Errno)         { return vfs.Stat{}, errno.Ok }
func (v *PipeVnode) Lseek(int64, int) (int64, errno.Errno) { return 0, errno.ESPIPE }
func (v *PipeVnode) Readdir() ([]vfs.Dirent, errno.Errno)  { return nil, errno.ENOTDIR }

func (v *PipeVnode) Close() errno.Errno {
	if v.isWriter {
		v.p.CloseWriter()
	} else {
		v.p.CloseReader()
	}
	return errno.Ok
}

var _ vfs.Vnode = (*PipeVnode)(nil)
