// Package pipe implements the in-kernel byte pipe (spec §4.14, C10): a
// bounded ring buffer shared by a read end and a write end, with
// reader/writer wake-up and EOF/EPIPE semantics on close. Fresh code:
// no single teacher file matches a byte pipe, so this is shaped like
// the corpus's other small single-purpose concurrency primitives
// (one struct, a condition variable, narrow exported surface).
package pipe

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/sched"
)

// Capacity is the pipe's fixed ring-buffer size in bytes.
const Capacity = 4096

// Pipe is one in-kernel pipe. Both ends share the same *Pipe; Read and
// Write are called through the per-end vnode wrappers
// (console.PipeVnode).
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf     []byte // data currently buffered, len <= Capacity
	readers int
	writers int

	// lastReader/lastWriter record whichever task most recently called
	// Read/Write, the closest thing a pipe (whose ends are ref-counted,
	// not bound to one fixed owning task) has to the tty line
	// discipline's single waiter: the blocking relationship's holder
	// for priority inheritance (spec §4.10) when Read blocks on an
	// empty buffer or Write blocks on a full one.
	lastReader, lastWriter *sched.TCB
}

// New returns a pipe with one reader and one writer reference, the
// state immediately after pipe(2) creates both fds.
func New() *Pipe {
	p := &Pipe{readers: 1, writers: 1}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read consumes up to len(buf) bytes, blocking while the pipe is empty
// and at least one writer remains open. Once every writer has closed,
// a read against an empty pipe returns (0, errno.Ok): EOF, per spec
// §4.14. s and self identify the calling task for priority inheritance
// (spec §4.10): while self blocks, it is registered as waiting on
// whichever task last wrote to the pipe. Either may be nil (no live
// scheduler context, e.g. kernel-internal pipe use or a test that
// doesn't care), in which case Read behaves exactly as before and
// skips the inheritance bookkeeping.
func (p *Pipe) Read(buf []byte, s *sched.Scheduler, self *sched.TCB) (int, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if self != nil {
		p.lastReader = self
	}

	var holder *sched.TCB
	if s != nil && self != nil && len(p.buf) == 0 && p.writers > 0 {
		holder = p.lastWriter
		if holder != nil {
			s.AddBlockedTask(self, holder)
		}
	}
	for len(p.buf) == 0 && p.writers > 0 {
		p.cond.Wait()
	}
	if holder != nil {
		s.RemoveBlockedTask(self, holder)
	}

	if len(p.buf) == 0 {
		return 0, errno.Ok
	}
	n := copy(buf, p.buf)
	p.buf = p.buf[n:]
	p.cond.Broadcast()
	return n, errno.Ok
}

// Write appends up to len(buf) bytes, blocking while the pipe is full
// and at least one reader remains open. Once every reader has closed,
// Write fails immediately with errno.EPIPE, per spec §4.14. s and self
// are the same priority-inheritance identification Read takes, with
// the holder being whichever task last read from the pipe.
func (p *Pipe) Write(buf []byte, s *sched.Scheduler, self *sched.TCB) (int, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if self != nil {
		p.lastWriter = self
	}

	if p.readers == 0 {
		return 0, errno.EPIPE
	}
	total := 0
	for len(buf) > 0 {
		var holder *sched.TCB
		if s != nil && self != nil && len(p.buf) >= Capacity && p.readers > 0 {
			holder = p.lastReader
			if holder != nil {
				s.AddBlockedTask(self, holder)
			}
		}
		for len(p.buf) >= Capacity && p.readers > 0 {
			p.cond.Wait()
		}
		if holder != nil {
			s.RemoveBlockedTask(self, holder)
		}
		if p.readers == 0 {
			if total > 0 {
				return total, errno.Ok
			}
			return 0, errno.EPIPE
		}
		room := Capacity - len(p.buf)
		n := len(buf)
		if n > room {
			n = room
		}
		p.buf = append(p.buf, buf[:n]...)
		buf = buf[n:]
		total += n
		p.cond.Broadcast()
	}
	return total, errno.Ok
}

// CloseReader drops one reader reference; once the last reader closes,
// blocked writers wake and fail with EPIPE.
func (p *Pipe) CloseReader() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readers > 0 {
		p.readers--
	}
	p.cond.Broadcast()
}

// CloseWriter drops one writer reference; once the last writer closes,
// blocked readers wake and see EOF.
func (p *Pipe) CloseWriter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writers > 0 {
		p.writers--
	}
	p.cond.Broadcast()
}
