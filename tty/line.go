// Package tty implements the terminal line discipline (spec §4.13, C9):
// a single process-wide cooked-input buffer fed by keyboard events and
// drained by a blocking line read on fd 0. Grounded on gopher-os's
// kernel/driver/tty callback shape (printable/backspace/enter decoding
// feeding a ring of decoded key events); the actual host keyboard is
// bridged in by cmd/nucleus, which turns raw terminal bytes from
// golang.org/x/term into KeyEvents the way smoynes-elsie's
// internal/tty.Console turns host input into its own event stream.
package tty

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/errno"
)

// MaxInputLength bounds the cooked-line buffer; printable characters
// typed once it is full are silently dropped, per spec §4.13.
const MaxInputLength = 256

// KeyKind classifies a decoded keyboard event.
type KeyKind int

const (
	KeyPrintable KeyKind = iota
	KeyBackspace
	KeyEnter
)

// KeyEvent is one decoded keyboard event, the unit pushed by the
// keyboard IRQ handler into the line discipline.
type KeyEvent struct {
	Kind KeyKind
	Ch   byte
}

// Echo is how the line discipline writes the bytes a keystroke should
// echo back to the display (the VGA terminal and serial, per spec
// §6 "Console vnode"); cmd/nucleus supplies the real implementation,
// tests supply a recording one.
type Echo interface {
	Write(p []byte)
}

// LineDiscipline is the single global cooked-input buffer plus its one
// permitted blocking waiter (spec §4.13).
type LineDiscipline struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf     []byte
	ready   bool
	waiting bool

	echo Echo
}

// New builds a line discipline that echoes keystrokes through echo
// (nil is permitted: input is buffered without any echo, used by
// tests that don't care about display output).
func New(echo Echo) *LineDiscipline {
	ld := &LineDiscipline{echo: echo}
	ld.cond = sync.NewCond(&ld.mu)
	return ld
}

func (ld *LineDiscipline) writeEcho(p []byte) {
	if ld.echo != nil {
		ld.echo.Write(p)
	}
}

// Feed is the keyboard IRQ handler's callback: it decodes one KeyEvent
// into the cooked buffer, echoing and waking the waiter as needed,
// exactly as spec §4.13 describes.
func (ld *LineDiscipline) Feed(ev KeyEvent) {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	switch ev.Kind {
	case KeyPrintable:
		if len(ld.buf) < MaxInputLength {
			ld.buf = append(ld.buf, ev.Ch)
			ld.writeEcho([]byte{ev.Ch})
		}
	case KeyBackspace:
		if len(ld.buf) > 0 {
			ld.buf = ld.buf[:len(ld.buf)-1]
			ld.writeEcho([]byte("\b \b"))
		}
	case KeyEnter:
		ld.ready = true
		ld.writeEcho([]byte("\n"))
		ld.cond.Broadcast()
	}
}

// ReadLineBlocking copies at most len(buf)-1 bytes of the next ready
// line into buf, NUL-terminates it, clears the buffer, and returns the
// byte count. It blocks the caller (by parking the calling goroutine on
// the line discipline's condition variable, the concrete realization
// this hosted simulator gives to "mark BLOCKED and schedule") until a
// line becomes ready. Only one goroutine may wait at a time; a second
// concurrent caller gets errno.EBUSY immediately, per spec §4.13.
func (ld *LineDiscipline) ReadLineBlocking(buf []byte) (int, errno.Errno) {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	if !ld.ready {
		if ld.waiting {
			return 0, errno.EBUSY
		}
		ld.waiting = true
		for !ld.ready {
			ld.cond.Wait()
		}
		ld.waiting = false
	}

	n := len(ld.buf)
	if n > len(buf)-1 {
		n = len(buf) - 1
	}
	copy(buf, ld.buf[:n])
	buf[n] = 0
	ld.buf = nil
	ld.ready = false
	return n, errno.Ok
}
