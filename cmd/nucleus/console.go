// console.go bridges the real host terminal to the simulated line
// discipline (spec §4.13): raw host keystrokes become tty.KeyEvents,
// and the line discipline's echo writes go straight back out to the
// host terminal. Grounded on smoynes-elsie's internal/tty.Console
// (term.MakeRaw/Restore lifecycle, a background goroutine decoding
// raw input) adapted from LC-3 keyboard/display devices to this
// core's tty.LineDiscipline.
package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/TorMartin-ops/nucleus/tty"
)

// HostConsole owns the host terminal's raw-mode lifetime and feeds
// decoded keystrokes into a line discipline, echoing its output back
// to the same terminal.
type HostConsole struct {
	fd    int
	state *term.State
}

// Write implements tty.Echo by writing straight to stdout.
func (c *HostConsole) Write(p []byte) {
	os.Stdout.Write(p)
}

// NewHostConsole puts stdin into raw mode, if it is in fact a
// terminal, and returns a HostConsole ready to drive a line
// discipline. rawTTY false skips raw-mode entirely (used by `demo`,
// which never reads real keystrokes).
func NewHostConsole(rawTTY bool) (*HostConsole, error) {
	fd := int(os.Stdin.Fd())
	if !rawTTY || !term.IsTerminal(fd) {
		return &HostConsole{fd: -1}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("console: raw mode: %w", err)
	}
	return &HostConsole{fd: fd, state: state}, nil
}

// Restore returns the host terminal to its prior state, a no-op if
// raw mode was never entered.
func (c *HostConsole) Restore() {
	if c.state != nil {
		term.Restore(c.fd, c.state)
	}
}

// Run reads raw bytes from stdin until ctx is cancelled or stdin
// closes, decoding each one into a tty.KeyEvent fed to line. Backspace
// is recognised as either ASCII BS or DEL, matching common terminal
// emulator behavior; Ctrl-C (0x03) ends Run, and every other byte
// below 0x20 except CR/LF is ignored rather than treated as printable.
func (c *HostConsole) Run(ctx context.Context, line *tty.LineDiscipline) error {
	if c.fd == -1 {
		<-ctx.Done()
		return ctx.Err()
	}

	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := os.Stdin.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		switch b := buf[0]; {
		case b == '\r' || b == '\n':
			line.Feed(tty.KeyEvent{Kind: tty.KeyEnter})
		case b == 0x7f || b == 0x08:
			line.Feed(tty.KeyEvent{Kind: tty.KeyBackspace})
		case b == 0x03: // Ctrl-C
			return ctx.Err()
		case b >= 0x20 && b < 0x7f:
			line.Feed(tty.KeyEvent{Kind: tty.KeyPrintable, Ch: b})
		}
	}
}
