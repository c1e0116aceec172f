// Package debug implements the core's ambient diagnostic surface:
// structured logging captured in an early ring buffer until a real
// console sink is available, an unrecoverable-fault path, an
// allocator-pressure stats snapshot exported in pprof's profile
// format, and disassembly of a faulting instruction's bytes. Grounded
// on gopher-os's kernel/kfmt package (Printf/Panic over a ring buffer
// that later hands off to the real console), adapted to log/slog
// rather than a hand-rolled formatter.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/TorMartin-ops/nucleus/hal"
)

var (
	mu     sync.Mutex
	buf    = newRingBuffer()
	logger = slog.New(slog.NewTextHandler(buf, nil))
)

// SetSink redirects future log output to also go to w, the point at
// which cmd/nucleus hands klog a real console once tty/console are up
// (gopher-os's kfmt keeps buffering into the ring regardless, so a
// late-attaching reader can still replay everything written so far).
func SetSink(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewTextHandler(io.MultiWriter(buf, w), nil))
}

// Printf logs a formatted diagnostic line at info level, the core's
// equivalent of kfmt.Printf.
func Printf(format string, args ...interface{}) {
	mu.Lock()
	l := logger
	mu.Unlock()
	l.Info(fmt.Sprintf(format, args...))
}

// Drain copies out and consumes whatever diagnostic output hasn't
// been read yet, for a console that attaches after boot to replay
// early log lines.
func Drain(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	return buf.Read(p)
}

// Panic logs err as an unrecoverable error and halts the HAL; it never
// returns, the core's counterpart to gopher-os's kfmt.Panic standing
// in for a real triple-fault/halt on unrecoverable kernel state.
func Panic(err error) {
	mu.Lock()
	l := logger
	mu.Unlock()
	l.Error("unrecoverable error", "err", err)
	hal.Default.Halt()
	select {} // matches kfmt.Panic's "never returns"; Sim.Halt is a no-op
}
