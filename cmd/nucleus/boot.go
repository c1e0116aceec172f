// boot.go sequences the host process's equivalent of power-on: set the
// simulated timer to config.Config's tick rate, build the frame
// allocator over its simulated memory size, a canonical kernel address
// space and the process table, load and create the init process itself
// (spec §4.6's "the first user process"), install its stdio vnodes,
// then build the scheduler and an in-memory filesystem. Grounded on proc/create_test.go's newTestTable/buildELF
// helpers for the bring-up sequence, generalized from test scaffolding
// into the real boot path.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/TorMartin-ops/nucleus/config"
	"github.com/TorMartin-ops/nucleus/console"
	"github.com/TorMartin-ops/nucleus/hal"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
	"github.com/TorMartin-ops/nucleus/proc"
	"github.com/TorMartin-ops/nucleus/sched"
	"github.com/TorMartin-ops/nucleus/syscall"
	"github.com/TorMartin-ops/nucleus/tty"
	"github.com/TorMartin-ops/nucleus/vfs"
)

// Kernel bundles every subsystem a running instance needs, the host
// process's analogue of what would otherwise be global kernel state.
type Kernel struct {
	FA    *mem.FrameAllocator
	Table *proc.Table
	Sched *sched.Scheduler
	FS    vfs.Driver
	Line  *tty.LineDiscipline
	Init  *proc.PCB
	InitT *sched.TCB

	SC *syscall.Kernel
}

// Boot brings up a Kernel per cfg and creates the init process, with
// stdin wired to line (the host console bridge, or a no-op sink for
// `demo`) and stdout/stderr wired to out.
func Boot(cfg config.Config, line *tty.LineDiscipline, out console.Writer) (*Kernel, error) {
	if cfg.TickHz == 0 {
		return nil, fmt.Errorf("boot: tick-hz must be positive")
	}
	hal.Default = hal.NewSim(cfg.TickHz)

	frameCount := cfg.MemoryBytes / mem.PGSIZE
	if frameCount < 256 {
		return nil, fmt.Errorf("boot: mem-bytes too small, need at least %d bytes", 256*mem.PGSIZE)
	}
	fa := mem.NewFrameAllocator([]mem.Region{
		{Start: 0, Length: uint64(frameCount) * mem.PGSIZE, Kind: mem.RegionAvailable},
	})

	kernelAS, err := paging.New(fa, nil)
	if err != nil {
		return nil, fmt.Errorf("boot: build kernel address space: %w", err)
	}

	table := proc.NewTable(fa, kernelAS)

	elfBytes, err := loadInitImage(cfg.InitPath)
	if err != nil {
		return nil, fmt.Errorf("boot: load init image: %w", err)
	}

	initP, rc := proc.CreateUserProcess(table, proc.InitPID, elfBytes)
	if rc != 0 {
		return nil, fmt.Errorf("boot: create init process: errno %d", rc)
	}

	stdioVnode := console.New(line, out)
	for fd := 0; fd < 3; fd++ {
		if rc := initP.FDs.InstallAt(fd, stdioVnode); rc != 0 {
			return nil, fmt.Errorf("boot: install stdio fd %d: errno %d", fd, rc)
		}
	}

	s := sched.New(table)
	fs := vfs.NewMemFS()

	tcb := s.AddTask(initP, 0)

	k := &Kernel{
		FA:    fa,
		Table: table,
		Sched: s,
		FS:    fs,
		Line:  line,
		Init:  initP,
		InitT: tcb,
		SC:    &syscall.Kernel{Table: table, Sched: s, FS: fs},
	}
	return k, nil
}

// loadInitImage reads path if non-empty, otherwise returns a
// synthesized single-page ELF32 executable just substantial enough for
// proc.CreateUserProcess to map: this hosted simulator has no CPU to
// execute real machine code, so the default init image exists only to
// give process creation a valid address space to build, matching the
// `demo` subcommand's use of direct syscall.Dispatch calls in place of
// CPU-driven syscalls.
func loadInitImage(path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return buildPlaceholderELF(0x08048000), nil
}

func buildPlaceholderELF(entry uint32) []byte {
	const (
		ehdrSize = 52
		phdrSize = 32
	)
	code := []byte{0xf4} // hlt; never actually fetched in this simulator

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 1, 1}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(3))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, entry)
	binary.Write(&buf, binary.LittleEndian, uint32(ehdrSize))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(&buf, binary.LittleEndian, uint16(phdrSize))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	fileOff := uint32(ehdrSize + phdrSize)
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, fileOff)
	binary.Write(&buf, binary.LittleEndian, entry)
	binary.Write(&buf, binary.LittleEndian, entry)
	binary.Write(&buf, binary.LittleEndian, uint32(len(code)))
	binary.Write(&buf, binary.LittleEndian, uint32(len(code)))
	binary.Write(&buf, binary.LittleEndian, uint32(1|4))
	binary.Write(&buf, binary.LittleEndian, uint32(mem.PGSIZE))

	buf.Write(code)
	return buf.Bytes()
}
