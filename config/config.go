// Package config collects the boot-time tunables cmd/nucleus exposes
// as command-line flags: how much physical memory to simulate, the
// PIT tick rate, and which ELF image to load as the init process.
// Grounded on ja7ad-consumption's cmd/consumption/main.go pattern — a
// single bound struct, no package-level globals for tunables — rather
// than any config file format, since the core has no persistent
// storage to read one from at boot.
package config

import (
	"time"

	"github.com/spf13/cobra"
)

// Config is every tunable cmd/nucleus's subcommands bind to cobra
// flags.
type Config struct {
	// MemoryBytes is the amount of simulated physical memory handed to
	// the frame allocator at boot (spec §4.1's "some reserved low
	// region, the rest available").
	MemoryBytes int

	// TickHz is the simulated PIT frequency the scheduler's time
	// slices (spec §4.8) are computed against.
	TickHz uint64

	// InitPath names the ELF image loaded as PID 1 (spec §4.6's "the
	// first user process").
	InitPath string

	// TickInterval is how often cmd/nucleus's driver loop calls
	// sched.Scheduler.Tick in real wall-clock time, letting a demo run
	// at a watchable pace instead of as fast as the host CPU allows.
	TickInterval time.Duration

	// RawTTY switches the `console` subcommand's host terminal into
	// raw mode so keystrokes reach the simulated line discipline
	// unbuffered (spec §4.11's tty line discipline owns buffering, not
	// the host terminal).
	RawTTY bool
}

// Default returns the tunables a bare `nucleus run` boots with.
func Default() Config {
	return Config{
		MemoryBytes:  64 * 1024 * 1024,
		TickHz:       1000,
		InitPath:     "",
		TickInterval: 10 * time.Millisecond,
		RawTTY:       true,
	}
}

// BindFlags attaches c's fields to cmd's flag set, so every nucleus
// subcommand gets the same tunables with the same defaults and names.
func (c *Config) BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&c.MemoryBytes, "mem-bytes", c.MemoryBytes, "simulated physical memory size in bytes")
	cmd.PersistentFlags().Uint64Var(&c.TickHz, "tick-hz", c.TickHz, "simulated PIT frequency in ticks/second")
	cmd.PersistentFlags().StringVar(&c.InitPath, "init", c.InitPath, "path to the ELF32 image run as the init process")
	cmd.PersistentFlags().DurationVar(&c.TickInterval, "tick-interval", c.TickInterval, "wall-clock interval between simulated timer ticks")
	cmd.PersistentFlags().BoolVar(&c.RawTTY, "raw-tty", c.RawTTY, "put the host terminal in raw mode for the console subcommand")
}
