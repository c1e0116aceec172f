// Command nucleus drives the kernel core as a host process: it boots
// the simulated subsystems, creates the init process, and either runs
// a scripted demo of the syscall surface or bridges the host terminal
// to the simulated console. Grounded on ja7ad-consumption's
// cmd/consumption/main.go cobra usage (one root command, flags bound
// onto a config struct, subcommands as separate RunE functions).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/TorMartin-ops/nucleus/config"
	"github.com/TorMartin-ops/nucleus/debug"
	"github.com/TorMartin-ops/nucleus/tty"
)

func main() {
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "nucleus",
		Short: "Hosted x86-32 teaching kernel core",
		Long: `nucleus boots a hosted simulation of a small x86-32 kernel core:
frame and buddy allocators, two-level paging, a priority-preemptive
scheduler, a narrow syscall surface, and a terminal line discipline,
all running as ordinary Go code standing in for hardware this process
never actually has.`,
	}
	cfg.BindFlags(root)

	root.AddCommand(runCmd(&cfg), demoCmd(&cfg), consoleCmd(&cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runCmd boots the kernel and drives its scheduler tick loop
// indefinitely (until interrupted), with no console attached: useful
// for exercising boot + scheduling without any I/O.
func runCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Boot the kernel and run its scheduler loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			line := tty.New(nil)
			k, err := Boot(*cfg, line, os.Stdout)
			if err != nil {
				return err
			}
			debug.Printf("boot complete: init pid=%d mem=%d bytes", k.Init.PID, cfg.MemoryBytes)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			driveTicks(ctx, k, cfg.TickInterval)
			return nil
		},
	}
}

// demoCmd boots the kernel and drives init through a short scripted
// sequence of syscalls via syscall.Dispatch directly, standing in for
// what a real CPU fetching and executing init's instructions would
// produce: this hosted simulator has nothing that executes the ELF
// image's machine code, so the demo narrates the syscall surface the
// way an integration test would, but as a human-watchable CLI command.
func demoCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Boot the kernel and narrate a scripted init syscall sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			line := tty.New(nil)
			k, err := Boot(*cfg, line, os.Stdout)
			if err != nil {
				return err
			}
			return runDemoScript(k)
		},
	}
}

// consoleCmd boots the kernel with the host terminal bridged to the
// simulated line discipline, so typed input and tty echo exercise the
// real console/read(2) path end to end.
func consoleCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Boot the kernel with the host terminal bridged to stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := NewHostConsole(cfg.RawTTY)
			if err != nil {
				return err
			}
			defer hc.Restore()

			line := tty.New(hc)
			k, err := Boot(*cfg, line, os.Stdout)
			if err != nil {
				return err
			}
			debug.SetSink(os.Stdout)
			debug.Printf("console attached, init pid=%d", k.Init.PID)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			go driveTicks(ctx, k, cfg.TickInterval)
			return hc.Run(ctx, line)
		},
	}
}

// driveTicks calls k.Sched.Tick once per interval until ctx is
// cancelled, the host-process stand-in for a real PIT IRQ firing at a
// fixed frequency.
func driveTicks(ctx context.Context, k *Kernel, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Sched.Tick()
		}
	}
}
