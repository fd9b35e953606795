// Taskscope inspects a running F4OS kernel on an ARM Cortex-M target.
//
// It drives arm-none-eabi-gdb connected to OpenOCD, stops the target at
// kernel code points and reports what it finds there:
//
//   - which task was interrupted, and where, on every context switch
//   - the program counter each restored context resumes at
//   - the moment the current-task pointer becomes NULL
//   - task rings and buddy allocator free lists, live or from a RAM dump
//   - floating-point registers read through the debug core registers
//
// It also builds function symbol tables from objdump output for use on
// and off the target.
//
// Prerequisites:
//
//   - arm-none-eabi-gdb and arm-none-eabi-objdump in PATH
//   - OpenOCD running and attached to the board
//
// See 'taskscope --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/logging"
	"github.com/muurk/taskscope/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskscope",
	Short: "F4OS kernel inspection over GDB and OpenOCD",
	Long: `Inspect a running F4OS kernel through arm-none-eabi-gdb and OpenOCD.

Live commands stop the target at kernel code points and report the
interrupted task, restored contexts, task rings and allocator state.
Offline commands build symbol tables and walk RAM dumps.

Prerequisites:
  - arm-none-eabi-gdb and arm-none-eabi-objdump installed and in PATH
  - OpenOCD running and connected to the board
  - The kernel ELF the board is running, for symbols

Use 'taskscope verify-setup' to check prerequisites.`,
	Version: version.Get().Version,
	Example: `  # Check the toolchain and OpenOCD
  taskscope verify-setup

  # Report every context switch
  taskscope watch-interrupts --elf build/f4os.elf

  # Walk the allocators of a RAM dump
  taskscope print-buddy --image ram.bin 0x20001f40`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			return logging.Initialize(logLevel)
		}
		// Silent unless TASKSCOPE_LOG_LEVEL is set
		_ = logging.InitializeFromEnv()
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("taskscope {{.Version}}\n")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "taskscope %s\n", info)
		if info.GoVersion != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "built with %s\n", info.GoVersion)
		}
	},
}
