package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/inspect"
	"github.com/muurk/taskscope/internal/logging"
	"github.com/muurk/taskscope/internal/ui"
)

// installFunc sets the breakpoints and rules of one live inspection.
type installFunc func(ctx context.Context, d *inspect.Dispatcher, k *inspect.Kit) error

var (
	showFrames bool

	swapHops  int
	swapWords int
	swapSkip  int
	swapLimit int
)

func init() {
	rootCmd.AddCommand(watchInterruptsCmd)
	rootCmd.AddCommand(watchRestoreCmd)
	rootCmd.AddCommand(watchNullTaskCmd)
	rootCmd.AddCommand(watchSwapCmd)
	rootCmd.AddCommand(traceAcquireCmd)
	rootCmd.AddCommand(pollI2CCmd)

	watchInterruptsCmd.Flags().BoolVar(&showFrames, "frame", false, "Also print every register of the stacked frame")

	defaults := inspect.DefaultSwapOptions()
	watchSwapCmd.Flags().IntVar(&swapHops, "hops", defaults.Hops, "Ring links to follow from the current task")
	watchSwapCmd.Flags().IntVar(&swapWords, "words", defaults.Words, "Stack words to dump")
	watchSwapCmd.Flags().IntVar(&swapSkip, "skip", defaults.Skip, "Halts to ignore before dumping")
	watchSwapCmd.Flags().IntVar(&swapLimit, "limit", defaults.Limit, "Dumps before stopping (0 = no limit)")
}

var watchInterruptsCmd = &cobra.Command{
	Use:   "watch-interrupts",
	Short: "Report the interrupted task on every context switch",
	Long: `Break on the context-switch handler, the task swap location and the
supervisor-call handler. On every halt, read the saved program counter
from the stack frame the exception pushed and report which task was
interrupted and in which function:

  'blink()' interrupted while in 'delay()'

With --frame every register of the stacked frame follows the report.`,
	Example: `  taskscope watch-interrupts --elf build/f4os.elf
  taskscope watch-interrupts --frame
  taskscope watch-interrupts --target discovery --tui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspection(cmd, "Interrupt Watch", func(ctx context.Context, d *inspect.Dispatcher, k *inspect.Kit) error {
			k.ShowFrames = showFrames
			return inspect.WatchInterrupts(ctx, d, k)
		})
	},
}

var watchRestoreCmd = &cobra.Command{
	Use:   "watch-restore",
	Short: "Report the pc each restored context resumes at",
	Long: `Break where the kernel restores a task's full context and report the
program counter saved in the software context frame below $psp:

  Restoring pc 0x8000a1c (blink())`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspection(cmd, "Restore Watch", inspect.WatchRestore)
	},
}

var watchNullTaskCmd = &cobra.Command{
	Use:   "watch-null-task",
	Short: "Stop when the current task pointer becomes NULL",
	Long: `Set a watchpoint on the kernel's current-task global and let the target
run until it is cleared. The target is left halted at the write.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspection(cmd, "Null Task Watch", inspect.WatchNullTask)
	},
}

var watchSwapCmd = &cobra.Command{
	Use:   "watch-swap",
	Short: "Dump the saved stack of an upcoming task at each swap",
	Long: `Break at the task swap location and dump the saved stack of the task a
few links ahead of the current one in the task ring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := inspect.SwapOptions{Hops: swapHops, Words: swapWords, Skip: swapSkip, Limit: swapLimit}
		return runInspection(cmd, "Swap Watch", func(ctx context.Context, d *inspect.Dispatcher, k *inspect.Kit) error {
			return inspect.WatchSwap(ctx, d, k, opts)
		})
	},
}

var traceAcquireCmd = &cobra.Command{
	Use:   "trace-acquire",
	Short: "Trace semaphore acquire attempts",
	Long: `Break at the attempt, failure and success points of the semaphore
acquire path and print one line per attempt:

  Attempting acquire... Succeeded`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspection(cmd, "Acquire Trace", inspect.TraceAcquire)
	},
}

var pollI2CCmd = &cobra.Command{
	Use:   "poll-i2c",
	Short: "Report i2c transfer results until one fails",
	Long: `Break on the i2c read and write functions, run each call to completion
and report its return value. Stops at the first call returning 0 or less.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspection(cmd, "I2C Poll", inspect.PollI2C)
	},
}

// runInspection attaches to the target, installs the rules and dispatches
// halts until a rule stops the run, the program exits or the user
// interrupts.
func runInspection(cmd *cobra.Command, title string, install installFunc) (err error) {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	printer := ui.NewPrinter(cmd.OutOrStdout())

	l, err := openLive(ctx, cmd.Flags(), true)
	if err != nil {
		printer.PrintFailure(title+" failed", err, ui.DefaultTroubleshooting)
		return err
	}
	defer closeInto(&err, l)

	printer.PrintHeader(title, cmd.CommandPath(), ui.Details{}.
		Add("Target", remote(l.settings)).
		Add("ELF", orNone(l.settings.ELF)).
		Add("Profile", l.profile.Name))

	run := func(ctx context.Context, obs inspect.Observer) (inspect.Summary, error) {
		kit, err := inspect.NewKit(l.session, l.profile, l.resolver, obs)
		if err != nil {
			return inspect.Summary{}, err
		}
		d := inspect.NewDispatcher(l.session, logging.GetLogger())
		if err := install(ctx, d, kit); err != nil {
			return inspect.Summary{}, err
		}
		return d.Run(ctx)
	}

	var summary inspect.Summary
	if useTUI {
		summary, err = ui.RunWatch(ctx, ui.WatchConfig{Title: title, Output: cmd.OutOrStdout()}, run)
	} else {
		summary, err = run(ctx, inspect.NewTextObserver(cmd.OutOrStdout()))
	}

	if errors.Is(err, context.Canceled) {
		printer.PrintWarning(title+" stopped", summaryDetails(summary))
		return nil
	}
	if err != nil {
		printer.PrintFailure(title+" failed", err, inspectionTroubleshooting(err))
		return err
	}
	printer.PrintSuccess(title+" finished", summaryDetails(summary))
	return nil
}

func summaryDetails(s inspect.Summary) ui.Details {
	d := ui.Details{}.Add("Halts", fmt.Sprintf("%d", s.Halts))

	rules := make([]string, 0, len(s.PerRule))
	for name := range s.PerRule {
		rules = append(rules, name)
	}
	sort.Strings(rules)
	for _, name := range rules {
		d = d.Add(name, fmt.Sprintf("%d", s.PerRule[name]))
	}

	switch {
	case s.Exited:
		d = d.Add("Target", "program exited")
	case s.Halts > 0:
		d = d.Add("Stopped at", fmt.Sprintf("0x%08x (%s)", s.Last.PC, s.Last.Function))
	}
	return d
}

func inspectionTroubleshooting(err error) []string {
	var missing *inspect.MissingLocationError
	if errors.As(err, &missing) {
		return []string{
			"The selected profile has no location for this inspection",
			"Try another profile: taskscope profiles",
		}
	}
	var unexpected *inspect.UnexpectedHaltError
	if errors.As(err, &unexpected) {
		return []string{
			"The target stopped for a reason no rule handles",
			"Check for a fault or a breakpoint set outside taskscope",
		}
	}
	return ui.DefaultTroubleshooting
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
