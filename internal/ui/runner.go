package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muurk/taskscope/internal/gdb/scripts"
)

// ScriptExecutor runs a batch gdb script. *gdb.Executor implements it.
type ScriptExecutor interface {
	Execute(ctx context.Context, script scripts.Script) (*scripts.Result, error)
}

// RunnerConfig holds configuration for a batch script run.
type RunnerConfig struct {
	Title    string  // e.g., "Memory Dump"
	Command  string  // e.g., "taskscope dump-memory"
	Params   Details // shown in the header
	Wait     string  // please-wait message, e.g., "Dumping target memory"
	WaitHint string  // e.g., "up to 2 minutes"
	Verbose  bool    // show the raw gdb output
	Output   io.Writer

	// Troubleshooting tips shown when the script fails.
	Troubleshooting []string
}

// Runner drives the header, progress and result flow of a batch script.
type Runner struct {
	config  RunnerConfig
	printer *Printer
}

// NewRunner creates a runner writing to config.Output, or os.Stdout.
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Troubleshooting == nil {
		config.Troubleshooting = DefaultTroubleshooting
	}
	return &Runner{
		config:  config,
		printer: NewPrinter(config.Output),
	}
}

// DefaultTroubleshooting is shown for failed gdb runs.
var DefaultTroubleshooting = []string{
	"Verify OpenOCD is running and attached to the target",
	"Check the target hasn't reset unexpectedly",
	"Try: taskscope verify-setup",
	"Run with --verbose for full GDB output",
}

// Run prints the header, executes script and prints its steps and outcome.
// summarize turns a successful result into the detail lines of the success
// box; it may reject the result by returning an error.
func (r *Runner) Run(ctx context.Context, exec ScriptExecutor, script scripts.Script, summarize func(*scripts.Result) (Details, error)) (*scripts.Result, error) {
	p := r.printer
	p.PrintHeader(r.config.Title, r.config.Command, r.config.Params)
	if r.config.Wait != "" {
		p.PrintPleaseWait(r.config.Wait, r.config.WaitHint)
	}

	start := time.Now()
	result, err := exec.Execute(ctx, script)
	if err != nil {
		p.PrintFailure(r.config.Title+" failed", err, r.config.Troubleshooting)
		return nil, err
	}

	if len(result.Steps) > 0 {
		progress := ProgressFromSteps("", result.Steps)
		progress.SetWidth(p.Width())
		progress.ShowBar = false
		p.Println(progress.Render())
	}

	if !result.Success {
		err := result.Error
		if err == nil {
			err = fmt.Errorf("%s did not report success", script.Name())
		}
		p.PrintFailure(r.config.Title+" failed", err, r.config.Troubleshooting)
		r.printOutput(result)
		return result, err
	}

	var details Details
	if summarize != nil {
		if details, err = summarize(result); err != nil {
			p.PrintFailure(r.config.Title+" failed", err, r.config.Troubleshooting)
			r.printOutput(result)
			return result, err
		}
	}
	details = details.Add("Duration", time.Since(start).Round(time.Millisecond).String())

	p.PrintSuccess(r.config.Title+" complete", details)
	r.printOutput(result)
	return result, nil
}

func (r *Runner) printOutput(result *scripts.Result) {
	if r.config.Verbose && result.RawOutput != "" {
		r.printer.PrintOutput(result.RawOutput)
	}
}
