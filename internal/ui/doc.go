// Package ui provides terminal UI components for the taskscope CLI.
//
// Batch commands follow a "run once and exit" pattern built from Lipgloss
// components:
//
//   - Header: command banner showing operation name and parameters
//   - Progress: step list built from the markers a gdb script echoes
//   - Result: success/failure/warning boxes
//   - Output: raw gdb output box for verbose mode
//
// A Runner orchestrates the header → steps → result flow around a batch
// script:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:   "Memory Dump",
//	    Command: "taskscope dump-memory",
//	    Params:  ui.Details{}.Add("Target", "localhost:3333"),
//	    Verbose: verbose,
//	})
//	result, err := runner.Run(ctx, executor, script, nil)
//
// Live inspections print rule output as plain lines by default. With --tui
// they run under RunWatch, a Bubble Tea view that keeps the most recent
// events on screen and cancels the inspection when the user quits.
//
// # Logging Integration
//
// zap logging is controlled by TASKSCOPE_LOG_LEVEL and is silent when it
// is unset, so curated UI output is not interleaved with log lines.
package ui
