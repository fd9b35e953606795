// Package gdb drives arm-none-eabi-gdb against an OpenOCD gdb server.
//
// There are two ways in:
//
//	┌─────────────────┐        ┌─────────────────┐
//	│ Executor        │        │ Session         │
//	│ (batch scripts) │        │ (GDB/MI)        │
//	└────────┬────────┘        └────────┬────────┘
//	         │ gdb -batch -x            │ gdb --interpreter=mi2
//	         v                          v
//	┌──────────────────────────────────────────────┐
//	│ OpenOCD :3333  ──  JTAG/SWD  ──  Cortex-M    │
//	└──────────────────────────────────────────────┘
//
// # Executor
//
// Executor renders a scripts.Script template, writes it to a temporary file,
// runs gdb in batch mode and hands stdout to the script's Parse method.
// It is used for one-shot jobs such as dumping RAM for offline inspection:
//
//	executor := gdb.NewExecutor(gdb.DefaultConfig(), logger)
//	script := scripts.NewDumpMemoryScript(0x20000000, 0x20000, "ram.bin", true)
//	result, err := executor.Execute(ctx, script)
//
// Scripts report progress with step markers, which the Parser turns into
// Result.Steps:
//
//	echo [1/3] Halting target...\n
//
// # Session
//
// Session keeps one gdb process running and implements target.Target, so the
// inspection rules can set breakpoints and watchpoints, resume the target and
// read memory and registers while it is halted. Commands are token-tagged MI
// commands; the session waits for the matching result record and queues any
// *stopped records it sees on the way as halt events for WaitHalt.
//
//	s, err := gdb.Open(ctx, config, gdb.SessionOptions{ELF: "f4os.elf"}, logger)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	h, _ := s.SetBreakpoint(ctx, "pendsv_handler")
//	_ = s.Continue(ctx)
//	halt, _ := s.WaitHalt(ctx)
//
// A Session is not safe for concurrent use: gdb has a single command stream
// and the target is either running or halted.
//
// # Errors
//
//   - GDBExecutionError: a batch script failed (exit code, stderr)
//   - GDBConnectionError: OpenOCD could not be reached
//   - MIError: gdb answered an MI command with ^error
//   - SessionClosedError: the gdb process went away mid-session
//   - PrerequisiteError: gdb or objdump is missing or broken
//   - TimeoutError: a batch script ran past Config.Timeout
//
// # Prerequisites
//
// ValidatePrerequisites checks for arm-none-eabi-gdb and
// arm-none-eabi-objdump and tries a TCP connection to OpenOCD. Only the
// binaries are required; offline commands work without a board.
package gdb
