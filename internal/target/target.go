package target

import (
	"context"
	"fmt"
)

// HandleID identifies a breakpoint or watchpoint set on the target.
type HandleID int

// NoHandle is the handle of a halt not caused by a breakpoint.
const NoHandle HandleID = 0

// HaltReason is why the target stopped, as reported by the debugger.
type HaltReason string

const (
	ReasonBreakpoint     HaltReason = "breakpoint-hit"
	ReasonWatchpoint     HaltReason = "watchpoint-trigger"
	ReasonReadWatchpoint HaltReason = "read-watchpoint-trigger"
	ReasonAccessWatch    HaltReason = "access-watchpoint-trigger"
	ReasonFinished       HaltReason = "function-finished"
	ReasonEndStepping    HaltReason = "end-stepping-range"
	ReasonSignal         HaltReason = "signal-received"
	ReasonExited         HaltReason = "exited"
	ReasonExitedNormally HaltReason = "exited-normally"
	ReasonExitedSignal   HaltReason = "exited-signalled"
)

// Halt describes one stop of the target.
type Halt struct {
	Reason HaltReason
	Handle HandleID

	// PC and Function locate where the target stopped.
	PC       uint32
	Function string

	// ReturnValue is set for ReasonFinished.
	ReturnValue string

	// OldValue and NewValue are set for watchpoint triggers.
	OldValue string
	NewValue string

	ExitCode int
	Signal   string
}

// Exited reports whether the target program is gone.
func (h Halt) Exited() bool {
	switch h.Reason {
	case ReasonExited, ReasonExitedNormally, ReasonExitedSignal:
		return true
	}
	return false
}

func (h Halt) String() string {
	switch {
	case h.Exited():
		return fmt.Sprintf("%s (code %d)", h.Reason, h.ExitCode)
	case h.Handle != NoHandle:
		return fmt.Sprintf("%s #%d at 0x%08x in %s", h.Reason, h.Handle, h.PC, h.Function)
	default:
		return fmt.Sprintf("%s at 0x%08x in %s", h.Reason, h.PC, h.Function)
	}
}

// Memory reads raw bytes from the target address space.
type Memory interface {
	ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error)
}

// Target controls a debugged processor.
type Target interface {
	Memory

	WriteMemory(ctx context.Context, addr uint32, data []byte) error
	ReadRegister(ctx context.Context, name string) (uint32, error)

	// SetBreakpoint accepts a symbol, a file:line, or *ADDR.
	SetBreakpoint(ctx context.Context, location string) (HandleID, error)
	SetWatchpoint(ctx context.Context, symbol string) (HandleID, error)

	// Evaluate returns the debugger's rendering of expr. A non-empty typ
	// casts the result to that type first.
	Evaluate(ctx context.Context, expr, typ string) (string, error)

	// Continue and Finish return once the target is running. The matching
	// stop is delivered by WaitHalt.
	Continue(ctx context.Context) error
	Finish(ctx context.Context) error
	WaitHalt(ctx context.Context) (Halt, error)
}
