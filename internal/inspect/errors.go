package inspect

import (
	"fmt"

	"github.com/muurk/taskscope/internal/target"
)

// UnexpectedHaltError is returned when the target stops somewhere no rule
// was registered for, e.g. on a fault signal.
type UnexpectedHaltError struct {
	Halt target.Halt
}

func (e *UnexpectedHaltError) Error() string {
	return fmt.Sprintf("target stopped unexpectedly: %s", e.Halt)
}

// DuplicateHandleError is returned when two rules claim the same handle.
type DuplicateHandleError struct {
	Handle   target.HandleID
	Existing string
}

func (e *DuplicateHandleError) Error() string {
	return fmt.Sprintf("handle %d is already handled by %s", e.Handle, e.Existing)
}

// RuleError wraps an error returned by a rule with the halt it was
// handling.
type RuleError struct {
	Rule string
	Halt target.Halt
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}
