// Package scripts holds the one-shot gdb batch scripts taskscope runs
// through gdb.Executor. Interactive inspection goes through gdb.Session
// instead.
package scripts

import (
	"time"
)

// Script is a gdb batch operation.
type Script interface {
	// Name is used for logging, error messages and the temp file name.
	// Example: "dump_memory", "probe_target"
	Name() string

	// Template returns the gdb script as a text/template. The executor
	// always provides OpenOCDHost and OpenOCDPort.
	Template() string

	// Params returns the script-specific template parameters.
	Params() map[string]interface{}

	// Parse extracts structured results from gdb's stdout.
	Parse(output string) (*Result, error)

	// Streaming reports whether output should be copied to the terminal as
	// the script runs.
	Streaming() bool
}

// SuccessMarker is echoed by every script as its last command. gdb -batch
// stops at the first failing command, so a missing marker means the script
// did not run to completion.
const SuccessMarker = "[SUCCESS]"

// Step status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result represents the outcome of executing a gdb script.
type Result struct {
	Success bool

	// Duration is how long the gdb process ran.
	Duration time.Duration

	// BytesRead is the number of target bytes read, if any.
	BytesRead int

	// Steps are the [n/m] progress markers found in the output.
	Steps []Step

	// Data contains script-specific values, e.g. "pc" for probe_target.
	Data map[string]interface{}

	// Error is set when Success is false.
	Error error

	RawOutput string
	RawStderr string
}

// Step is one progress marker, echoed by the script as
//
//	echo [1/3] Halting target...\n
type Step struct {
	Name    string
	Status  string
	Message string
}

// NewResult creates an empty, unsuccessful Result.
func NewResult() *Result {
	return &Result{
		Steps: make([]Step, 0),
		Data:  make(map[string]interface{}),
	}
}

// AddStep adds a step to the result.
func (r *Result) AddStep(name, status, message string) {
	r.Steps = append(r.Steps, Step{
		Name:    name,
		Status:  status,
		Message: message,
	})
}

// SetData sets a data value in the result.
func (r *Result) SetData(key string, value interface{}) {
	r.Data[key] = value
}

// GetData returns nil if the key doesn't exist.
func (r *Result) GetData(key string) interface{} {
	return r.Data[key]
}

// GetDataString returns "" if the key is missing or not a string.
func (r *Result) GetDataString(key string) string {
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

// GetDataUint32 reports whether key holds a uint32.
func (r *Result) GetDataUint32(key string) (uint32, bool) {
	v, ok := r.Data[key].(uint32)
	return v, ok
}

// SuccessSteps returns the count of successful steps.
func (r *Result) SuccessSteps() int {
	return r.countSteps(StatusSuccess)
}

// FailedSteps returns the count of failed steps.
func (r *Result) FailedSteps() int {
	return r.countSteps(StatusFailed)
}

func (r *Result) countSteps(status string) int {
	count := 0
	for _, step := range r.Steps {
		if step.Status == status {
			count++
		}
	}
	return count
}

// TotalSteps returns the total number of steps.
func (r *Result) TotalSteps() int {
	return len(r.Steps)
}

// firstErrorLine returns the first line of output that looks like a gdb
// error, or "".
func firstErrorLine(output string) string {
	for _, line := range splitLines(output) {
		if errorLine.MatchString(line) {
			return line
		}
	}
	return ""
}
