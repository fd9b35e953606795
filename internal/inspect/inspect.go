// Package inspect runs halt-driven inspections of a live target: rules are
// registered against breakpoint and watchpoint handles, and a Dispatcher
// resumes the target and hands every halt to the rule that owns it.
package inspect

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/muurk/taskscope/internal/target"
)

// Decision tells the dispatcher what to do after a rule has handled a halt.
type Decision int

const (
	// ResumeTarget continues the target and waits for the next halt.
	ResumeTarget Decision = iota
	// HaltInspection ends the run and leaves the target halted.
	HaltInspection
)

func (d Decision) String() string {
	switch d {
	case ResumeTarget:
		return "resume"
	case HaltInspection:
		return "halt"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Rule handles the halts of the handles it was registered for.
type Rule interface {
	OnHalt(ctx context.Context, h target.Halt) (Decision, error)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(ctx context.Context, h target.Halt) (Decision, error)

func (f RuleFunc) OnHalt(ctx context.Context, h target.Halt) (Decision, error) {
	return f(ctx, h)
}

// Event is one line of output from a rule.
type Event struct {
	Rule string
	Halt target.Halt
	Text string
	// Partial events are continued by the next event on the same line.
	Partial bool
}

// Observer receives rule output as it happens.
type Observer interface {
	Observe(Event)
}

// TextObserver writes events to w as plain lines.
type TextObserver struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextObserver returns an Observer writing to w.
func NewTextObserver(w io.Writer) *TextObserver {
	return &TextObserver{w: w}
}

func (o *TextObserver) Observe(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ev.Partial {
		fmt.Fprint(o.w, ev.Text)
		return
	}
	fmt.Fprintln(o.w, ev.Text)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }
