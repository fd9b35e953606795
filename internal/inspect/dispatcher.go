package inspect

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/muurk/taskscope/internal/logging"
	"github.com/muurk/taskscope/internal/target"
)

type registration struct {
	name string
	rule Rule
}

// Dispatcher owns the resume/wait loop of an inspection run.
type Dispatcher struct {
	target target.Target
	logger *zap.Logger
	rules  map[target.HandleID]registration
}

// Summary describes how a run ended.
type Summary struct {
	// Halts is the number of halts dispatched to rules.
	Halts int
	// PerRule counts halts by rule name.
	PerRule map[string]int
	// Last is the halt the run ended on.
	Last target.Halt
	// Exited is set when the target program exited.
	Exited bool
}

// NewDispatcher returns a Dispatcher for t with no rules.
func NewDispatcher(t target.Target, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		target: t,
		logger: logger,
		rules:  make(map[target.HandleID]registration),
	}
}

// Register makes rule the handler of h.
func (d *Dispatcher) Register(h target.HandleID, name string, rule Rule) error {
	if existing, ok := d.rules[h]; ok {
		return &DuplicateHandleError{Handle: h, Existing: existing.name}
	}
	d.rules[h] = registration{name: name, rule: rule}
	d.logger.Debug("registered rule", zap.Int("handle", int(h)), zap.String("rule", name))
	return nil
}

// Break sets a breakpoint at location and registers rule for it.
func (d *Dispatcher) Break(ctx context.Context, location, name string, rule Rule) (target.HandleID, error) {
	h, err := d.target.SetBreakpoint(ctx, location)
	if err != nil {
		return 0, err
	}
	return h, d.Register(h, name, rule)
}

// Watch sets a write watchpoint on symbol and registers rule for it.
func (d *Dispatcher) Watch(ctx context.Context, symbol, name string, rule Rule) (target.HandleID, error) {
	h, err := d.target.SetWatchpoint(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return h, d.Register(h, name, rule)
}

// Rules lists the registered rule names ordered by handle.
func (d *Dispatcher) Rules() []string {
	handles := make([]int, 0, len(d.rules))
	for h := range d.rules {
		handles = append(handles, int(h))
	}
	sort.Ints(handles)
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = d.rules[target.HandleID(h)].name
	}
	return names
}

// Run continues the target and dispatches halts until a rule returns
// HaltInspection or an error, the target exits, or ctx is done. A halt no
// rule owns ends the run with *UnexpectedHaltError.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	sum := Summary{PerRule: make(map[string]int)}
	if len(d.rules) == 0 {
		return sum, errors.New("no rules registered")
	}

	for {
		if err := d.target.Continue(ctx); err != nil {
			return sum, err
		}
		h, err := d.target.WaitHalt(ctx)
		if err != nil {
			return sum, err
		}
		sum.Last = h
		logging.LogHalt(string(h.Reason), int(h.Handle), h.PC, h.Function)

		if h.Exited() {
			d.logger.Info("target exited", zap.Int("exit_code", h.ExitCode))
			sum.Exited = true
			return sum, nil
		}

		reg, ok := d.rules[h.Handle]
		if !ok || h.Handle == target.NoHandle {
			return sum, &UnexpectedHaltError{Halt: h}
		}

		sum.Halts++
		sum.PerRule[reg.name]++

		decision, err := reg.rule.OnHalt(ctx, h)
		if err != nil {
			return sum, &RuleError{Rule: reg.name, Halt: h, Err: err}
		}
		d.logger.Debug("rule decided",
			zap.String("rule", reg.name),
			zap.Stringer("decision", decision),
		)
		if decision == HaltInspection {
			return sum, nil
		}
	}
}
