package inspect

import (
	"context"
	"fmt"

	"github.com/muurk/taskscope/internal/frame"
)

// MissingLocationError is returned when the profile does not name a code
// location a watcher needs.
type MissingLocationError struct {
	Profile  string
	Location string
}

func (e *MissingLocationError) Error() string {
	return fmt.Sprintf("profile %s does not define the %s location", e.Profile, e.Location)
}

func (k *Kit) location(name, value string) (string, error) {
	if value == "" {
		return "", &MissingLocationError{Profile: k.Profile.Name, Location: name}
	}
	return value, nil
}

// WatchInterrupts reports the interrupted task at the context switch
// handler and the supervisor call handler (basic frames), and at the task
// swap location where the frame carries the FP context.
func WatchInterrupts(ctx context.Context, d *Dispatcher, k *Kit) error {
	corr, err := k.Correlator(ctx)
	if err != nil {
		return err
	}
	locs := k.Profile.Locations
	for _, w := range []struct {
		name, location string
		kind           frame.Kind
	}{
		{"context_switch", locs.ContextSwitch, frame.BasicHardware},
		{"task_swap", locs.TaskSwap, frame.ExtendedHardware},
		{"supervisor_call", locs.SupervisorCall, frame.BasicHardware},
	} {
		loc, err := k.location(w.name, w.location)
		if err != nil {
			return err
		}
		rule := &InterruptRule{Kit: k, Correlator: corr, Kind: w.kind, Name: w.name}
		if _, err := d.Break(ctx, loc, w.name, rule); err != nil {
			return err
		}
	}
	return nil
}

// WatchRestore reports every task context restore.
func WatchRestore(ctx context.Context, d *Dispatcher, k *Kit) error {
	loc, err := k.location("restore", k.Profile.Locations.Restore)
	if err != nil {
		return err
	}
	_, err = d.Break(ctx, loc, "restore", &RestoreRule{Kit: k, Name: "restore"})
	return err
}

// WatchNullTask stops when the current-task pointer becomes null.
func WatchNullTask(ctx context.Context, d *Dispatcher, k *Kit) error {
	corr, err := k.Correlator(ctx)
	if err != nil {
		return err
	}
	_, err = d.Watch(ctx, k.Profile.Task.Current, "null_task", &NullTaskRule{Kit: k, Correlator: corr, Name: "null_task"})
	return err
}

// TraceAcquire prints the outcome of every semaphore acquire attempt.
func TraceAcquire(ctx context.Context, d *Dispatcher, k *Kit) error {
	acq := k.Profile.Acquire
	for _, p := range []struct {
		name, location, message string
		partial                 bool
	}{
		{"acquire_attempt", acq.Attempt, AcquireAttemptMessage, true},
		{"acquire_fail", acq.Fail, AcquireFailMessage, false},
		{"acquire_succeed", acq.Succeed, AcquireSucceedMessage, false},
	} {
		loc, err := k.location(p.name, p.location)
		if err != nil {
			return err
		}
		rule := &MessageRule{Kit: k, Name: p.name, Message: p.message, Partial: p.partial}
		if _, err := d.Break(ctx, loc, p.name, rule); err != nil {
			return err
		}
	}
	return nil
}

// PollI2C follows i2c transfers until one returns a non-positive value.
func PollI2C(ctx context.Context, d *Dispatcher, k *Kit) error {
	if len(k.Profile.I2C) == 0 {
		return &MissingLocationError{Profile: k.Profile.Name, Location: "i2c"}
	}
	for _, fn := range k.Profile.I2C {
		if _, err := d.Break(ctx, fn, fn, &FinishPollRule{Kit: k, Name: fn}); err != nil {
			return err
		}
	}
	return nil
}

// SwapOptions configures WatchSwap.
type SwapOptions struct {
	// Hops is how far along the run ring the dumped task is.
	Hops int
	// Words is the number of stack words dumped per halt.
	Words int
	// Skip halts are passed over before dumping starts.
	Skip int
	// Limit ends the run after this many dumps. Zero runs until stopped.
	Limit int
}

// DefaultSwapOptions dumps 25 words of the task two links ahead, thirteen
// times, after letting the first switch go by.
func DefaultSwapOptions() SwapOptions {
	return SwapOptions{Hops: 2, Words: 25, Skip: 1, Limit: 13}
}

// WatchSwap dumps a task's saved stack at every task swap.
func WatchSwap(ctx context.Context, d *Dispatcher, k *Kit, opts SwapOptions) error {
	loc, err := k.location("task_swap", k.Profile.Locations.TaskSwap)
	if err != nil {
		return err
	}
	corr, err := k.Correlator(ctx)
	if err != nil {
		return err
	}
	rule := &StackDumpRule{
		Kit:        k,
		Correlator: corr,
		Name:       "task_swap",
		Hops:       opts.Hops,
		Words:      opts.Words,
		Skip:       opts.Skip,
		Limit:      opts.Limit,
	}
	_, err = d.Break(ctx, loc, "task_swap", rule)
	return err
}
