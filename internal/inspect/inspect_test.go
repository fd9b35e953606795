package inspect

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/symtab"
	"github.com/muurk/taskscope/internal/target"
	"github.com/muurk/taskscope/internal/target/targettest"
)

const (
	ramBase  = 0x20000000
	currAddr = ramBase + 0x04
	taskAddr = ramBase + 0x100
	psp      = ramBase + 0x800
)

type recorder struct {
	events []Event
}

func (r *recorder) Observe(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) texts() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Text
	}
	return out
}

func lookup(t *testing.T, name string) *profile.Profile {
	t.Helper()
	p, err := profile.Lookup(name)
	if err != nil {
		t.Fatalf("profile.Lookup(%q) error = %v", name, err)
	}
	return p
}

func setup(t *testing.T, p *profile.Profile, obs Observer) (*targettest.Fake, *Kit, *Dispatcher) {
	t.Helper()
	fake := targettest.New(ramBase, 0x1000)
	fake.Expressions["&curr_task"] = "(task_ctrl **) 0x20000004 <curr_task>"
	fake.Expressions["&runnable_task_list"] = "(struct list *) 0x20000040 <runnable_task_list>"
	fake.Registers["psp"] = psp
	fake.PutWord(currAddr, taskAddr)
	fake.PutWord(taskAddr+12, 0x08000300) // entry: blink

	table := symtab.NewTable([]symtab.Entry{
		{Address: 0x08000190, Name: "main"},
		{Address: 0x080001a0, Name: "idle"},
		{Address: 0x08000300, Name: "blink"},
	})
	kit, err := NewKit(fake, p, table, obs)
	if err != nil {
		t.Fatalf("NewKit() error = %v", err)
	}
	return fake, kit, NewDispatcher(fake, zaptest.NewLogger(t))
}

func exited() targettest.Step {
	return targettest.Step{Halt: target.Halt{Reason: target.ReasonExitedNormally}}
}

func hit(h target.HandleID, fn string) targettest.Step {
	return targettest.Step{Halt: target.Halt{Reason: target.ReasonBreakpoint, Handle: h, Function: fn}}
}

func TestWatchInterrupts(t *testing.T) {
	rec := &recorder{}
	fake, kit, d := setup(t, lookup(t, "f4os"), rec)
	fake.PutWord(psp+24, 0x080001a2) // basic frame pc: idle
	fake.PutWord(psp+56, 0x08000190) // extended frame pc: main
	fake.Steps = []targettest.Step{
		hit(1, "pendsv_handler"),
		hit(2, "swap_task"),
		hit(3, "svc_handler"),
		exited(),
	}

	ctx := context.Background()
	if err := WatchInterrupts(ctx, d, kit); err != nil {
		t.Fatalf("WatchInterrupts() error = %v", err)
	}
	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"'blink()' interrupted while in 'idle()'",
		"'blink()' interrupted while in 'main()'",
		"'blink()' interrupted while in 'idle()'",
	}
	if diff := cmp.Diff(want, rec.texts()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if !sum.Exited || sum.Halts != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.PerRule["task_swap"] != 1 {
		t.Errorf("task_swap halts = %d, want 1", sum.PerRule["task_swap"])
	}
	if diff := cmp.Diff([]string{"break pendsv_handler", "break swap_task", "break svc_handler"}, fake.Log[:3]); diff != "" {
		t.Errorf("breakpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchInterruptsShowsFrame(t *testing.T) {
	rec := &recorder{}
	fake, kit, d := setup(t, lookup(t, "f4os"), rec)
	kit.ShowFrames = true
	fake.PutWord(psp+56, 0x08000190) // extended frame pc: main
	fake.Steps = []targettest.Step{hit(2, "swap_task"), exited()}

	ctx := context.Background()
	if err := WatchInterrupts(ctx, d, kit); err != nil {
		t.Fatalf("WatchInterrupts() error = %v", err)
	}
	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	texts := rec.texts()
	if len(texts) != 1+34 {
		t.Fatalf("got %d events, want the report and 34 registers:\n%v", len(texts), texts)
	}
	want := []string{
		"'blink()' interrupted while in 'main()'",
		"  r4       0x00000000  (@0x20000800)",
	}
	if diff := cmp.Diff(want, texts[:2]); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if got := texts[1+14]; got != "  pc       0x08000190  (@0x20000838)" {
		t.Errorf("pc line = %q", got)
	}
}

func TestWatchInterruptsNullTask(t *testing.T) {
	rec := &recorder{}
	fake, kit, d := setup(t, lookup(t, "f4os"), rec)
	fake.PutWord(currAddr, 0)
	fake.Steps = []targettest.Step{hit(1, "pendsv_handler"), exited()}

	ctx := context.Background()
	if err := WatchInterrupts(ctx, d, kit); err != nil {
		t.Fatalf("WatchInterrupts() error = %v", err)
	}
	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"curr_task == NULL"}, rec.texts()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchRestoreStopsOnSignal(t *testing.T) {
	rec := &recorder{}
	fake, kit, d := setup(t, lookup(t, "f4os"), rec)
	fake.PutWord(psp-84, 0x08000304)
	fake.Steps = []targettest.Step{
		hit(1, "restore_full_context"),
		{Halt: target.Halt{Reason: target.ReasonSignal, Signal: "SIGTRAP", PC: 0x08000400}},
	}

	ctx := context.Background()
	if err := WatchRestore(ctx, d, kit); err != nil {
		t.Fatalf("WatchRestore() error = %v", err)
	}
	_, err := d.Run(ctx)

	var unexpected *UnexpectedHaltError
	if !errors.As(err, &unexpected) {
		t.Fatalf("Run() error = %v, want *UnexpectedHaltError", err)
	}
	if unexpected.Halt.Signal != "SIGTRAP" {
		t.Errorf("unexpected halt = %+v", unexpected.Halt)
	}
	if diff := cmp.Diff([]string{"Restoring pc 0x8000304 (blink())"}, rec.texts()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchNullTaskStopsOnNull(t *testing.T) {
	rec := &recorder{}
	fake, kit, d := setup(t, lookup(t, "f4os"), rec)
	fake.Steps = []targettest.Step{
		{Halt: target.Halt{Reason: target.ReasonWatchpoint, Handle: 1}},
		{
			Halt:   target.Halt{Reason: target.ReasonWatchpoint, Handle: 1},
			Before: func(f *targettest.Fake) { f.PutWord(currAddr, 0) },
		},
		hit(1, "never reached"),
	}

	ctx := context.Background()
	if err := WatchNullTask(ctx, d, kit); err != nil {
		t.Fatalf("WatchNullTask() error = %v", err)
	}
	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sum.Halts != 2 || fake.Resumes() != 2 {
		t.Errorf("halts = %d, resumes = %d; want 2, 2", sum.Halts, fake.Resumes())
	}
	if fake.Log[0] != "watch curr_task" {
		t.Errorf("first call = %q, want watch curr_task", fake.Log[0])
	}
	if diff := cmp.Diff([]string{"curr_task == NULL"}, rec.texts()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceAcquire(t *testing.T) {
	var out bytes.Buffer
	fake, kit, d := setup(t, lookup(t, "f4os"), NewTextObserver(&out))
	fake.Steps = []targettest.Step{hit(1, ""), hit(2, ""), hit(1, ""), hit(3, "")}

	ctx := context.Background()
	if err := TraceAcquire(ctx, d, kit); err != nil {
		t.Fatalf("TraceAcquire() error = %v", err)
	}
	_, err := d.Run(ctx)
	if !errors.Is(err, targettest.ErrNoMoreHalts) {
		t.Fatalf("Run() error = %v, want ErrNoMoreHalts", err)
	}

	want := "Attempting acquire... Failed\nAttempting acquire... Succeeded\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if diff := cmp.Diff([]string{"break *0x08001690", "break *0x080016a4", "break *0x080016a2"}, fake.Log[:3]); diff != "" {
		t.Errorf("breakpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestPollI2C(t *testing.T) {
	rec := &recorder{}
	fake, kit, d := setup(t, lookup(t, "f4os"), rec)
	fake.Steps = []targettest.Step{
		hit(1, "i2c_read"),
		{Halt: target.Halt{Reason: target.ReasonFinished, ReturnValue: "4"}},
		hit(2, "i2c_write"),
		{Halt: target.Halt{Reason: target.ReasonFinished, ReturnValue: "0"}},
	}

	ctx := context.Background()
	if err := PollI2C(ctx, d, kit); err != nil {
		t.Fatalf("PollI2C() error = %v", err)
	}
	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantLog := []string{"break i2c_read", "break i2c_write", "continue", "finish", "continue", "finish"}
	if diff := cmp.Diff(wantLog, fake.Log); diff != "" {
		t.Errorf("control calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"i2c_read() returned 4", "i2c_write() returned 0"}, rec.texts()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPollI2CInterruptedFinish(t *testing.T) {
	fake, kit, d := setup(t, lookup(t, "f4os"), nil)
	fake.Steps = []targettest.Step{hit(1, "i2c_read"), hit(2, "i2c_write")}

	ctx := context.Background()
	if err := PollI2C(ctx, d, kit); err != nil {
		t.Fatalf("PollI2C() error = %v", err)
	}
	_, err := d.Run(ctx)

	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) || ruleErr.Rule != "i2c_read" {
		t.Fatalf("Run() error = %v, want RuleError from i2c_read", err)
	}
	var unexpected *UnexpectedHaltError
	if !errors.As(err, &unexpected) {
		t.Errorf("error should wrap *UnexpectedHaltError: %v", err)
	}
}

func TestWatchSwapDumpsStack(t *testing.T) {
	const (
		second = ramBase + 0x200
		third  = ramBase + 0x300
		head   = ramBase + 0x40
		link   = 32
		stack  = ramBase + 0x900
	)
	rec := &recorder{}
	fake, kit, d := setup(t, lookup(t, "f4os"), rec)
	// runnable_task_list members: first -> head -> second -> third -> first.
	fake.PutWord(taskAddr+link, head)
	fake.PutWord(head, second+link)
	fake.PutWord(second+link, third+link)
	fake.PutWord(third+link, taskAddr+link)
	fake.PutWord(third+4, stack)
	for i := uint32(0); i < 5; i++ {
		fake.PutWord(stack+4*i, i+1)
	}
	fake.Steps = []targettest.Step{hit(1, "swap_task"), hit(1, "swap_task"), hit(1, "swap_task"), hit(1, "swap_task")}

	ctx := context.Background()
	opts := SwapOptions{Hops: 2, Words: 5, Skip: 1, Limit: 2}
	if err := WatchSwap(ctx, d, kit, opts); err != nil {
		t.Fatalf("WatchSwap() error = %v", err)
	}
	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sum.Halts != 3 {
		t.Errorf("halts = %d, want 3", sum.Halts)
	}
	dump := []string{
		"0x20000900:\t0x00000001\t0x00000002\t0x00000003\t0x00000004",
		"0x20000910:\t0x00000005",
	}
	if diff := cmp.Diff(append(dump, dump...), rec.texts()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRuleReadFailureStopsRun(t *testing.T) {
	fake, kit, d := setup(t, lookup(t, "f4os"), nil)
	delete(fake.Registers, "psp")
	fake.Steps = []targettest.Step{hit(1, "restore_full_context")}

	ctx := context.Background()
	if err := WatchRestore(ctx, d, kit); err != nil {
		t.Fatalf("WatchRestore() error = %v", err)
	}
	_, err := d.Run(ctx)

	var readErr *target.ReadError
	if !errors.As(err, &readErr) || readErr.Register != "psp" {
		t.Fatalf("Run() error = %v, want ReadError for psp", err)
	}
}

func TestMissingLocation(t *testing.T) {
	p := *lookup(t, "f4os")
	p.Locations.Restore = ""
	_, kit, d := setup(t, &p, nil)

	err := WatchRestore(context.Background(), d, kit)
	var missing *MissingLocationError
	if !errors.As(err, &missing) || missing.Location != "restore" {
		t.Fatalf("WatchRestore() error = %v, want MissingLocationError", err)
	}
}

func TestDispatcherRegister(t *testing.T) {
	fake, _, d := setup(t, lookup(t, "f4os"), nil)

	if _, err := d.Run(context.Background()); err == nil {
		t.Error("Run() with no rules should fail")
	}

	noop := RuleFunc(func(context.Context, target.Halt) (Decision, error) { return HaltInspection, nil })
	if err := d.Register(7, "first", noop); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	var dup *DuplicateHandleError
	if err := d.Register(7, "second", noop); !errors.As(err, &dup) || dup.Existing != "first" {
		t.Errorf("Register() duplicate error = %v", err)
	}

	fake.Steps = []targettest.Step{hit(7, "")}
	sum, err := d.Run(context.Background())
	if err != nil || sum.Halts != 1 || sum.Exited {
		t.Errorf("Run() = %+v, %v", sum, err)
	}
	if diff := cmp.Diff([]string{"first"}, d.Rules()); diff != "" {
		t.Errorf("Rules() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseReturnValue(t *testing.T) {
	tests := map[string]int64{
		"5":       5,
		"-1":      -1,
		"0x10":    16,
		"(int) 3": 3,
		" 0 ":     0,
	}
	for in, want := range tests {
		got, err := ParseReturnValue(in)
		if err != nil || got != want {
			t.Errorf("ParseReturnValue(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := ParseReturnValue("void"); err == nil {
		t.Error("ParseReturnValue(void) should fail")
	}
}
