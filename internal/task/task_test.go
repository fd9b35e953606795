package task

import (
	"context"
	"errors"
	"testing"

	"github.com/muurk/taskscope/internal/frame"
	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/symtab"
	"github.com/muurk/taskscope/internal/target"
)

const (
	ramBase     = 0x20000000
	currentAddr = ramBase + 0x04
	taskAddr    = ramBase + 0x100
	nodeAddr    = ramBase + 0x80
	psp         = ramBase + 0x800
)

func symbols() *symtab.Table {
	return symtab.NewTable([]symtab.Entry{
		{Address: 0x08000190, Name: "main"},
		{Address: 0x080001a0, Name: "idle"},
		{Address: 0x08000300, Name: "blink"},
	})
}

func layout(t *testing.T, name string) profile.TaskLayout {
	t.Helper()
	p, err := profile.Lookup(name)
	if err != nil {
		t.Fatalf("profile.Lookup(%q) error = %v", name, err)
	}
	return p.Task
}

func newCorrelator(img *target.Image, l profile.TaskLayout) *Correlator {
	reader := target.NewReader(img, nil)
	table := symbols()
	return NewCorrelator(reader, frame.NewDecoder(frame.ARMv7M, reader, table), table, l, currentAddr)
}

func TestCorrelate(t *testing.T) {
	img := target.NewImage(ramBase, 0x1000)
	img.PutWord(currentAddr, taskAddr)
	img.PutWord(taskAddr+4, psp)         // stack_top
	img.PutWord(taskAddr+12, 0x08000300) // fptr
	img.PutWord(psp+24, 0x080001a2)      // stacked pc

	obs, err := newCorrelator(img, layout(t, "f4os")).Correlate(context.Background(), psp, frame.BasicHardware)
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}
	if obs.NullTask {
		t.Fatal("unexpected NullTask")
	}
	if obs.Task.StackTop != psp {
		t.Errorf("StackTop = 0x%08x, want 0x%08x", obs.Task.StackTop, psp)
	}
	if want := "'blink()' interrupted while in 'idle()'"; obs.String() != want {
		t.Errorf("String() = %q, want %q", obs.String(), want)
	}
}

func TestCorrelateLegacyIndirection(t *testing.T) {
	img := target.NewImage(ramBase, 0x1000)
	img.PutWord(currentAddr, nodeAddr)
	img.PutWord(nodeAddr+8, taskAddr)   // node->task
	img.PutWord(taskAddr+8, 0x08000190) // fptr
	img.PutWord(psp+56, 0x08000304)     // extended frame pc

	obs, err := newCorrelator(img, layout(t, "f4os-legacy")).Correlate(context.Background(), psp, frame.ExtendedHardware)
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}
	if want := "'main()' interrupted while in 'blink()'"; obs.String() != want {
		t.Errorf("String() = %q, want %q", obs.String(), want)
	}
	if obs.Task.Addr != taskAddr {
		t.Errorf("Task.Addr = 0x%08x, want 0x%08x", obs.Task.Addr, taskAddr)
	}
}

func TestCorrelateNullTask(t *testing.T) {
	img := target.NewImage(ramBase, 0x1000)

	obs, err := newCorrelator(img, layout(t, "f4os")).Correlate(context.Background(), psp, frame.BasicHardware)
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}
	if !obs.NullTask {
		t.Fatal("expected NullTask observation")
	}
	if obs.String() != NullTaskMessage {
		t.Errorf("String() = %q", obs.String())
	}
}

func TestCorrelateUnknownFunction(t *testing.T) {
	img := target.NewImage(ramBase, 0x1000)
	img.PutWord(currentAddr, taskAddr)
	img.PutWord(taskAddr+12, 0x08000300)
	img.PutWord(psp+24, 0x00000010)

	obs, err := newCorrelator(img, layout(t, "f4os")).Correlate(context.Background(), psp, frame.BasicHardware)
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}
	if obs.Frame.Function != symtab.NoSymbol {
		t.Errorf("Function = %q, want NoSymbol", obs.Frame.Function)
	}
}

func TestCorrelateReadFailure(t *testing.T) {
	img := target.NewImage(ramBase, 0x1000)
	img.PutWord(currentAddr, taskAddr)
	img.PutWord(taskAddr+12, 0x08000300)

	// Stack pointer outside RAM.
	_, err := newCorrelator(img, layout(t, "f4os")).Correlate(context.Background(), 0x10000000, frame.BasicHardware)
	var readErr *target.ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("Correlate() error = %v, want *target.ReadError", err)
	}

	// Dangling task pointer.
	img.PutWord(currentAddr, 0x30000000)
	_, err = newCorrelator(img, layout(t, "f4os")).Correlate(context.Background(), psp, frame.BasicHardware)
	if !errors.As(err, &readErr) {
		t.Fatalf("Correlate() error = %v, want *target.ReadError", err)
	}
}

func TestAheadFollowsRing(t *testing.T) {
	const (
		second = ramBase + 0x200
		third  = ramBase + 0x300
		head   = ramBase + 0x40
		link   = 32 // task_ctrl.runnable_task_list
	)
	img := target.NewImage(ramBase, 0x1000)
	img.PutWord(currentAddr, taskAddr)
	img.PutWord(taskAddr, ramBase+0x800) // stack_limit, not a link
	img.PutWord(taskAddr+link, second+link)
	img.PutWord(second+link, head)
	img.PutWord(head, third+link)
	img.PutWord(third+link, taskAddr+link)
	img.PutWord(third+4, ramBase+0x900) // stack_top

	c := newCorrelator(img, layout(t, "f4os")).WithRingHead(head)
	ctx := context.Background()

	tests := []struct {
		hops int
		want uint32
	}{
		{0, taskAddr},
		{1, second},
		{2, third},
		{3, taskAddr},
	}
	for _, tt := range tests {
		addr, ok, err := c.Ahead(ctx, tt.hops)
		if err != nil || !ok || addr != tt.want {
			t.Errorf("Ahead(%d) = 0x%08x, %v, %v; want 0x%08x", tt.hops, addr, ok, err, tt.want)
		}
	}

	rec, err := c.Describe(ctx, third)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if rec.StackTop != ramBase+0x900 {
		t.Errorf("StackTop = 0x%08x", rec.StackTop)
	}
}

func TestAheadLegacyNodes(t *testing.T) {
	const (
		secondNode = ramBase + 0x90
		secondTask = ramBase + 0x200
	)
	img := target.NewImage(ramBase, 0x1000)
	img.PutWord(currentAddr, nodeAddr)
	img.PutWord(nodeAddr+4, secondNode) // next
	img.PutWord(nodeAddr+8, taskAddr)   // task
	img.PutWord(secondNode+4, nodeAddr)
	img.PutWord(secondNode+8, secondTask)

	c := newCorrelator(img, layout(t, "f4os-legacy"))
	addr, ok, err := c.Ahead(context.Background(), 1)
	if err != nil || !ok || addr != secondTask {
		t.Errorf("Ahead(1) = 0x%08x, %v, %v; want 0x%08x", addr, ok, err, secondTask)
	}
}

func TestAheadStopsAtNull(t *testing.T) {
	img := target.NewImage(ramBase, 0x1000)
	img.PutWord(currentAddr, taskAddr)

	_, ok, err := newCorrelator(img, layout(t, "f4os")).Ahead(context.Background(), 1)
	if err != nil || ok {
		t.Errorf("Ahead(1) over a null link = ok %v, err %v; want no task", ok, err)
	}
}
