// Package targettest provides a scripted in-memory Target for tests.
package targettest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/taskscope/internal/target"
)

// ErrNoMoreHalts is returned by WaitHalt once the script is exhausted.
var ErrNoMoreHalts = errors.New("targettest: no more scripted halts")

// Step is one scripted stop. Before runs just before the halt is
// delivered so a test can change memory or registers for that stop.
type Step struct {
	Halt   target.Halt
	Before func(f *Fake)
}

// Fake implements target.Target over an Image.
type Fake struct {
	*target.Image

	Registers   map[string]uint32
	Expressions map[string]string

	// Locations maps a breakpoint location to the handle it gets. Unknown
	// locations are given the next free handle.
	Locations map[string]target.HandleID
	Steps     []Step

	// FailReads makes every memory read in this range fail.
	FailReads func(addr uint32, n int) bool

	// Log records every control call in order, e.g. "break pendsv_handler",
	// "continue", "finish", "write 0xe000edf4".
	Log []string

	next   target.HandleID
	resume int
	served int
}

// New returns a Fake over a zeroed image.
func New(base uint32, size int) *Fake {
	return &Fake{
		Image:       target.NewImage(base, size),
		Registers:   map[string]uint32{},
		Expressions: map[string]string{},
		Locations:   map[string]target.HandleID{},
	}
}

// ReadMemory implements target.Memory.
func (f *Fake) ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if f.FailReads != nil && f.FailReads(addr, n) {
		return nil, &target.ReadError{Addr: addr, Size: n, Err: errors.New("Cannot access memory")}
	}
	return f.Image.ReadMemory(ctx, addr, n)
}

// WriteMemory implements target.Target.
func (f *Fake) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	f.Log = append(f.Log, fmt.Sprintf("write 0x%08x", addr))
	return f.Image.WriteMemory(ctx, addr, data)
}

// ReadRegister implements target.Target.
func (f *Fake) ReadRegister(_ context.Context, name string) (uint32, error) {
	v, ok := f.Registers[name]
	if !ok {
		return 0, &target.ReadError{Register: name, Err: errors.New("no such register")}
	}
	return v, nil
}

func (f *Fake) handle(location string) target.HandleID {
	if h, ok := f.Locations[location]; ok {
		return h
	}
	for _, h := range f.Locations {
		if h > f.next {
			f.next = h
		}
	}
	f.next++
	f.Locations[location] = f.next
	return f.next
}

// SetBreakpoint implements target.Target.
func (f *Fake) SetBreakpoint(_ context.Context, location string) (target.HandleID, error) {
	f.Log = append(f.Log, "break "+location)
	return f.handle(location), nil
}

// SetWatchpoint implements target.Target.
func (f *Fake) SetWatchpoint(_ context.Context, symbol string) (target.HandleID, error) {
	f.Log = append(f.Log, "watch "+symbol)
	return f.handle(symbol), nil
}

// Evaluate implements target.Target.
func (f *Fake) Evaluate(_ context.Context, expr, typ string) (string, error) {
	expr = target.TypedExpression(strings.TrimSpace(expr), typ)
	v, ok := f.Expressions[expr]
	if !ok {
		return "", fmt.Errorf("no symbol %q in current context", expr)
	}
	return v, nil
}

// Continue implements target.Target.
func (f *Fake) Continue(context.Context) error {
	f.Log = append(f.Log, "continue")
	f.resume++
	return nil
}

// Finish implements target.Target.
func (f *Fake) Finish(context.Context) error {
	f.Log = append(f.Log, "finish")
	f.resume++
	return nil
}

// WaitHalt delivers the next scripted stop. It fails if the target was not
// resumed since the previous stop.
func (f *Fake) WaitHalt(ctx context.Context) (target.Halt, error) {
	if err := ctx.Err(); err != nil {
		return target.Halt{}, err
	}
	if f.resume <= f.served {
		return target.Halt{}, errors.New("targettest: WaitHalt without resume")
	}
	if f.served >= len(f.Steps) {
		return target.Halt{}, ErrNoMoreHalts
	}
	step := f.Steps[f.served]
	f.served++
	if step.Before != nil {
		step.Before(f)
	}
	return step.Halt, nil
}

// Resumes reports how many times Continue or Finish was called.
func (f *Fake) Resumes() int {
	return f.resume
}
