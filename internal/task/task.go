// Package task correlates a halted context with the kernel's idea of which
// task is running.
package task

import (
	"context"
	"fmt"

	"github.com/muurk/taskscope/internal/frame"
	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/target"
)

// NullTaskMessage is printed when the current task pointer is null.
const NullTaskMessage = "curr_task == NULL"

// Record is the part of a task record taskscope reads.
type Record struct {
	Addr     uint32
	Entry    uint32
	Name     string
	StackTop uint32
}

// Observation is what one halt revealed about the running task.
type Observation struct {
	// NullTask is set when the kernel had no current task. Nothing else is
	// filled in then.
	NullTask bool
	Task     Record
	Frame    frame.Decoded
}

func (o Observation) String() string {
	if o.NullTask {
		return NullTaskMessage
	}
	return fmt.Sprintf("'%s()' interrupted while in '%s()'", o.Task.Name, o.Frame.Function)
}

// Correlator reads the current task and the frame it was interrupted in.
type Correlator struct {
	reader   *target.Reader
	decoder  *frame.Decoder
	resolver frame.Resolver
	layout   profile.TaskLayout
	current  uint32
	ringHead uint32
}

// NewCorrelator returns a Correlator. current is the address of the
// kernel's current-task global.
func NewCorrelator(reader *target.Reader, decoder *frame.Decoder, resolver frame.Resolver, layout profile.TaskLayout, current uint32) *Correlator {
	return &Correlator{
		reader:   reader,
		decoder:  decoder,
		resolver: resolver,
		layout:   layout,
		current:  current,
	}
}

// WithRingHead sets the address of the list head the run ring passes
// through. Ahead steps over it without counting a hop.
func (c *Correlator) WithRingHead(addr uint32) *Correlator {
	c.ringHead = addr
	return c
}

// Current returns the address of the running task's record, following the
// list-node indirection when the layout has one. ok is false when the
// kernel has no current task.
func (c *Correlator) Current(ctx context.Context) (addr uint32, ok bool, err error) {
	return c.Ahead(ctx, 0)
}

// Ahead is Current for the task hops links further along the run ring.
func (c *Correlator) Ahead(ctx context.Context, hops int) (addr uint32, ok bool, err error) {
	cur, err := c.reader.Word(ctx, c.current)
	if err != nil {
		return 0, false, err
	}
	if cur == 0 {
		return 0, false, nil
	}
	node := c.layout.RingNode(cur)
	for i := 0; i < hops; i++ {
		if node, err = c.next(ctx, node); err != nil || node == 0 {
			return 0, false, err
		}
	}
	cur = c.layout.Record(node)
	if c.layout.NodeTask == nil {
		return cur, true, nil
	}
	rec, err := c.reader.Field(ctx, cur, *c.layout.NodeTask)
	if err != nil {
		return 0, false, err
	}
	return rec, rec != 0, nil
}

// next follows one ring link, stepping over the ring head.
func (c *Correlator) next(ctx context.Context, node uint32) (uint32, error) {
	next, err := c.reader.Field(ctx, node, c.layout.Next)
	if err != nil || next == 0 || c.ringHead == 0 || next != c.ringHead {
		return next, err
	}
	return c.reader.Field(ctx, next, c.layout.Next)
}

// Describe reads the task record at addr.
func (c *Correlator) Describe(ctx context.Context, addr uint32) (Record, error) {
	entry, err := c.reader.Field(ctx, addr, c.layout.Entry)
	if err != nil {
		return Record{}, err
	}
	top, err := c.reader.Field(ctx, addr, c.layout.StackTop)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Addr:     addr,
		Entry:    entry,
		Name:     c.resolver.Resolve(entry),
		StackTop: top,
	}, nil
}

// Correlate reports which task was running and where it was interrupted,
// given the stack pointer its context was saved at.
func (c *Correlator) Correlate(ctx context.Context, sp uint32, kind frame.Kind) (Observation, error) {
	addr, ok, err := c.Current(ctx)
	if err != nil {
		return Observation{}, err
	}
	if !ok {
		return Observation{NullTask: true}, nil
	}
	rec, err := c.Describe(ctx, addr)
	if err != nil {
		return Observation{}, err
	}
	decoded, err := c.decoder.DecodeSavedPC(ctx, sp, kind)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Task: rec, Frame: decoded}, nil
}
