package inspect

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/taskscope/internal/frame"
	"github.com/muurk/taskscope/internal/target"
	"github.com/muurk/taskscope/internal/task"
)

// Messages printed by the acquire probes.
const (
	AcquireAttemptMessage = "Attempting acquire... "
	AcquireFailMessage    = "Failed"
	AcquireSucceedMessage = "Succeeded"
)

// InterruptRule reports which task was interrupted, and where, each time
// an exception entry breakpoint is hit. The frame is read at the process
// stack pointer.
type InterruptRule struct {
	Kit        *Kit
	Correlator *task.Correlator
	Kind       frame.Kind
	Name       string
}

func (r *InterruptRule) OnHalt(ctx context.Context, h target.Halt) (Decision, error) {
	sp, err := r.Kit.Target.ReadRegister(ctx, r.Kit.Arch.PSP)
	if err != nil {
		return HaltInspection, err
	}
	obs, err := r.Correlator.Correlate(ctx, sp, r.Kind)
	if err != nil {
		return HaltInspection, err
	}
	r.Kit.emit(r.Name, h, obs.String(), false)
	if r.Kit.ShowFrames && !obs.NullTask {
		view, err := r.Kit.Decoder.ReadView(ctx, sp, r.Kind)
		if err != nil {
			return HaltInspection, err
		}
		for _, line := range view.Lines() {
			r.Kit.emit(r.Name, h, line, false)
		}
	}
	return ResumeTarget, nil
}

// RestoreRule reports the pc a task is about to be resumed at, read from the
// software switch frame below the process stack pointer.
type RestoreRule struct {
	Kit  *Kit
	Name string
}

func (r *RestoreRule) OnHalt(ctx context.Context, h target.Halt) (Decision, error) {
	sp, err := r.Kit.Target.ReadRegister(ctx, r.Kit.Arch.PSP)
	if err != nil {
		return HaltInspection, err
	}
	d, err := r.Kit.Decoder.DecodeSavedPC(ctx, sp, frame.SoftwareSwitch)
	if err != nil {
		return HaltInspection, err
	}
	r.Kit.emit(r.Name, h, fmt.Sprintf("Restoring pc 0x%x (%s())", d.PC, d.Function), false)
	return ResumeTarget, nil
}

// NullTaskRule stops the run the first time the current-task pointer is
// written as null.
type NullTaskRule struct {
	Kit        *Kit
	Correlator *task.Correlator
	Name       string
}

func (r *NullTaskRule) OnHalt(ctx context.Context, h target.Halt) (Decision, error) {
	_, ok, err := r.Correlator.Current(ctx)
	if err != nil {
		return HaltInspection, err
	}
	if ok {
		return ResumeTarget, nil
	}
	r.Kit.emit(r.Name, h, task.NullTaskMessage, false)
	return HaltInspection, nil
}

// MessageRule prints a fixed message and resumes.
type MessageRule struct {
	Kit     *Kit
	Name    string
	Message string
	Partial bool
}

func (r *MessageRule) OnHalt(_ context.Context, h target.Halt) (Decision, error) {
	r.Kit.emit(r.Name, h, r.Message, r.Partial)
	return ResumeTarget, nil
}

// FinishPollRule runs the function it stopped in to completion and keeps the
// run going while the function returns a positive value.
type FinishPollRule struct {
	Kit  *Kit
	Name string
}

func (r *FinishPollRule) OnHalt(ctx context.Context, h target.Halt) (Decision, error) {
	if err := r.Kit.Target.Finish(ctx); err != nil {
		return HaltInspection, err
	}
	done, err := r.Kit.Target.WaitHalt(ctx)
	if err != nil {
		return HaltInspection, err
	}
	if done.Reason != target.ReasonFinished {
		return HaltInspection, &UnexpectedHaltError{Halt: done}
	}

	ret, err := ParseReturnValue(done.ReturnValue)
	if err != nil {
		return HaltInspection, fmt.Errorf("%s() returned %q: %w", h.Function, done.ReturnValue, err)
	}
	r.Kit.emit(r.Name, done, fmt.Sprintf("%s() returned %d", h.Function, ret), false)
	if ret > 0 {
		return ResumeTarget, nil
	}
	return HaltInspection, nil
}

// ParseReturnValue reads an integer as gdb prints a return value, e.g.
// "5", "-1" or "0x10".
func ParseReturnValue(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	return strconv.ParseInt(s, 0, 64)
}

// StackDumpRule dumps the saved stack of a task on the run ring each time the
// task switch location is hit. The first Skip halts only resume; after Limit
// dumps the run ends.
type StackDumpRule struct {
	Kit        *Kit
	Correlator *task.Correlator
	Name       string
	Hops       int
	Words      int
	Skip       int
	Limit      int

	seen  int
	dumps int
}

func (r *StackDumpRule) OnHalt(ctx context.Context, h target.Halt) (Decision, error) {
	r.seen++
	if r.seen <= r.Skip {
		return ResumeTarget, nil
	}

	addr, ok, err := r.Correlator.Ahead(ctx, r.Hops)
	if err != nil {
		return HaltInspection, err
	}
	if !ok {
		r.Kit.emit(r.Name, h, task.NullTaskMessage, false)
	} else {
		rec, err := r.Correlator.Describe(ctx, addr)
		if err != nil {
			return HaltInspection, err
		}
		data, err := r.Kit.Target.ReadMemory(ctx, rec.StackTop, r.Words*target.WordSize)
		if err != nil {
			return HaltInspection, err
		}
		for _, line := range FormatWords(rec.StackTop, data) {
			r.Kit.emit(r.Name, h, line, false)
		}
	}

	r.dumps++
	if r.Limit > 0 && r.dumps >= r.Limit {
		return HaltInspection, nil
	}
	return ResumeTarget, nil
}

// FormatWords renders little-endian words four to a line the way gdb's
// x/x command does.
func FormatWords(addr uint32, data []byte) []string {
	var lines []string
	var sb strings.Builder
	for i := 0; i+target.WordSize <= len(data); i += target.WordSize {
		if i%(4*target.WordSize) == 0 {
			if sb.Len() > 0 {
				lines = append(lines, sb.String())
				sb.Reset()
			}
			fmt.Fprintf(&sb, "0x%08x:", addr+uint32(i))
		}
		fmt.Fprintf(&sb, "\t0x%08x", binary.LittleEndian.Uint32(data[i:]))
	}
	if sb.Len() > 0 {
		lines = append(lines, sb.String())
	}
	return lines
}
