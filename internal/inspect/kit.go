package inspect

import (
	"context"
	"fmt"

	"github.com/muurk/taskscope/internal/frame"
	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/target"
	"github.com/muurk/taskscope/internal/task"
)

// Kit bundles what the rules need to look at a halted target.
type Kit struct {
	Target   target.Target
	Profile  *profile.Profile
	Arch     *frame.Arch
	Reader   *target.Reader
	Resolver frame.Resolver
	Decoder  *frame.Decoder
	Observer Observer

	// ShowFrames makes interrupt reports list every stacked register.
	ShowFrames bool
}

// NewKit prepares a Kit for a target running the kernel described by p.
func NewKit(t target.Target, p *profile.Profile, resolver frame.Resolver, obs Observer) (*Kit, error) {
	arch, err := frame.LookupArch(p.Arch)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	reader := target.NewReader(t, nil)
	return &Kit{
		Target:   t,
		Profile:  p,
		Arch:     arch,
		Reader:   reader,
		Resolver: resolver,
		Decoder:  frame.NewDecoder(arch, reader, resolver),
		Observer: obs,
	}, nil
}

// Correlator resolves the current-task global on the target and returns a
// Correlator for it.
func (k *Kit) Correlator(ctx context.Context) (*task.Correlator, error) {
	addr, err := target.AddressOf(ctx, k.Target, k.Profile.Task.Current)
	if err != nil {
		return nil, err
	}
	corr := task.NewCorrelator(k.Reader, k.Decoder, k.Resolver, k.Profile.Task, addr)
	if head := k.Profile.Task.RingHead; head != "" {
		headAddr, err := target.AddressOf(ctx, k.Target, head)
		if err != nil {
			return nil, err
		}
		corr.WithRingHead(headAddr)
	}
	return corr, nil
}

func (k *Kit) emit(rule string, h target.Halt, text string, partial bool) {
	if k.Observer == nil {
		return
	}
	k.Observer.Observe(Event{Rule: rule, Halt: h, Text: text, Partial: partial})
}
