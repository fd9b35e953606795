package frame

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/muurk/taskscope/internal/target"
)

// CoreRegisterAccess is the part of a target needed to drive the debug
// core register selector.
type CoreRegisterAccess interface {
	target.Memory
	WriteMemory(ctx context.Context, addr uint32, data []byte) error
}

// FPRegister is one floating-point register read through DCRSR/DCRDR.
type FPRegister struct {
	Name string
	Raw  uint32
}

// Float interprets the register as a single-precision value.
func (r FPRegister) Float() float32 {
	return math.Float32frombits(r.Raw)
}

func (r FPRegister) String() string {
	if r.Name == "fpscr" {
		return fmt.Sprintf("%-15s%#x\t%d", r.Name, r.Raw, r.Raw)
	}
	return fmt.Sprintf("%-15s%f\t(raw %#x)", r.Name, r.Float(), r.Raw)
}

// FPU reads floating-point registers of a halted core.
type FPU struct {
	arch   *Arch
	target CoreRegisterAccess
	reader *target.Reader
}

// NewFPU returns an FPU reader for arch.
func NewFPU(arch *Arch, t CoreRegisterAccess) *FPU {
	return &FPU{arch: arch, target: t, reader: target.NewReader(t, nil)}
}

// Names lists every register Read accepts, in display order.
func (f *FPU) Names() []string {
	names := make([]string, 0, f.arch.Debug.FPCount+1)
	for i := 0; i < f.arch.Debug.FPCount; i++ {
		names = append(names, fmt.Sprintf("s%d", i))
	}
	return append(names, "fpscr")
}

func (f *FPU) selector(name string) (uint32, error) {
	if name == "fpscr" {
		return f.arch.Debug.FPSCR, nil
	}
	if strings.HasPrefix(name, "s") {
		n, err := strconv.Atoi(name[1:])
		if err == nil && n >= 0 && n < f.arch.Debug.FPCount {
			return f.arch.Debug.FPBase + uint32(n), nil
		}
	}
	return 0, fmt.Errorf("invalid register '%s'", name)
}

// Read selects name in DCRSR and reads it back from DCRDR.
func (f *FPU) Read(ctx context.Context, name string) (FPRegister, error) {
	sel, err := f.selector(name)
	if err != nil {
		return FPRegister{}, err
	}
	buf := make([]byte, target.WordSize)
	binary.LittleEndian.PutUint32(buf, sel)
	if err := f.target.WriteMemory(ctx, f.arch.Debug.DCRSR, buf); err != nil {
		return FPRegister{}, fmt.Errorf("selecting %s: %w", name, err)
	}
	raw, err := f.reader.Word(ctx, f.arch.Debug.DCRDR)
	if err != nil {
		return FPRegister{}, err
	}
	return FPRegister{Name: name, Raw: raw}, nil
}
