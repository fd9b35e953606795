// Package frame decodes the register frames an ARMv7-M processor or the
// kernel's context switch leaves on a task stack.
package frame

import (
	"context"
	"fmt"

	"github.com/muurk/taskscope/internal/target"
)

// Kind names a stacked-context layout.
type Kind int

const (
	// BasicHardware is the eight-word frame pushed on exception entry
	// without floating-point state: r0-r3, r12, lr, pc, xpsr.
	BasicHardware Kind = iota + 1
	// ExtendedHardware is the frame the kernel's task swap leaves at the
	// new process stack pointer: r4-r11, then the eight words of a basic
	// frame, then room for s0-s15, fpscr and a reserved word.
	ExtendedHardware
	// SoftwareSwitch is the frame the kernel's switch routine stores
	// below the stack pointer before handing over to another task.
	SoftwareSwitch
)

var kindNames = map[Kind]string{
	BasicHardware:    "basic-hardware",
	ExtendedHardware: "extended-hardware",
	SoftwareSwitch:   "software-switch",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("frame-kind(%d)", int(k))
}

// ParseKind maps a name produced by Kind.String back to the Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown frame kind %q", s)
}

// Layout is where a frame kind keeps the saved program counter, relative
// to the stack pointer the frame was found at, and how big the frame is.
type Layout struct {
	PCOffset int
	Size     int
	// Registers names the stacked words from the frame base upwards.
	// Empty for layouts that are not laid out above the base.
	Registers []string
}

func (l Layout) pcMapped() bool {
	i := l.PCOffset / target.WordSize
	return l.PCOffset >= 0 && l.PCOffset%target.WordSize == 0 &&
		i < len(l.Registers) && l.Registers[i] == "pc"
}

// Decoded is the result of DecodeSavedPC.
type Decoded struct {
	Kind      Kind
	Base      uint32
	PCAddress uint32
	PC        uint32
	Function  string
}

// Resolver names code addresses.
type Resolver interface {
	Resolve(addr uint32) string
}

// Decoder reads saved program counters out of stacked frames.
type Decoder struct {
	arch     *Arch
	reader   *target.Reader
	resolver Resolver
}

// NewDecoder returns a Decoder for arch reading through reader.
func NewDecoder(arch *Arch, reader *target.Reader, resolver Resolver) *Decoder {
	return &Decoder{arch: arch, reader: reader, resolver: resolver}
}

// PCAddress is where a frame of kind found at base keeps its saved pc.
func (d *Decoder) PCAddress(base uint32, kind Kind) (uint32, error) {
	layout, err := d.arch.Layout(kind)
	if err != nil {
		return 0, err
	}
	return target.Offset(base, layout.PCOffset), nil
}

// DecodeSavedPC reads the saved pc of a frame of kind at base and resolves
// it. A failed read is returned as is; no pc is made up in its place.
func (d *Decoder) DecodeSavedPC(ctx context.Context, base uint32, kind Kind) (Decoded, error) {
	addr, err := d.PCAddress(base, kind)
	if err != nil {
		return Decoded{}, err
	}
	pc, err := d.reader.Word(ctx, addr)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{
		Kind:      kind,
		Base:      base,
		PCAddress: addr,
		PC:        pc,
		Function:  d.resolver.Resolve(pc),
	}, nil
}

// View is a read-only look at every named register of a hardware frame.
type View struct {
	Kind      Kind
	Base      uint32
	Registers []Register
}

// Register is one stacked register.
type Register struct {
	Name    string
	Address uint32
	Value   uint32
}

// Get returns the named register.
func (v View) Get(name string) (Register, bool) {
	for _, r := range v.Registers {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}

// Lines renders one register per line.
func (v View) Lines() []string {
	lines := make([]string, len(v.Registers))
	for i, r := range v.Registers {
		lines[i] = fmt.Sprintf("  %-8s 0x%08x  (@0x%08x)", r.Name, r.Value, r.Address)
	}
	return lines
}

// ReadView reads every named register of a frame. The register map must
// agree with the layout's pc offset.
func (d *Decoder) ReadView(ctx context.Context, base uint32, kind Kind) (View, error) {
	layout, err := d.arch.Layout(kind)
	if err != nil {
		return View{}, err
	}
	if len(layout.Registers) == 0 {
		return View{}, fmt.Errorf("%s frames have no register map", kind)
	}
	if !layout.pcMapped() {
		return View{}, fmt.Errorf("%s: register map does not place pc at offset %d", kind, layout.PCOffset)
	}
	view := View{Kind: kind, Base: base}
	for i, name := range layout.Registers {
		addr := target.Offset(base, i*target.WordSize)
		v, err := d.reader.Word(ctx, addr)
		if err != nil {
			return View{}, err
		}
		view.Registers = append(view.Registers, Register{Name: name, Address: addr, Value: v})
	}
	return view, nil
}
