package frame

import "fmt"

// ARMv7-M frame geometry, in bytes.
const (
	basicFramePCOffset    = 6 * 4 // r0-r3, r12, lr precede pc
	basicFrameSize        = 8 * 4
	extendedFramePCOffset = 14 * 4 // r4-r11, r0-r3, r12, lr precede pc
	extendedFrameSize     = 34 * 4 // r4-r11 + basic frame + s0-s15, fpscr, reserved

	// The switch routine writes pc 84 bytes below the stack pointer it
	// was called on. The full software frame holds r4-r11, the eight
	// hardware-format words and s0-s31 with fpscr.
	softwareFramePCOffset = -84
	softwareFrameSize     = 16*4 + 33*4
)

// ARMv7-M debug core registers used to read FP registers while halted.
const (
	regDCRSR          uint32 = 0xE000EDF4
	regDCRDR          uint32 = 0xE000EDF8
	selectorFPBase    uint32 = 0x40
	selectorFPSCR     uint32 = 0x21
	fpSingleRegisters        = 32
)

// DebugRegisters locates the core register transfer interface.
type DebugRegisters struct {
	// DCRSR selects which core register DCRDR transfers.
	DCRSR uint32
	DCRDR uint32
	// FPBase is the selector of s0; s<n> is FPBase+n.
	FPBase  uint32
	FPSCR   uint32
	FPCount int
}

// Arch is the frame and debug geometry of one processor family.
type Arch struct {
	Name   string
	Frames map[Kind]Layout
	Debug  DebugRegisters
	PSP    string
	MSP    string
}

var hardwareRegisters = []string{"r0", "r1", "r2", "r3", "r12", "lr", "pc", "xpsr"}

func extendedRegisters() []string {
	var regs []string
	for i := 4; i <= 11; i++ {
		regs = append(regs, fmt.Sprintf("r%d", i))
	}
	regs = append(regs, hardwareRegisters...)
	for i := 0; i < 16; i++ {
		regs = append(regs, fmt.Sprintf("s%d", i))
	}
	return append(regs, "fpscr", "reserved")
}

// ARMv7M covers Cortex-M3 and Cortex-M4F.
var ARMv7M = &Arch{
	Name: "armv7m",
	Frames: map[Kind]Layout{
		BasicHardware: {
			PCOffset:  basicFramePCOffset,
			Size:      basicFrameSize,
			Registers: hardwareRegisters,
		},
		ExtendedHardware: {
			PCOffset:  extendedFramePCOffset,
			Size:      extendedFrameSize,
			Registers: extendedRegisters(),
		},
		SoftwareSwitch: {
			PCOffset: softwareFramePCOffset,
			Size:     softwareFrameSize,
		},
	},
	Debug: DebugRegisters{
		DCRSR:   regDCRSR,
		DCRDR:   regDCRDR,
		FPBase:  selectorFPBase,
		FPSCR:   selectorFPSCR,
		FPCount: fpSingleRegisters,
	},
	PSP: "psp",
	MSP: "msp",
}

var arches = map[string]*Arch{
	ARMv7M.Name: ARMv7M,
}

// LookupArch returns the named architecture.
func LookupArch(name string) (*Arch, error) {
	a, ok := arches[name]
	if !ok {
		return nil, fmt.Errorf("unsupported architecture %q", name)
	}
	return a, nil
}

// Layout returns the layout of kind.
func (a *Arch) Layout(kind Kind) (Layout, error) {
	l, ok := a.Frames[kind]
	if !ok {
		return Layout{}, fmt.Errorf("%s: no layout for %s frames", a.Name, kind)
	}
	return l, nil
}
