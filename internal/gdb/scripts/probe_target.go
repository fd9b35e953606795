package scripts

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

//go:embed templates/probe_target.gdb.tmpl
var probeTargetTemplate string

var probeLine = regexp.MustCompile(`^(REG|SYM) (\w+)=0x([0-9a-fA-F]+)$`)

// ProbeTargetScript halts the target, reports the core registers the
// inspection commands depend on and checks that the kernel symbols exist.
//
// Parsed values are stored in Result.Data as uint32 under the register name
// ("pc", "psp", "msp", "xpsr") and under "&symbol" for each symbol.
type ProbeTargetScript struct {
	elf     string
	symbols []string
	resume  bool
}

// NewProbeTargetScript creates a probe for the given symbols.
func NewProbeTargetScript(symbols []string, resume bool) *ProbeTargetScript {
	return &ProbeTargetScript{symbols: symbols, resume: resume}
}

// WithELF loads elf into gdb first, so symbols can be located.
func (s *ProbeTargetScript) WithELF(elf string) *ProbeTargetScript {
	s.elf = elf
	return s
}

func (s *ProbeTargetScript) Name() string {
	return "probe_target"
}

func (s *ProbeTargetScript) Template() string {
	return probeTargetTemplate
}

func (s *ProbeTargetScript) Params() map[string]interface{} {
	return map[string]interface{}{
		"ELF":     s.elf,
		"Symbols": s.symbols,
		"Resume":  s.resume,
	}
}

func (s *ProbeTargetScript) Parse(output string) (*Result, error) {
	result := NewResult()

	for _, line := range splitLines(output) {
		m := probeLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseUint(m[3], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("probe_target: bad value in %q: %w", line, err)
		}
		key := m[2]
		if m[1] == "SYM" {
			key = "&" + key
		}
		result.SetData(key, uint32(v))
	}

	if !strings.Contains(output, SuccessMarker) {
		result.Error = fmt.Errorf("target probe failed: success marker not found")
		if line := firstErrorLine(output); line != "" {
			result.Error = fmt.Errorf("target probe failed: %s", line)
		}
		return result, nil
	}

	for _, sym := range s.symbols {
		if _, ok := result.GetDataUint32("&" + sym); !ok {
			result.Error = fmt.Errorf("target probe failed: no address reported for %s", sym)
			return result, nil
		}
	}
	result.Success = true
	return result, nil
}

func (s *ProbeTargetScript) Streaming() bool {
	return false
}
