package scripts

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed templates/dump_memory.gdb.tmpl
var dumpMemoryTemplate string

var errorLine = regexp.MustCompile(`(?i)error|cannot access|no symbol|not being run|refused`)

func splitLines(output string) []string {
	lines := strings.Split(output, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

// DumpMemoryScript copies a range of target memory to a local file, which
// can later be inspected offline as a target.Image.
type DumpMemoryScript struct {
	startAddress uint32
	size         int
	outputFile   string
	resume       bool
}

// NewDumpMemoryScript creates a memory dump of size bytes at startAddress.
// The target is resumed afterwards when resume is set.
func NewDumpMemoryScript(startAddress uint32, size int, outputFile string, resume bool) *DumpMemoryScript {
	return &DumpMemoryScript{
		startAddress: startAddress,
		size:         size,
		outputFile:   outputFile,
		resume:       resume,
	}
}

func (s *DumpMemoryScript) Name() string {
	return "dump_memory"
}

func (s *DumpMemoryScript) Template() string {
	return dumpMemoryTemplate
}

func (s *DumpMemoryScript) Params() map[string]interface{} {
	return map[string]interface{}{
		"StartAddress": s.startAddress,
		"EndAddress":   uint64(s.startAddress) + uint64(s.size),
		"Size":         s.size,
		"OutputFile":   s.outputFile,
		"Resume":       s.resume,
	}
}

// Parse checks for the success marker. Steps are left to the executor.
func (s *DumpMemoryScript) Parse(output string) (*Result, error) {
	result := NewResult()

	if strings.Contains(output, SuccessMarker) {
		result.Success = true
		result.BytesRead = s.size
		result.SetData("start_address", s.startAddress)
		result.SetData("output_file", s.outputFile)
		return result, nil
	}

	result.Error = fmt.Errorf("memory dump failed: success marker not found")
	if line := firstErrorLine(output); line != "" {
		if strings.Contains(line, "Cannot access memory") {
			result.Error = fmt.Errorf("cannot access memory at 0x%08x: address may be invalid or not accessible", s.startAddress)
		} else {
			result.Error = fmt.Errorf("memory dump failed: %s", line)
		}
	}
	return result, nil
}

func (s *DumpMemoryScript) Streaming() bool {
	return false
}
