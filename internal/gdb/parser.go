package gdb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/muurk/taskscope/internal/gdb/scripts"
)

// Parser recognises progress markers and well-known failures in gdb text
// output, both from batch scripts and from MI error messages.
type Parser struct {
	stepPattern    *regexp.Regexp // Matches: [1/3] Step description...
	resultPattern  *regexp.Regexp // Matches: some_result: 123 or some_result = 0x1234
	failurePattern *regexp.Regexp // Matches: error, ERROR, FAIL, failed
}

// NewParser creates a new parser with compiled regex patterns.
func NewParser() *Parser {
	return &Parser{
		stepPattern:    regexp.MustCompile(`\[(\d+)/(\d+)\]\s+(.+?)(?:\.\.\.)?\s*$`),
		resultPattern:  regexp.MustCompile(`(\w+)\s*[=:]\s*(-?(?:0x)?[0-9a-fA-F]+)`),
		failurePattern: regexp.MustCompile(`(?i)error|fail|abort|cannot access`),
	}
}

// ParseSteps extracts step markers from GDB output.
// Looks for lines like:
//
//	[1/3] Halting target...
//	[2/3] Dumping memory...
//
// A step is marked failed when one of the next few lines, before the next
// marker, looks like an error.
func (p *Parser) ParseSteps(output string) []scripts.Step {
	lines := strings.Split(output, "\n")
	steps := make([]scripts.Step, 0)

	for i, line := range lines {
		line = strings.TrimSpace(line)
		matches := p.stepPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		status := "success"
		message := ""
		for j := i + 1; j < i+4 && j < len(lines); j++ {
			nextLine := strings.TrimSpace(lines[j])
			if p.stepPattern.MatchString(nextLine) {
				break
			}
			if p.failurePattern.MatchString(nextLine) {
				status = "failed"
				message = nextLine
				break
			}
			if p.resultPattern.MatchString(nextLine) {
				message = nextLine
			}
		}

		steps = append(steps, scripts.Step{
			Name:    fmt.Sprintf("[%s/%s] %s", matches[1], matches[2], matches[3]),
			Status:  status,
			Message: message,
		})
	}

	return steps
}

// DetectErrors scans GDB output for error indicators.
// Connection failures come back as *GDBConnectionError with Host and Port
// left for the caller to fill in.
func (p *Parser) DetectErrors(output string) error {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.Contains(line, "Cannot access memory at address") {
			return fmt.Errorf("GDB memory access error: %s", line)
		}

		if strings.Contains(line, "Connection refused") ||
			strings.Contains(line, "Connection timed out") ||
			strings.Contains(line, "Remote connection closed") {
			return &GDBConnectionError{
				Host: "unknown",
				Err:  fmt.Errorf("%s", line),
			}
		}

		if strings.Contains(line, "No such file or directory") {
			return fmt.Errorf("GDB file not found: %s", line)
		}

		if strings.Contains(line, "Remote communication error") {
			return fmt.Errorf("GDB communication error: %s", line)
		}

		if strings.Contains(line, "The program is not being run") {
			return fmt.Errorf("target not running: %s", line)
		}
	}

	return nil
}
