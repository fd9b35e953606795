package gdb

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Tool describes an external binary taskscope shells out to.
type Tool struct {
	// Name is the conventional binary name.
	Name string
	// Marker must appear in the output of `<binary> --version`.
	Marker string
	// Install is shown when the binary cannot be found.
	Install string
}

var (
	// ToolGDB is the ARM cross debugger.
	ToolGDB = Tool{
		Name:   "arm-none-eabi-gdb",
		Marker: "GNU gdb",
		Install: "Install on macOS: brew install --cask gcc-arm-embedded\n" +
			"Install on Linux: sudo apt-get install gdb-multiarch && ln -s /usr/bin/gdb-multiarch /usr/local/bin/arm-none-eabi-gdb",
	}

	// ToolObjdump is the binutils symbol dumper used by the symbols and
	// resolve commands.
	ToolObjdump = Tool{
		Name:   "arm-none-eabi-objdump",
		Marker: "GNU objdump",
		Install: "Install on macOS: brew install --cask gcc-arm-embedded\n" +
			"Install on Linux: sudo apt-get install binutils-arm-none-eabi",
	}
)

// Toolchain names the binaries to check.
type Toolchain struct {
	GDBPath     string
	ObjdumpPath string
}

// PrerequisiteCheck represents the result of checking a single prerequisite.
type PrerequisiteCheck struct {
	// Name is the human-readable name of the prerequisite
	Name string
	// Available indicates whether the prerequisite is available
	Available bool
	// Required is false for checks that only warn
	Required bool
	// Path is the resolved path (for binary checks)
	Path string
	// Version is the detected version (if applicable)
	Version string
	// Message provides additional context (error message or success info)
	Message string
	// Error contains the underlying error if check failed
	Error error
}

// PrerequisiteResult contains the results of all prerequisite checks.
type PrerequisiteResult struct {
	Checks []PrerequisiteCheck
	// AllAvailable is true if every required prerequisite is available
	AllAvailable bool
}

// Err combines the errors of all failed required checks.
func (r *PrerequisiteResult) Err() error {
	var err error
	for _, check := range r.Checks {
		if check.Required && !check.Available {
			err = multierr.Append(err, &PrerequisiteError{
				Prerequisite: check.Name,
				Details:      check.Message,
				Err:          check.Error,
			})
		}
	}
	return err
}

// ValidatePrerequisites checks the toolchain binaries and whether OpenOCD is
// reachable. An unreachable OpenOCD server is reported but does not clear
// AllAvailable, since offline commands never need it.
func ValidatePrerequisites(ctx context.Context, tools Toolchain, openocdHost string, openocdPort int) *PrerequisiteResult {
	result := &PrerequisiteResult{AllAvailable: true}

	for _, c := range []struct {
		tool Tool
		path string
	}{
		{ToolGDB, tools.GDBPath},
		{ToolObjdump, tools.ObjdumpPath},
	} {
		check := checkBinary(ctx, c.tool, c.path)
		result.Checks = append(result.Checks, check)
		if !check.Available {
			result.AllAvailable = false
		}
	}

	result.Checks = append(result.Checks, checkOpenOCDConnection(ctx, openocdHost, openocdPort))
	return result
}

// checkBinary verifies that a tool is on PATH (or at path) and answers
// --version like the real thing.
func checkBinary(ctx context.Context, tool Tool, path string) PrerequisiteCheck {
	if path == "" {
		path = tool.Name
	}
	check := PrerequisiteCheck{Name: tool.Name, Required: true}

	resolved, err := exec.LookPath(path)
	if err != nil {
		check.Error = err
		check.Message = fmt.Sprintf("%s not found\n%s", path, tool.Install)
		return check
	}
	check.Path = resolved

	version, err := binaryVersion(ctx, tool, resolved)
	if err != nil {
		check.Error = err
		check.Message = fmt.Sprintf("%s found at %s but failed the version check", tool.Name, resolved)
		return check
	}

	check.Available = true
	check.Version = version
	check.Message = fmt.Sprintf("Found at %s", resolved)
	return check
}

func binaryVersion(ctx context.Context, tool Tool, path string) (string, error) {
	versionCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(versionCtx, path, "--version").Output()
	if err != nil {
		return "", err
	}
	if !strings.Contains(string(output), tool.Marker) {
		return "", fmt.Errorf("%s does not look like %s", path, tool.Marker)
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}

// checkOpenOCDConnection attempts a TCP connection to the OpenOCD gdb port.
func checkOpenOCDConnection(ctx context.Context, host string, port int) PrerequisiteCheck {
	check := PrerequisiteCheck{Name: "OpenOCD Connection"}
	address := net.JoinHostPort(host, fmt.Sprint(port))

	if err := ValidateOpenOCDConnection(ctx, host, port); err != nil {
		check.Error = err
		check.Message = fmt.Sprintf("Cannot connect to OpenOCD at %s\n"+
			"This is not fatal for offline commands, but live inspection will fail.\n"+
			"Ensure OpenOCD is running: openocd -f board/stm32f4discovery.cfg", address)
		return check
	}

	check.Available = true
	check.Message = fmt.Sprintf("Connected successfully to %s", address)
	return check
}

// ValidateBinary checks that path runs and identifies itself as tool.
func ValidateBinary(ctx context.Context, tool Tool, path string) error {
	if path == "" {
		return &PrerequisiteError{
			Prerequisite: tool.Name,
			Details:      "path is empty",
		}
	}
	if _, err := binaryVersion(ctx, tool, path); err != nil {
		return &PrerequisiteError{
			Prerequisite: tool.Name,
			Details:      fmt.Sprintf("Failed to execute %s --version", path),
			Err:          err,
		}
	}
	return nil
}

// ValidateOpenOCDConnection checks if OpenOCD is accessible at the given host and port.
func ValidateOpenOCDConnection(ctx context.Context, host string, port int) error {
	dialer := net.Dialer{Timeout: 2 * time.Second}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return &GDBConnectionError{
			Host: host,
			Port: port,
			Err:  err,
		}
	}
	return conn.Close()
}

// FormatPrerequisiteReport formats a PrerequisiteResult into a human-readable string.
func FormatPrerequisiteReport(result *PrerequisiteResult) string {
	var sb strings.Builder

	sb.WriteString("Toolchain Check:\n")
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	for _, check := range result.Checks {
		mark := "✓"
		if !check.Available {
			mark = "✗"
		}
		fmt.Fprintf(&sb, "%s %s\n", mark, check.Name)
		if check.Available && check.Version != "" {
			fmt.Fprintf(&sb, "  Version: %s\n", check.Version)
		}
		if check.Available && check.Path != "" {
			fmt.Fprintf(&sb, "  Path: %s\n", check.Path)
		}
		if check.Message != "" {
			fmt.Fprintf(&sb, "  %s\n", check.Message)
		}
		sb.WriteString("\n")
	}

	if result.AllAvailable {
		sb.WriteString("All required prerequisites are available.\n")
	} else {
		sb.WriteString("Some prerequisites are missing. Please install them before proceeding.\n")
	}

	return sb.String()
}
