package gdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/taskscope/internal/gdb/scripts"
)

// Config holds the configuration for talking to gdb and the OpenOCD server
// behind it.
type Config struct {
	// GDBPath is the path to the arm-none-eabi-gdb binary.
	// Default: "arm-none-eabi-gdb" (searches PATH)
	GDBPath string

	// OpenOCDHost is the hostname/IP where OpenOCD is running.
	// Default: "localhost"
	OpenOCDHost string

	// OpenOCDPort is the port where OpenOCD is listening.
	// Default: 3333
	OpenOCDPort int

	// Timeout bounds batch script runs. Interactive sessions are bounded by
	// their context instead.
	// Default: 5 minutes
	Timeout time.Duration

	// WorkDir is the working directory for temporary files.
	// Default: os.TempDir()
	WorkDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GDBPath:     "arm-none-eabi-gdb",
		OpenOCDHost: "localhost",
		OpenOCDPort: 3333,
		Timeout:     5 * time.Minute,
		WorkDir:     os.TempDir(),
	}
}

// Remote returns the host:port gdb connects to.
func (c Config) Remote() string {
	return fmt.Sprintf("%s:%d", c.OpenOCDHost, c.OpenOCDPort)
}

// Executor runs one-shot gdb batch scripts via os/exec.
type Executor struct {
	config Config
	logger *zap.Logger
	parser *Parser

	// Stream receives a copy of gdb's stdout for streaming scripts.
	Stream io.Writer
}

// NewExecutor creates a new GDB executor with the given configuration.
func NewExecutor(config Config, logger *zap.Logger) *Executor {
	return &Executor{
		config: config,
		logger: logger,
		parser: NewParser(),
		Stream: os.Stdout,
	}
}

// Execute runs a GDB script and returns the parsed result.
//
// The script template is rendered with the script's parameters plus the
// connection settings, written to a temporary file and run with
// arm-none-eabi-gdb -batch. Progress markers in the output fill in
// Result.Steps when the script's own parser leaves them empty.
func (e *Executor) Execute(ctx context.Context, script scripts.Script) (*scripts.Result, error) {
	startTime := time.Now()

	e.logger.Info("executing GDB script",
		zap.String("script", script.Name()),
		zap.String("gdb_path", e.config.GDBPath),
		zap.String("openocd", e.config.Remote()),
		zap.Duration("timeout", e.config.Timeout),
	)

	rendered, err := e.renderTemplate(script)
	if err != nil {
		return nil, &TemplateError{
			Template: script.Name(),
			Err:      err,
		}
	}

	e.logger.Debug("rendered GDB script template",
		zap.String("script", script.Name()),
		zap.Int("size", len(rendered)),
		zap.String("content", rendered),
	)

	scriptFile, err := e.writeScriptFile(script.Name(), rendered)
	if err != nil {
		return nil, fmt.Errorf("failed to write script file: %w", err)
	}
	defer os.Remove(scriptFile)

	stdout, stderr, exitCode, err := e.executeGDB(ctx, scriptFile, script.Streaming())
	duration := time.Since(startTime)

	e.logger.Debug("GDB execution complete",
		zap.String("script", script.Name()),
		zap.Duration("duration", duration),
		zap.Int("exit_code", exitCode),
		zap.String("stdout", stdout),
		zap.String("stderr", stderr),
	)

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return nil, err
	}
	if err != nil || exitCode != 0 {
		if detected := e.parser.DetectErrors(stderr + "\n" + stdout); detected != nil {
			var connErr *GDBConnectionError
			if errors.As(detected, &connErr) {
				connErr.Host, connErr.Port = e.config.OpenOCDHost, e.config.OpenOCDPort
			}
			err = detected
		}
		return nil, &GDBExecutionError{
			Script:   script.Name(),
			ExitCode: exitCode,
			Stderr:   stderr,
			Stdout:   stdout,
			Err:      err,
		}
	}

	result, err := script.Parse(stdout)
	if err != nil {
		return nil, err
	}
	if len(result.Steps) == 0 {
		result.Steps = e.parser.ParseSteps(stdout)
	}

	result.Duration = duration
	result.RawOutput = stdout
	result.RawStderr = stderr

	e.logger.Info("GDB script executed successfully",
		zap.String("script", script.Name()),
		zap.Duration("duration", duration),
		zap.Bool("success", result.Success),
		zap.Int("steps", result.TotalSteps()),
		zap.Int("bytes_read", result.BytesRead),
	)

	return result, nil
}

// renderTemplate renders the script template. The connection settings are
// always available as OpenOCDHost and OpenOCDPort unless the script sets
// its own.
func (e *Executor) renderTemplate(script scripts.Script) (string, error) {
	tmpl, err := template.New(script.Name()).Option("missingkey=error").Parse(script.Template())
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	params := map[string]interface{}{
		"OpenOCDHost": e.config.OpenOCDHost,
		"OpenOCDPort": e.config.OpenOCDPort,
	}
	for k, v := range script.Params() {
		params[k] = v
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// writeScriptFile writes the rendered script to a temporary file.
func (e *Executor) writeScriptFile(name, content string) (string, error) {
	filename := fmt.Sprintf("taskscope-gdb-%s-*.gdb", name)
	file, err := os.CreateTemp(e.config.WorkDir, filename)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write script content: %w", err)
	}

	return file.Name(), nil
}

// executeGDB runs gdb on scriptFile. Streaming scripts are run without
// -batch, which would otherwise buffer their output, and are copied to
// e.Stream as they run.
func (e *Executor) executeGDB(ctx context.Context, scriptFile string, streaming bool) (stdout, stderr string, exitCode int, err error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	args := []string{"-batch", "-nx", "-x", scriptFile}
	if streaming {
		args = args[1:]
	}
	cmd := exec.CommandContext(timeoutCtx, e.config.GDBPath, args...)
	cmd.WaitDelay = time.Second

	var stdoutBuf, stderrBuf bytes.Buffer

	if streaming && e.Stream != nil {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return "", "", -1, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		cmd.Stderr = &stderrBuf

		if err := cmd.Start(); err != nil {
			return "", "", -1, fmt.Errorf("failed to start GDB: %w", err)
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			io.Copy(io.MultiWriter(&stdoutBuf, e.Stream), stdoutPipe)
		}()

		wg.Wait()
		err = cmd.Wait()
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
		err = cmd.Run()
	}

	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		err = &TimeoutError{
			Script:  filepath.Base(scriptFile),
			Timeout: e.config.Timeout.String(),
		}
	}

	return stdout, stderr, exitCode, err
}

// ValidateConfig checks that the configured gdb binary works. An
// unreachable OpenOCD server is only logged.
func (e *Executor) ValidateConfig(ctx context.Context) error {
	if err := ValidateBinary(ctx, ToolGDB, e.config.GDBPath); err != nil {
		return err
	}

	if err := ValidateOpenOCDConnection(ctx, e.config.OpenOCDHost, e.config.OpenOCDPort); err != nil {
		e.logger.Warn("OpenOCD connection check failed (this is not fatal)",
			zap.String("openocd", e.config.Remote()),
			zap.Error(err),
		)
	}

	return nil
}
