package symtab

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// DefaultObjdumpPath is the objdump used when none is configured.
const DefaultObjdumpPath = "arm-none-eabi-objdump"

// ObjdumpError reports a failed objdump run.
type ObjdumpError struct {
	Path     string
	ELF      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ObjdumpError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s -t %s failed (exit code %d): %s", e.Path, e.ELF, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s -t %s failed (exit code %d): %v", e.Path, e.ELF, e.ExitCode, e.Err)
}

func (e *ObjdumpError) Unwrap() error {
	return e.Err
}

// Objdump produces symbol dumps by running objdump on an ELF file.
type Objdump struct {
	path   string
	logger *zap.Logger
}

// NewObjdump returns a runner for the objdump binary at path. An empty path
// selects DefaultObjdumpPath.
func NewObjdump(path string, logger *zap.Logger) *Objdump {
	if path == "" {
		path = DefaultObjdumpPath
	}
	return &Objdump{path: path, logger: logger}
}

// Dump runs `objdump -t elf` and returns its stdout.
func (o *Objdump) Dump(ctx context.Context, elf string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.path, "-t", elf)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	o.logger.Debug("running objdump",
		zap.String("objdump", o.path),
		zap.String("elf", elf),
	)

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ObjdumpError{
			Path:     o.path,
			ELF:      elf,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	o.logger.Debug("objdump complete",
		zap.String("elf", elf),
		zap.Int("stdout_size", stdout.Len()),
	)
	return stdout.Bytes(), nil
}

// Load dumps elf and parses the result into a table.
func (o *Objdump) Load(ctx context.Context, elf string) (*Table, error) {
	out, err := o.Dump(ctx, elf)
	if err != nil {
		return nil, err
	}
	table, err := Parse(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}
	o.logger.Info("loaded symbol table",
		zap.String("elf", elf),
		zap.Int("functions", table.Len()),
	)
	return table, nil
}
