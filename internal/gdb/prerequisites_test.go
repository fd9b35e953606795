package gdb

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func writeTool(t *testing.T, name, version string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho '"+version+"'\n"), 0755); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestValidatePrerequisites(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	tools := Toolchain{
		GDBPath:     writeTool(t, "gdb", "GNU gdb (GDB) 14.1"),
		ObjdumpPath: writeTool(t, "objdump", "GNU objdump (GNU Binutils) 2.41"),
	}

	result := ValidatePrerequisites(context.Background(), tools, "127.0.0.1", port)
	if !result.AllAvailable {
		t.Fatalf("expected all prerequisites, got:\n%s", FormatPrerequisiteReport(result))
	}
	if len(result.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(result.Checks))
	}
	if result.Checks[0].Version != "GNU gdb (GDB) 14.1" {
		t.Errorf("gdb version = %q", result.Checks[0].Version)
	}
	if !result.Checks[2].Available {
		t.Errorf("OpenOCD check failed: %s", result.Checks[2].Message)
	}
	if err := result.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestValidatePrerequisites_Missing(t *testing.T) {
	tools := Toolchain{
		GDBPath:     filepath.Join(t.TempDir(), "missing-gdb"),
		ObjdumpPath: writeTool(t, "objdump", "not binutils"),
	}

	result := ValidatePrerequisites(context.Background(), tools, "127.0.0.1", 1)
	if result.AllAvailable {
		t.Fatal("expected missing prerequisites")
	}

	errs := multierr.Errors(result.Err())
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), result.Err())
	}
	var prereq *PrerequisiteError
	if !errors.As(errs[1], &prereq) || prereq.Prerequisite != ToolObjdump.Name {
		t.Errorf("second error = %v", errs[1])
	}

	report := FormatPrerequisiteReport(result)
	if !strings.Contains(report, "✗ arm-none-eabi-gdb") || !strings.Contains(report, "Some prerequisites are missing") {
		t.Errorf("unexpected report:\n%s", report)
	}
}
