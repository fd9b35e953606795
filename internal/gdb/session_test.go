package gdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/taskscope/internal/target"
)

// fakeMIGDB answers just enough GDB/MI for the session tests. Each command
// is echoed back with its token.
const fakeMIGDB = `#!/bin/sh
echo '=thread-group-added,id="i1"'
echo '(gdb) '
while IFS= read -r line; do
  tok=${line%%[!0-9]*}
  cmd=${line#"$tok"}
  case "$cmd" in
    -target-select*)
      if [ -n "$FAKE_REFUSE" ]; then
        echo "${tok}^error,msg=\"localhost:3333: Connection refused.\""
      else
        echo "${tok}^connected"
      fi ;;
    -break-insert*)
      echo "${tok}^done,bkpt={number=\"3\",type=\"breakpoint\",addr=\"0x08000410\",func=\"pendsv_handler\"}" ;;
    -break-watch*)
      echo "${tok}^done,wpt={number=\"4\",exp=\"curr_task\"}" ;;
    -exec-continue*)
      echo "${tok}^running"
      echo '*running,thread-id="all"'
      echo '(gdb) '
      printf '%s\n' '~"\nBreakpoint 3, pendsv_handler ()\n"'
      echo '*stopped,reason="breakpoint-hit",disp="keep",bkptno="3",frame={addr="0x08000410",func="pendsv_handler",args=[]},thread-id="1"' ;;
    -exec-finish*)
      echo "${tok}^running"
      echo '*stopped,reason="function-finished",frame={addr="0x08000500",func="poll"},gdb-result-var="$1",return-value="5"' ;;
    "-data-read-memory-bytes 0x20000000"*)
      echo "${tok}^done,memory=[{begin=\"0x20000000\",offset=\"0x00000000\",end=\"0x20000004\",contents=\"78563412\"}]" ;;
    -data-read-memory-bytes*)
      echo "${tok}^error,msg=\"Cannot access memory at address 0x30000000\"" ;;
    -data-evaluate-expression*"(void *)(malloc(16))"*)
      echo "${tok}^done,value=\"(void *) 0x20001a00\"" ;;
    -data-evaluate-expression*psp*)
      echo "${tok}^done,value=\"536872832\"" ;;
    -data-evaluate-expression*)
      echo "${tok}^done,value=\"(task_ctrl **) 0x20000004 <curr_task>\"" ;;
    -data-write-memory-bytes*)
      echo "${tok}^done" ;;
    -gdb-exit*)
      echo "${tok}^exit"
      exit 0 ;;
    *)
      echo "${tok}^error,msg=\"Undefined MI command: $cmd\"" ;;
  esac
  echo '(gdb) '
done
`

func newFakeSession(t *testing.T) *Session {
	t.Helper()
	gdbPath := filepath.Join(t.TempDir(), "fake-gdb")
	if err := os.WriteFile(gdbPath, []byte(fakeMIGDB), 0755); err != nil {
		t.Fatalf("failed to write fake gdb: %v", err)
	}

	config := DefaultConfig()
	config.GDBPath = gdbPath

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, config, SessionOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionBreakpointAndHalt(t *testing.T) {
	s := newFakeSession(t)
	ctx := testContext(t)

	h, err := s.SetBreakpoint(ctx, "pendsv_handler")
	if err != nil {
		t.Fatalf("SetBreakpoint() error = %v", err)
	}
	if h != 3 {
		t.Errorf("SetBreakpoint() = %d, want 3", h)
	}

	if err := s.Continue(ctx); err != nil {
		t.Fatalf("Continue() error = %v", err)
	}
	halt, err := s.WaitHalt(ctx)
	if err != nil {
		t.Fatalf("WaitHalt() error = %v", err)
	}
	if halt.Reason != target.ReasonBreakpoint || halt.Handle != 3 {
		t.Errorf("halt = %+v", halt)
	}
	if halt.PC != 0x08000410 || halt.Function != "pendsv_handler" {
		t.Errorf("halt location = 0x%08x %s", halt.PC, halt.Function)
	}
}

func TestSessionWatchpoint(t *testing.T) {
	s := newFakeSession(t)
	h, err := s.SetWatchpoint(testContext(t), "curr_task")
	if err != nil {
		t.Fatalf("SetWatchpoint() error = %v", err)
	}
	if h != 4 {
		t.Errorf("SetWatchpoint() = %d, want 4", h)
	}
}

func TestSessionFinish(t *testing.T) {
	s := newFakeSession(t)
	ctx := testContext(t)

	if err := s.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	halt, err := s.WaitHalt(ctx)
	if err != nil {
		t.Fatalf("WaitHalt() error = %v", err)
	}
	if halt.Reason != target.ReasonFinished || halt.ReturnValue != "5" {
		t.Errorf("halt = %+v", halt)
	}
}

func TestSessionMemory(t *testing.T) {
	s := newFakeSession(t)
	ctx := testContext(t)

	data, err := s.ReadMemory(ctx, 0x20000000, 4)
	if err != nil {
		t.Fatalf("ReadMemory() error = %v", err)
	}
	v, err := target.NewReader(s, nil).Word(ctx, 0x20000000)
	if err != nil {
		t.Fatalf("Word() error = %v", err)
	}
	if len(data) != 4 || v != 0x12345678 {
		t.Errorf("ReadMemory() = %x, word 0x%08x", data, v)
	}

	_, err = s.ReadMemory(ctx, 0x30000000, 4)
	var readErr *target.ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("ReadMemory(unmapped) error = %v, want *target.ReadError", err)
	}
	var miErr *MIError
	if !errors.As(err, &miErr) {
		t.Errorf("ReadMemory(unmapped) should wrap the MI error: %v", err)
	}

	if err := s.WriteMemory(ctx, 0xE000EDF4, []byte{0x40, 0, 0, 0}); err != nil {
		t.Errorf("WriteMemory() error = %v", err)
	}
}

func TestSessionRegistersAndEvaluate(t *testing.T) {
	s := newFakeSession(t)
	ctx := testContext(t)

	psp, err := s.ReadRegister(ctx, "psp")
	if err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if psp != 0x20000780 {
		t.Errorf("ReadRegister(psp) = 0x%08x, want 0x20000780", psp)
	}

	addr, err := target.AddressOf(ctx, s, "curr_task")
	if err != nil {
		t.Fatalf("AddressOf() error = %v", err)
	}
	if addr != 0x20000004 {
		t.Errorf("AddressOf(curr_task) = 0x%08x", addr)
	}

	out, err := s.Evaluate(ctx, "malloc(16)", target.PointerType)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out != "(void *) 0x20001a00" {
		t.Errorf("Evaluate(malloc(16), void *) = %q", out)
	}
}

func TestSessionConnectionRefused(t *testing.T) {
	gdbPath := filepath.Join(t.TempDir(), "fake-gdb")
	if err := os.WriteFile(gdbPath, []byte(fakeMIGDB), 0755); err != nil {
		t.Fatalf("failed to write fake gdb: %v", err)
	}
	t.Setenv("FAKE_REFUSE", "1")

	config := DefaultConfig()
	config.GDBPath = gdbPath
	_, err := Open(testContext(t), config, SessionOptions{}, zap.NewNop())

	var connErr *GDBConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Open() error = %v, want *GDBConnectionError", err)
	}
	if connErr.Port != 3333 {
		t.Errorf("GDBConnectionError.Port = %d, want 3333", connErr.Port)
	}
}

func TestSessionMissingBinary(t *testing.T) {
	config := DefaultConfig()
	config.GDBPath = filepath.Join(t.TempDir(), "does-not-exist")
	_, err := Open(testContext(t), config, SessionOptions{}, zap.NewNop())

	var prereq *PrerequisiteError
	if !errors.As(err, &prereq) {
		t.Fatalf("Open() error = %v, want *PrerequisiteError", err)
	}
}

func TestParseRegister(t *testing.T) {
	tests := map[string]uint32{
		"536872832":           0x20000780,
		"-1":                  0xffffffff,
		"(void *) 0x20001f80": 0x20001f80,
		"0x8000190 <main+4>":  0x08000190,
	}
	for in, want := range tests {
		got, err := parseRegister(in)
		if err != nil || got != want {
			t.Errorf("parseRegister(%q) = 0x%x, %v; want 0x%x", in, got, err, want)
		}
	}
}
