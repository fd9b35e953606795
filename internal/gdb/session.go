package gdb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/taskscope/internal/target"
)

// SessionOptions configures a live GDB/MI session.
type SessionOptions struct {
	// ELF is loaded for symbols. Optional when every location is an address.
	ELF string
	// ResetHalt sends "monitor reset halt" after connecting.
	ResetHalt bool
}

// exitGrace is how long Close waits for gdb before killing it.
const exitGrace = 2 * time.Second

// Session is a persistent arm-none-eabi-gdb process driven over GDB/MI.
// It implements target.Target. A Session is not safe for concurrent use;
// taskscope drives it from a single dispatch loop.
type Session struct {
	config Config
	opts   SessionOptions
	logger *zap.Logger
	parser *Parser

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	stderr *lockedBuffer
	done   chan struct{}

	token   int
	pending []target.Halt
}

var _ target.Target = (*Session)(nil)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Open starts gdb in MI mode and connects it to OpenOCD.
func Open(ctx context.Context, config Config, opts SessionOptions, logger *zap.Logger) (*Session, error) {
	args := []string{"--interpreter=mi2", "-nx", "-q"}
	if opts.ELF != "" {
		args = append(args, opts.ELF)
	}

	s := &Session{
		config: config,
		opts:   opts,
		logger: logger,
		parser: NewParser(),
		lines:  make(chan string, 64),
		stderr: &lockedBuffer{},
		done:   make(chan struct{}),
	}

	s.cmd = exec.Command(config.GDBPath, args...)
	if config.WorkDir != "" {
		s.cmd.Dir = config.WorkDir
	}
	s.cmd.Stderr = s.stderr

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	s.stdin = stdin

	logger.Info("starting GDB/MI session",
		zap.String("gdb_path", config.GDBPath),
		zap.String("elf", opts.ELF),
		zap.String("openocd", fmt.Sprintf("%s:%d", config.OpenOCDHost, config.OpenOCDPort)),
	)

	if err := s.cmd.Start(); err != nil {
		return nil, &PrerequisiteError{
			Prerequisite: "arm-none-eabi-gdb",
			Details:      fmt.Sprintf("failed to start %s", config.GDBPath),
			Err:          err,
		}
	}

	go func() {
		defer close(s.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			select {
			case s.lines <- scanner.Text():
			case <-s.done:
				return
			}
		}
	}()

	if err := s.connect(ctx); err != nil {
		return nil, multierr.Append(err, s.Close())
	}
	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	remote := fmt.Sprintf("%s:%d", s.config.OpenOCDHost, s.config.OpenOCDPort)
	if _, err := s.command(ctx, "-target-select extended-remote "+remote); err != nil {
		var miErr *MIError
		if errors.As(err, &miErr) {
			return &GDBConnectionError{Host: s.config.OpenOCDHost, Port: s.config.OpenOCDPort, Err: err}
		}
		return err
	}
	if s.opts.ResetHalt {
		if _, err := s.command(ctx, "-interpreter-exec console "+quote("monitor reset halt")); err != nil {
			return err
		}
	}
	// Anything that stopped before the first resume is stale.
	s.pending = nil
	return nil
}

// next reads one record, honouring cancellation.
func (s *Session) next(ctx context.Context) (Record, error) {
	for {
		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return Record{}, &SessionClosedError{Stderr: s.stderr.String()}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			rec, err := ParseRecord(line)
			if err != nil {
				return Record{}, &GDBParseError{Script: "mi", Field: "record", Output: line, Err: err}
			}
			s.observe(rec)
			return rec, nil
		}
	}
}

// observe logs stream output and queues stops.
func (s *Session) observe(rec Record) {
	switch rec.Kind {
	case RecordConsole, RecordTarget, RecordLog:
		s.logger.Debug("gdb output", zap.String("text", strings.TrimRight(rec.Text, "\n")))
	case RecordExec:
		if rec.Class == "stopped" {
			s.pending = append(s.pending, haltFromRecord(rec))
		}
	case RecordNotify:
		s.logger.Debug("gdb notify", zap.String("class", rec.Class))
	}
}

// command sends an MI command and waits for its result record.
func (s *Session) command(ctx context.Context, cmd string) (Record, error) {
	s.token++
	tok := s.token
	s.logger.Debug("gdb command", zap.Int("token", tok), zap.String("command", cmd))

	if _, err := fmt.Fprintf(s.stdin, "%d%s\n", tok, cmd); err != nil {
		return Record{}, &SessionClosedError{Stderr: s.stderr.String(), Err: err}
	}

	for {
		rec, err := s.next(ctx)
		if err != nil {
			return Record{}, err
		}
		if rec.Kind != RecordResult || rec.Token != tok {
			continue
		}
		if rec.Class == "error" {
			msg := rec.Results.String("msg")
			var connErr *GDBConnectionError
			if errors.As(s.parser.DetectErrors(msg), &connErr) {
				connErr.Host, connErr.Port = s.config.OpenOCDHost, s.config.OpenOCDPort
				return Record{}, connErr
			}
			return Record{}, &MIError{Command: cmd, Msg: msg}
		}
		return rec, nil
	}
}

// ReadMemory implements target.Memory.
func (s *Session) ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error) {
	rec, err := s.command(ctx, fmt.Sprintf("-data-read-memory-bytes 0x%x %d", addr, n))
	if err != nil {
		return nil, &target.ReadError{Addr: addr, Size: n, Err: err}
	}
	blocks, _ := rec.Results.List("memory")
	var out []byte
	for _, b := range blocks {
		block, ok := b.(Tuple)
		if !ok {
			continue
		}
		data, err := hex.DecodeString(block.String("contents"))
		if err != nil {
			return nil, &GDBParseError{Script: "-data-read-memory-bytes", Field: "contents", Output: block.String("contents"), Err: err}
		}
		out = append(out, data...)
	}
	if len(out) < n {
		return nil, &target.ReadError{Addr: addr, Size: n, Err: fmt.Errorf("short read: got %d bytes", len(out))}
	}
	return out[:n], nil
}

// WriteMemory implements target.Target.
func (s *Session) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	_, err := s.command(ctx, fmt.Sprintf("-data-write-memory-bytes 0x%x %s", addr, hex.EncodeToString(data)))
	return err
}

// Evaluate implements target.Target.
func (s *Session) Evaluate(ctx context.Context, expr, typ string) (string, error) {
	rec, err := s.command(ctx, "-data-evaluate-expression "+quote(target.TypedExpression(expr, typ)))
	if err != nil {
		return "", err
	}
	return rec.Results.String("value"), nil
}

// ReadRegister implements target.Target.
func (s *Session) ReadRegister(ctx context.Context, name string) (uint32, error) {
	out, err := s.Evaluate(ctx, "$"+name, "")
	if err != nil {
		return 0, &target.ReadError{Register: name, Err: err}
	}
	v, err := parseRegister(out)
	if err != nil {
		return 0, &target.ReadError{Register: name, Err: err}
	}
	return v, nil
}

// parseRegister accepts gdb renderings of 32-bit registers: decimal,
// possibly negative, or a typed pointer like "(void *) 0x20001f80".
func parseRegister(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return uint32(v), nil
	}
	return target.ParseAddress(s)
}

// SetBreakpoint implements target.Target.
func (s *Session) SetBreakpoint(ctx context.Context, location string) (target.HandleID, error) {
	rec, err := s.command(ctx, "-break-insert "+quote(location))
	if err != nil {
		return 0, err
	}
	bkpt, _ := rec.Results.Tuple("bkpt")
	return s.handle("-break-insert", bkpt)
}

// SetWatchpoint implements target.Target.
func (s *Session) SetWatchpoint(ctx context.Context, symbol string) (target.HandleID, error) {
	rec, err := s.command(ctx, "-break-watch "+quote(symbol))
	if err != nil {
		return 0, err
	}
	wpt, _ := rec.Results.Tuple("wpt")
	return s.handle("-break-watch", wpt)
}

func (s *Session) handle(cmd string, t Tuple) (target.HandleID, error) {
	n, err := strconv.Atoi(t.String("number"))
	if err != nil {
		return 0, &GDBParseError{Script: cmd, Field: "number", Output: fmt.Sprint(t), Err: err}
	}
	s.logger.Info("handle created", zap.String("command", cmd), zap.Int("handle", n))
	return target.HandleID(n), nil
}

// Continue implements target.Target.
func (s *Session) Continue(ctx context.Context) error {
	s.pending = nil
	_, err := s.command(ctx, "-exec-continue")
	return err
}

// Finish implements target.Target.
func (s *Session) Finish(ctx context.Context) error {
	s.pending = nil
	_, err := s.command(ctx, "-exec-finish")
	return err
}

// WaitHalt implements target.Target. It blocks until the target stops or
// ctx is cancelled.
func (s *Session) WaitHalt(ctx context.Context) (target.Halt, error) {
	for len(s.pending) == 0 {
		if _, err := s.next(ctx); err != nil {
			return target.Halt{}, err
		}
	}
	h := s.pending[0]
	s.pending = s.pending[1:]
	s.logger.Debug("target halted", zap.Stringer("halt", h))
	return h, nil
}

// Interrupt stops a running target.
func (s *Session) Interrupt(ctx context.Context) error {
	_, err := s.command(ctx, "-exec-interrupt")
	return err
}

// Close asks gdb to exit and waits for it.
func (s *Session) Close() error {
	var err error
	if s.stdin != nil {
		_, _ = fmt.Fprintln(s.stdin, "-gdb-exit")
		err = multierr.Append(err, s.stdin.Close())
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return err
	}

	waited := make(chan error, 1)
	go func() { waited <- s.cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waited:
	case <-time.After(exitGrace):
		// gdb does not read commands while the target runs.
		s.logger.Warn("gdb did not exit, killing it", zap.Duration("grace", exitGrace))
		err = multierr.Append(err, s.cmd.Process.Kill())
		waitErr = <-waited
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		err = multierr.Append(err, waitErr)
	}
	return err
}

func haltFromRecord(rec Record) target.Halt {
	r := rec.Results
	h := target.Halt{Reason: target.HaltReason(r.String("reason"))}
	if n, err := strconv.Atoi(r.String("bkptno")); err == nil {
		h.Handle = target.HandleID(n)
	}
	if wpt, ok := r.Tuple("wpt"); ok {
		if n, err := strconv.Atoi(wpt.String("number")); err == nil {
			h.Handle = target.HandleID(n)
		}
	}
	if fr, ok := r.Tuple("frame"); ok {
		if pc, err := target.ParseAddress(fr.String("addr")); err == nil {
			h.PC = pc
		}
		h.Function = fr.String("func")
	}
	if v, ok := r.Tuple("value"); ok {
		h.OldValue = v.String("old")
		h.NewValue = v.String("new")
	}
	h.ReturnValue = r.String("return-value")
	h.Signal = r.String("signal-name")
	if code := r.String("exit-code"); code != "" {
		// gdb prints the exit code in octal.
		if n, err := strconv.ParseInt(code, 8, 32); err == nil {
			h.ExitCode = int(n)
		}
	}
	return h
}
