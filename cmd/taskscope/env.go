package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/taskscope/internal/config"
	"github.com/muurk/taskscope/internal/gdb"
	"github.com/muurk/taskscope/internal/logging"
	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/symtab"
	"github.com/muurk/taskscope/internal/target"
)

// Persistent flags
var (
	targetName   string
	gdbPath      string
	objdumpPath  string
	openocdHost  string
	openocdPort  int
	elfPath      string
	profileName  string
	symbolsFile  string
	gdbTimeout   string
	gdbVerbose   bool
	useTUI       bool
	resetHalt    bool
	demangle     bool
	logLevel     string
	imagePath    string
	imageBaseArg string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&targetName, "target", "t", "", "Target preset from the config file")
	pf.StringVar(&gdbPath, "gdb-path", config.DefaultGDBPath, "Path to arm-none-eabi-gdb binary")
	pf.StringVar(&objdumpPath, "objdump-path", config.DefaultObjdumpPath, "Path to arm-none-eabi-objdump binary")
	pf.StringVar(&openocdHost, "openocd-host", config.DefaultOpenOCDHost, "OpenOCD hostname")
	pf.IntVar(&openocdPort, "openocd-port", config.DefaultOpenOCDPort, "OpenOCD gdb port")
	pf.StringVar(&elfPath, "elf", "", "Kernel ELF running on the target")
	pf.StringVarP(&profileName, "profile", "p", "", "Kernel layout profile (see 'taskscope profiles')")
	pf.StringVar(&symbolsFile, "symbols", "", "Symbol table written by 'taskscope symbols --format yaml'")
	pf.StringVar(&gdbTimeout, "timeout", "5m", "GDB batch operation timeout (e.g., 30s, 5m)")
	pf.BoolVarP(&gdbVerbose, "verbose", "v", false, "Show detailed GDB output")
	pf.BoolVar(&useTUI, "tui", false, "Show live inspections in a terminal view")
	pf.BoolVar(&resetHalt, "reset-halt", false, "Reset and halt the target after connecting")
	pf.BoolVar(&demangle, "demangle", false, "Demangle C++ symbol names")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides TASKSCOPE_LOG_LEVEL")
}

// addImageFlags registers the offline memory image flags on cmd.
func addImageFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&imagePath, "image", "", "Walk a RAM dump from 'taskscope dump-memory' instead of the live target")
	cmd.Flags().StringVar(&imageBaseArg, "image-base", "", "Address the RAM dump starts at (default: profile RAM base)")
}

// loadSettings merges the config file, the selected preset and any flags
// given on the command line. Flags win.
func loadSettings(fs *pflag.FlagSet) (config.Settings, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return config.Settings{}, err
	}
	s, err := reg.Resolve(targetName)
	if err != nil {
		return s, err
	}
	if s.Target != "" {
		reg.TouchTarget(s.Target)
		if err := reg.Save(); err != nil {
			logging.Warn("failed to record target use", zap.String("target", s.Target), zap.Error(err))
		}
	}
	return applyFlags(s, fs), nil
}

func applyFlags(s config.Settings, fs *pflag.FlagSet) config.Settings {
	if fs.Changed("gdb-path") {
		s.GDBPath = gdbPath
	}
	if fs.Changed("objdump-path") {
		s.ObjdumpPath = objdumpPath
	}
	if fs.Changed("openocd-host") {
		s.OpenOCDHost = openocdHost
	}
	if fs.Changed("openocd-port") {
		s.OpenOCDPort = openocdPort
	}
	if fs.Changed("elf") {
		s.ELF = elfPath
	}
	if fs.Changed("profile") {
		s.Profile = profileName
	}
	if fs.Changed("demangle") {
		s.Demangle = demangle
	}
	if s.Profile == "" {
		s.Profile = profile.DefaultName
	}
	return s
}

func gdbConfig(s config.Settings) (gdb.Config, error) {
	timeout, err := time.ParseDuration(gdbTimeout)
	if err != nil {
		return gdb.Config{}, fmt.Errorf("invalid timeout value: %w", err)
	}
	cfg := gdb.DefaultConfig()
	cfg.GDBPath = s.GDBPath
	cfg.OpenOCDHost = s.OpenOCDHost
	cfg.OpenOCDPort = s.OpenOCDPort
	cfg.Timeout = timeout
	return cfg, nil
}

func remote(s config.Settings) string {
	return fmt.Sprintf("%s:%d", s.OpenOCDHost, s.OpenOCDPort)
}

// loadTable builds the function symbol table from, in order of preference,
// dumpFile (objdump -t output, "-" for stdin), --symbols, or --elf.
func loadTable(ctx context.Context, s config.Settings, dumpFile string) (*symtab.Table, error) {
	switch {
	case dumpFile == "-":
		return symtab.Parse(os.Stdin)
	case dumpFile != "":
		f, err := os.Open(dumpFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open symbol dump: %w", err)
		}
		defer f.Close()
		return symtab.Parse(f)
	case symbolsFile != "":
		f, err := os.Open(symbolsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open symbol table: %w", err)
		}
		defer f.Close()
		return symtab.LoadYAML(f)
	case s.ELF != "":
		return symtab.NewObjdump(s.ObjdumpPath, logging.GetLogger()).Load(ctx, s.ELF)
	}
	return nil, fmt.Errorf("no symbols: pass --elf, --symbols or a symbol dump")
}

func loadResolver(ctx context.Context, s config.Settings) (*symtab.Resolver, error) {
	table, err := loadTable(ctx, s, "")
	if err != nil {
		return nil, err
	}
	return symtab.NewResolver(table, symtab.WithDemangling(s.Demangle))
}

// live is everything a command needs to inspect the running target.
type live struct {
	settings config.Settings
	profile  *profile.Profile
	resolver *symtab.Resolver
	session  *gdb.Session
}

// openLive loads settings, profile and symbols, then attaches gdb. The
// resolver is only loaded when withSymbols is set.
func openLive(ctx context.Context, fs *pflag.FlagSet, withSymbols bool) (*live, error) {
	s, err := loadSettings(fs)
	if err != nil {
		return nil, err
	}
	p, err := profile.Lookup(s.Profile)
	if err != nil {
		return nil, err
	}
	l := &live{settings: s, profile: p}

	if withSymbols {
		if l.resolver, err = loadResolver(ctx, s); err != nil {
			return nil, err
		}
	}

	cfg, err := gdbConfig(s)
	if err != nil {
		return nil, err
	}
	l.session, err = gdb.Open(ctx, cfg, gdb.SessionOptions{ELF: s.ELF, ResetHalt: resetHalt}, logging.GetLogger())
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *live) Close() error {
	if l == nil || l.session == nil {
		return nil
	}
	return l.session.Close()
}

// memorySource is target memory for the walking commands: the live target,
// or a RAM image when --image is given.
type memorySource struct {
	settings config.Settings
	profile  *profile.Profile
	mem      target.Memory
	session  *gdb.Session
}

func openMemory(ctx context.Context, fs *pflag.FlagSet) (*memorySource, error) {
	if imagePath == "" {
		l, err := openLive(ctx, fs, false)
		if err != nil {
			return nil, err
		}
		return &memorySource{settings: l.settings, profile: l.profile, mem: l.session, session: l.session}, nil
	}

	s, err := loadSettings(fs)
	if err != nil {
		return nil, err
	}
	p, err := profile.Lookup(s.Profile)
	if err != nil {
		return nil, err
	}
	base := p.Memory.RAMBase
	if imageBaseArg != "" {
		if base, err = parseNumber(imageBaseArg); err != nil {
			return nil, fmt.Errorf("invalid --image-base: %w", err)
		}
	}
	img, err := target.LoadImage(imagePath, base)
	if err != nil {
		return nil, err
	}
	logging.Info("loaded memory image",
		zap.String("path", imagePath),
		zap.Uint32("base", base),
		zap.Int("size", len(img.Data)),
	)
	return &memorySource{settings: s, profile: p, mem: img}, nil
}

// address resolves a command argument to an address. Symbols need the live
// target.
func (m *memorySource) address(ctx context.Context, arg string) (uint32, error) {
	if v, err := parseNumber(arg); err == nil {
		return v, nil
	}
	if m.session == nil {
		return 0, fmt.Errorf("%q is not an address; symbols can only be used on a live target", arg)
	}
	return target.AddressOf(ctx, m.session, arg)
}

// value evaluates expr on the target and returns it as an address. Plain
// numbers are taken as they are.
func (m *memorySource) value(ctx context.Context, expr string) (uint32, error) {
	if v, err := parseNumber(expr); err == nil {
		return v, nil
	}
	if m.session == nil {
		return 0, fmt.Errorf("%q is not an address; expressions can only be used on a live target", expr)
	}
	out, err := m.session.Evaluate(ctx, expr, target.PointerType)
	if err != nil {
		return 0, err
	}
	return target.ParseAddress(out)
}

func (m *memorySource) Close() error {
	if m.session == nil {
		return nil
	}
	return m.session.Close()
}

// parseNumber parses a decimal or 0x-prefixed 32-bit number.
func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// closeInto closes c and appends its error to *err.
func closeInto(err *error, c interface{ Close() error }) {
	*err = multierr.Append(*err, c.Close())
}
