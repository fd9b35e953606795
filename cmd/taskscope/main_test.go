package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/taskscope/internal/config"
	"github.com/muurk/taskscope/internal/inspect"
	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/target"
)

const symbolDump = `
build/f4os.elf:     file format elf32-littlearm

SYMBOL TABLE:
080001a0 g     F .text	00000004 idle
08000190 g     F .text	00000010 main
20000004 g     O .bss	00000004 curr_task
080001b0 l     F .text	00000020 pendsv_handler
`

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "taskscope-cmd-")
	if err != nil {
		panic(err)
	}
	os.Setenv(config.PathEnvVar, filepath.Join(dir, "config.yaml"))
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSymbolsAndResolve(t *testing.T) {
	dump := writeFile(t, "f4os.sym", symbolDump)

	out, err := execute(t, "symbols", "--dump", dump)
	require.NoError(t, err)
	assert.Equal(t, "0x08000190 main\n0x080001a0 idle\n0x080001b0 pendsv_handler\n", out)

	table := filepath.Join(t.TempDir(), "symbols.yaml")
	_, err = execute(t, "symbols", "--dump", dump, "--format", "yaml", "--output", table)
	require.NoError(t, err)

	out, err = execute(t, "resolve", "--symbols", table, "0x08000194", "0x080001b4", "0x08000100")
	require.NoError(t, err)
	assert.Equal(t, "0x08000194\tmain\n0x080001b4\tpendsv_handler\n0x08000100\t??\n", out)
}

func TestSymbolsRejectsUnknownFormat(t *testing.T) {
	dump := writeFile(t, "f4os.sym", symbolDump)
	_, err := execute(t, "symbols", "--dump", dump, "--format", "json")
	assert.Error(t, err)
}

func TestResolveNeedsSymbols(t *testing.T) {
	_, err := execute(t, "resolve", "0x08000194")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no symbols")
}

func writeImage(t *testing.T, img *target.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ram.bin")
	require.NoError(t, os.WriteFile(path, img.Data, 0o644))
	return path
}

func TestPrintListFromImage(t *testing.T) {
	img := target.NewImage(0x20000000, 0x1000)
	img.PutWord(0x20000100, 0x20000200)
	img.PutWord(0x20000200, 0x20000300)
	img.PutWord(0x20000300, 0x20000100)
	path := writeImage(t, img)

	out, err := execute(t, "print-list", "--image", path, "0x20000100")
	require.NoError(t, err)
	assert.Equal(t, "0x20000100 -> 0x20000200 -> 0x20000300 -> 0x20000100\n", out)

	out, err = execute(t, "print-list", "--image", path, "--null-terminated", "0x20000200")
	require.NoError(t, err)
	assert.Contains(t, out, "(Loop detected. Malformed list?)")

	_, err = execute(t, "print-list", "--image", path)
	assert.ErrorContains(t, err, "address is required")

	_, err = execute(t, "print-list", "--image", path, "curr_task")
	assert.ErrorContains(t, err, "live target")
}

func TestPrintListTaskControlRing(t *testing.T) {
	const (
		curr  = 0x20000004
		first = 0x20000100
		other = 0x20000800
		link  = 32 // task_ctrl.runnable_task_list
	)
	img := target.NewImage(0x20000000, 0x1000)
	img.PutWord(curr, first)
	img.PutWord(first, other) // stack_limit
	img.PutWord(first+link, other+link)
	img.PutWord(other+link, first+link)
	path := writeImage(t, img)

	p, err := profile.Lookup("f4os")
	require.NoError(t, err)
	head, err := currentRingNode(context.Background(), img, p.Task, curr)
	require.NoError(t, err)
	assert.Equal(t, uint32(first+link), head)

	out, err := execute(t, "print-list", "--image", path, "0x20000120")
	require.NoError(t, err)
	assert.Equal(t, "0x20000120 -> 0x20000820 -> 0x20000120\n", out)

	img.PutWord(curr, 0)
	_, err = currentRingNode(context.Background(), img, p.Task, curr)
	assert.ErrorContains(t, err, "curr_task == NULL")
}

func TestPrintBuddyFromImage(t *testing.T) {
	img := target.NewImage(0x20000000, 0x2000)
	const buddy, buckets, block = 0x20000040, 0x20000080, 0x20001000
	img.PutByte(buddy, 5)   // max order
	img.PutByte(buddy+1, 1) // min order
	img.PutWord(buddy+16, buckets)
	img.PutWord(buckets+3*4, block)
	img.PutByte(block, 0xef) // magic 0xbeef
	img.PutByte(block+1, 0xbe)
	img.PutByte(block+2, 3) // order
	path := writeImage(t, img)

	out, err := execute(t, "print-buddy", "--image", path, "--orders", "0x20000040")
	require.NoError(t, err)
	assert.Contains(t, out, "0x20000040 @ 0x20000040 (orders 1-5)")
	assert.Contains(t, out, "Order 1: NULL")
	assert.Contains(t, out, "Order 3: 0x20001000 (3) -> NULL")

	_, err = execute(t, "print-buddy", "--image", path)
	assert.ErrorContains(t, err, "addresses are required")
}

func TestProfiles(t *testing.T) {
	out, err := execute(t, "profiles")
	require.NoError(t, err)
	assert.Contains(t, out, "* f4os - ")
	assert.Contains(t, out, "f4os-legacy")

	out, err = execute(t, "profiles", "f4os-legacy")
	require.NoError(t, err)
	assert.Contains(t, out, "k_curr_task")

	_, err = execute(t, "profiles", "nope")
	var unknown *profile.UnknownProfileError
	assert.ErrorAs(t, err, &unknown)
}

func TestTargetPresets(t *testing.T) {
	out, err := execute(t, "target", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No targets configured")

	_, err = execute(t, "target", "add", "bench", "--openocd-host", "10.0.0.7", "--profile", "f4os-legacy", "--default")
	require.NoError(t, err)

	out, err = execute(t, "target", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "bench")
	assert.Contains(t, out, "10.0.0.7:3333")
	assert.Contains(t, out, "f4os-legacy")

	resetFlags(rootCmd)
	s, err := loadSettings(rootCmd.PersistentFlags())
	require.NoError(t, err)
	assert.Equal(t, "bench", s.Target)
	assert.Equal(t, "10.0.0.7", s.OpenOCDHost)
	assert.Equal(t, "f4os-legacy", s.Profile)

	_, err = execute(t, "target", "add", "bad", "--profile", "nope")
	assert.Error(t, err)

	_, err = execute(t, "target", "use", "missing")
	var unknown *config.UnknownTargetError
	assert.ErrorAs(t, err, &unknown)

	_, err = execute(t, "target", "remove", "bench")
	require.NoError(t, err)
	out, err = execute(t, "target", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No targets configured")
}

func TestApplyFlags(t *testing.T) {
	resetFlags(rootCmd)
	fs := rootCmd.PersistentFlags()
	base := config.Settings{OpenOCDHost: "localhost", OpenOCDPort: 3333, ELF: "preset.elf"}

	s := applyFlags(base, fs)
	assert.Equal(t, "preset.elf", s.ELF)
	assert.Equal(t, profile.DefaultName, s.Profile)

	require.NoError(t, fs.Set("openocd-port", "4444"))
	require.NoError(t, fs.Set("elf", "flag.elf"))
	s = applyFlags(base, fs)
	assert.Equal(t, 4444, s.OpenOCDPort)
	assert.Equal(t, "flag.elf", s.ELF)
	assert.Equal(t, "localhost", s.OpenOCDHost)
	resetFlags(rootCmd)
}

func TestDumpRange(t *testing.T) {
	p, err := profile.Lookup("f4os")
	require.NoError(t, err)

	memAddress, memSize = "", ""
	start, size, err := dumpRange(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20000000), start)
	assert.Equal(t, uint32(0x20000), size)

	memAddress, memSize = "0x10000000", "4096"
	start, size, err = dumpRange(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10000000), start)
	assert.Equal(t, uint32(4096), size)

	memSize = "lots"
	_, _, err = dumpRange(p)
	assert.Error(t, err)
	memAddress, memSize = "", ""
}

func TestSummaryDetails(t *testing.T) {
	d := summaryDetails(inspect.Summary{
		Halts:   3,
		PerRule: map[string]int{"supervisor_call": 1, "context_switch": 2},
		Last:    target.Halt{PC: 0x08000410, Function: "pendsv_handler"},
	})
	assert.Equal(t, "3", d[0].Value)
	assert.Equal(t, "context_switch", d[1].Key)
	assert.Equal(t, "supervisor_call", d[2].Key)
	stopped, ok := d.Get("Stopped at")
	assert.True(t, ok)
	assert.Equal(t, "0x08000410 (pendsv_handler)", stopped)

	d = summaryDetails(inspect.Summary{Exited: true})
	v, _ := d.Get("Target")
	assert.Equal(t, "program exited", v)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "taskscope ")
	assert.Contains(t, out, "commit:")
}
