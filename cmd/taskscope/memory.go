package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/gdb"
	"github.com/muurk/taskscope/internal/gdb/scripts"
	"github.com/muurk/taskscope/internal/logging"
	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/ui"
)

var (
	memOutput   string
	memAddress  string
	memSize     string
	memNoResume bool
)

func init() {
	rootCmd.AddCommand(dumpMemoryCmd)

	dumpMemoryCmd.Flags().StringVarP(&memOutput, "output", "o", "taskscope-ram.bin", "Output file")
	dumpMemoryCmd.Flags().StringVar(&memAddress, "address", "", "Start address (default: profile RAM base)")
	dumpMemoryCmd.Flags().StringVar(&memSize, "size", "", "Bytes to dump (default: profile RAM size)")
	dumpMemoryCmd.Flags().BoolVar(&memNoResume, "no-resume", false, "Leave the target halted afterwards")
}

var dumpMemoryCmd = &cobra.Command{
	Use:   "dump-memory",
	Short: "Dump target RAM to a file",
	Long: `Halt the target and write its RAM to a file with a gdb batch script. The
dump can be walked later with print-list and print-buddy --image.`,
	Example: `  taskscope dump-memory -o ram.bin
  taskscope print-buddy --image ram.bin 0x20001f40`,
	RunE: runDumpMemory,
}

func runDumpMemory(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return err
	}
	p, err := profile.Lookup(s.Profile)
	if err != nil {
		return err
	}
	start, size, err := dumpRange(p)
	if err != nil {
		return err
	}
	cfg, err := gdbConfig(s)
	if err != nil {
		return err
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Memory Dump",
		Command: cmd.CommandPath(),
		Params: ui.Details{}.
			Add("Target", remote(s)).
			Add("Address", fmt.Sprintf("0x%08x - 0x%08x", start, uint64(start)+uint64(size))).
			Add("Size", fmt.Sprintf("%d KB", size/1024)).
			Add("Output", memOutput),
		Wait:     "Dumping target memory",
		WaitHint: "up to 2 minutes",
		Verbose:  gdbVerbose,
		Output:   cmd.OutOrStdout(),
	})

	executor := gdb.NewExecutor(cfg, logging.GetLogger())
	script := scripts.NewDumpMemoryScript(start, int(size), memOutput, !memNoResume)
	_, err = runner.Run(cmd.Context(), executor, script, func(result *scripts.Result) (ui.Details, error) {
		info, err := os.Stat(memOutput)
		if err != nil {
			return nil, fmt.Errorf("gdb reported success but the dump is missing: %w", err)
		}
		if info.Size() != int64(size) {
			return nil, fmt.Errorf("memory dump incomplete: expected %d bytes, got %d bytes", size, info.Size())
		}
		return ui.Details{}.
			Add("Output File", memOutput).
			Add("File Size", fmt.Sprintf("%d bytes (verified)", info.Size())).
			Add("Image Base", fmt.Sprintf("0x%08x", start)), nil
	})
	return err
}

func dumpRange(p *profile.Profile) (start, size uint32, err error) {
	start, size = p.Memory.RAMBase, p.Memory.RAMSize
	if memAddress != "" {
		if start, err = parseNumber(memAddress); err != nil {
			return 0, 0, fmt.Errorf("invalid --address: %w", err)
		}
	}
	if memSize != "" {
		if size, err = parseNumber(memSize); err != nil {
			return 0, 0, fmt.Errorf("invalid --size: %w", err)
		}
	}
	if size == 0 {
		return 0, 0, fmt.Errorf("profile %s has no RAM region; pass --address and --size", p.Name)
	}
	return start, size, nil
}
