package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/config"
	"github.com/muurk/taskscope/internal/gdb"
	"github.com/muurk/taskscope/internal/gdb/scripts"
	"github.com/muurk/taskscope/internal/logging"
	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/ui"
)

var probeTarget bool

func init() {
	rootCmd.AddCommand(verifySetupCmd)
	verifySetupCmd.Flags().BoolVar(&probeTarget, "probe", false, "Also halt the target and read its core registers")
}

var verifySetupCmd = &cobra.Command{
	Use:   "verify-setup",
	Short: "Verify the toolchain and OpenOCD connection",
	Long: `Check that arm-none-eabi-gdb and arm-none-eabi-objdump run and that
OpenOCD accepts connections.

With --probe, also halt the target through OpenOCD and read pc, psp and
msp. When --elf is set the probe also locates the current-task global of
the selected profile. The target is resumed afterwards.`,
	Example: `  taskscope verify-setup
  taskscope verify-setup --probe --elf build/f4os.elf`,
	RunE: runVerifySetup,
}

func runVerifySetup(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	printer := ui.NewPrinter(cmd.OutOrStdout())

	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return err
	}

	printer.PrintHeader("Setup Verification", cmd.CommandPath(), ui.Details{}.
		Add("GDB Path", s.GDBPath).
		Add("Objdump Path", s.ObjdumpPath).
		Add("OpenOCD", remote(s)))

	result := gdb.ValidatePrerequisites(ctx, gdb.Toolchain{GDBPath: s.GDBPath, ObjdumpPath: s.ObjdumpPath}, s.OpenOCDHost, s.OpenOCDPort)
	if gdbVerbose {
		printer.Println(gdb.FormatPrerequisiteReport(result))
	}

	if err := result.Err(); err != nil {
		printer.PrintFailure("Setup verification failed", err, []string{
			"Install the ARM toolchain: apt install gcc-arm-none-eabi gdb-multiarch (Linux)",
			"Or: brew install --cask gcc-arm-embedded (macOS)",
			"Point taskscope at the binaries with --gdb-path and --objdump-path",
		})
		return fmt.Errorf("setup verification failed")
	}

	details := ui.Details{}
	openocdUp := true
	for _, check := range result.Checks {
		status := "ok"
		if check.Version != "" {
			status = check.Version
		}
		if !check.Available {
			status = check.Message
			openocdUp = false
		}
		details = details.Add(check.Name, status)
	}

	if !openocdUp {
		printer.PrintWarning("Toolchain ready, OpenOCD not reachable", details.Add("Next step",
			fmt.Sprintf("Start OpenOCD so it listens on %s", remote(s))))
		return nil
	}
	printer.PrintSuccess("Setup verification complete", details)

	if !probeTarget {
		return nil
	}
	return runProbe(cmd, s)
}

func runProbe(cmd *cobra.Command, s config.Settings) error {
	p, err := profile.Lookup(s.Profile)
	if err != nil {
		return err
	}
	cfg, err := gdbConfig(s)
	if err != nil {
		return err
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Target Probe",
		Command: cmd.CommandPath() + " --probe",
		Params: ui.Details{}.
			Add("Target", remote(s)).
			Add("Profile", p.Name),
		Verbose: gdbVerbose,
		Output:  cmd.OutOrStdout(),
	})

	executor := gdb.NewExecutor(cfg, logging.GetLogger())
	var symbols []string
	if s.ELF != "" {
		symbols = []string{p.Task.Current}
	}
	script := scripts.NewProbeTargetScript(symbols, true).WithELF(s.ELF)
	_, err = runner.Run(cmd.Context(), executor, script, func(result *scripts.Result) (ui.Details, error) {
		details := ui.Details{}
		for _, reg := range []string{"pc", "psp", "msp", "xpsr"} {
			if v, ok := result.GetDataUint32(reg); ok {
				details = details.Add(reg, fmt.Sprintf("0x%08x", v))
			}
		}
		if v, ok := result.GetDataUint32("&" + p.Task.Current); ok {
			details = details.Add("&"+p.Task.Current, fmt.Sprintf("0x%08x", v))
		}
		return details, nil
	})
	return err
}
