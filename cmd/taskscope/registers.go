package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/frame"
	"github.com/muurk/taskscope/internal/target"
	"github.com/muurk/taskscope/internal/ui"
	"github.com/muurk/taskscope/internal/walk"
)

var (
	mallocCount int
	mallocSize  int
	assumeYes   bool
)

func init() {
	rootCmd.AddCommand(fpuRegsCmd)
	rootCmd.AddCommand(mallocStressCmd)

	mallocStressCmd.Flags().IntVarP(&mallocCount, "count", "n", 10, "Number of allocations")
	mallocStressCmd.Flags().IntVar(&mallocSize, "size", 10000, "Bytes per allocation")
	mallocStressCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

var fpuRegsCmd = &cobra.Command{
	Use:   "fpu-regs [REGISTER...]",
	Short: "Read floating-point registers",
	Long: `Read FPU registers of the halted core through the debug core register
selector and data registers (DCRSR/DCRDR). REGISTER is s0 to s31 or fpscr;
without arguments every register is read.`,
	Example: `  taskscope fpu-regs
  taskscope fpu-regs s0 s1 fpscr`,
	RunE: runFPURegs,
}

func runFPURegs(cmd *cobra.Command, args []string) (err error) {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	l, err := openLive(ctx, cmd.Flags(), false)
	if err != nil {
		return err
	}
	defer closeInto(&err, l)

	arch, err := frame.LookupArch(l.profile.Arch)
	if err != nil {
		return err
	}
	fpu := frame.NewFPU(arch, l.session)

	names := args
	if len(names) == 0 {
		names = fpu.Names()
	}
	for _, name := range names {
		reg, err := fpu.Read(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reg)
	}
	return nil
}

var mallocStressCmd = &cobra.Command{
	Use:   "malloc-stress",
	Short: "Call malloc on the target and watch the allocator",
	Long: `Call malloc(SIZE) inside the halted target COUNT times and print the
first allocator of the profile after every call. Stops early when malloc
returns NULL.

This changes the target's heap. Reset the board afterwards.`,
	Example: `  taskscope malloc-stress --count 5 --size 4096`,
	RunE:    runMallocStress,
}

func runMallocStress(cmd *cobra.Command, args []string) (err error) {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if mallocSize <= 0 || mallocCount <= 0 {
		return fmt.Errorf("--count and --size must be positive")
	}
	if !assumeYes && !ui.ConfirmTargetCalls(os.Stdin, out, "malloc()") {
		return nil
	}

	l, err := openLive(ctx, cmd.Flags(), false)
	if err != nil {
		return err
	}
	defer closeInto(&err, l)

	name, err := firstAllocator(l.profile)
	if err != nil {
		return err
	}
	src := &memorySource{settings: l.settings, profile: l.profile, mem: l.session, session: l.session}
	w := walk.New(target.NewReader(l.session, nil))

	for i := 0; i < mallocCount; i++ {
		res, err := l.session.Evaluate(ctx, fmt.Sprintf("malloc(%d)", mallocSize), target.PointerType)
		if err != nil {
			return err
		}
		addr, err := target.ParseAddress(res)
		if err != nil {
			return fmt.Errorf("malloc returned %q: %w", res, err)
		}
		fmt.Fprintf(out, "malloc(%d) = 0x%08x\n", mallocSize, addr)
		if addr == 0 {
			fmt.Fprintln(out, "Allocation failed.")
			return nil
		}
		if err := printBuddy(ctx, out, w, src, name); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}
