package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/symtab"
	"github.com/muurk/taskscope/internal/target"
)

var (
	symbolsDump   string
	symbolsFormat string
	symbolsOutput string
)

func init() {
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(resolveCmd)

	symbolsCmd.Flags().StringVar(&symbolsDump, "dump", "", "objdump -t output to read ('-' for stdin)")
	symbolsCmd.Flags().StringVarP(&symbolsFormat, "format", "f", string(symtab.FormatText), "Output format: text, c or yaml")
	symbolsCmd.Flags().StringVarP(&symbolsOutput, "output", "o", "", "Write the table to a file instead of stdout")

	resolveCmd.Flags().StringVar(&symbolsDump, "dump", "", "objdump -t output to read ('-' for stdin)")
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Build a function symbol table",
	Long: `Build the table of function symbols from objdump -t output, sorted by
address. The table is read from --dump, or produced by running objdump on
--elf.

The c format is a C source file the kernel can link in to resolve its own
addresses; the yaml format can be passed back to taskscope with --symbols.`,
	Example: `  taskscope symbols --elf build/f4os.elf --format c -o symbols.c
  arm-none-eabi-objdump -t f4os.elf | taskscope symbols --dump - --format yaml`,
	RunE: runSymbols,
}

func runSymbols(cmd *cobra.Command, args []string) (err error) {
	cmd.SilenceUsage = true

	format, err := symtab.ParseFormat(symbolsFormat)
	if err != nil {
		return err
	}
	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return err
	}
	if symbolsDump == "" && s.ELF == "" && symbolsFile == "" {
		symbolsDump = "-"
	}
	table, err := loadTable(cmd.Context(), s, symbolsDump)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if symbolsOutput != "" {
		f, createErr := os.Create(symbolsOutput)
		if createErr != nil {
			return fmt.Errorf("failed to create output file: %w", createErr)
		}
		defer closeInto(&err, f)
		w = f
	}
	return table.Write(w, format)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve ADDRESS...",
	Short: "Resolve addresses to function names",
	Long: `Resolve each address to the function containing it: the symbol with the
greatest address not above it. Addresses below every symbol print as ??.`,
	Example: `  taskscope resolve --elf build/f4os.elf 0x08000a1c 0x08001690`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return err
	}
	table, err := loadTable(cmd.Context(), s, symbolsDump)
	if err != nil {
		return err
	}
	resolver, err := symtab.NewResolver(table, symtab.WithDemangling(s.Demangle))
	if err != nil {
		return err
	}

	for _, arg := range args {
		addr, err := target.ParseAddress(arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "0x%08x\t%s\n", addr, resolver.Resolve(addr))
	}
	return nil
}
