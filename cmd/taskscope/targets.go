package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/config"
	"github.com/muurk/taskscope/internal/profile"
)

var (
	targetDescription string
	targetMakeDefault bool
)

func init() {
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(targetCmd)

	targetCmd.AddCommand(targetListCmd, targetAddCmd, targetRemoveCmd, targetUseCmd, targetInitCmd)
	targetAddCmd.Flags().StringVar(&targetDescription, "description", "", "Free-form description")
	targetAddCmd.Flags().BoolVar(&targetMakeDefault, "default", false, "Use this target when --target is not given")
}

var profilesCmd = &cobra.Command{
	Use:   "profiles [NAME]",
	Short: "List kernel layout profiles",
	Long: `List the kernel layouts taskscope knows, or show the structure offsets
and code locations of one of them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		catalog, err := profile.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			p, err := catalog.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, p)
			fmt.Fprintln(out)
			fmt.Fprint(out, p.FormatLayout())
			if p.Notes != "" {
				fmt.Fprintf(out, "\n%s\n", p.Notes)
			}
			return nil
		}

		for _, name := range catalog.Names() {
			p, err := catalog.Get(name)
			if err != nil {
				return err
			}
			marker := " "
			if name == profile.DefaultName {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, p)
		}
		return nil
	},
}

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage target presets",
	Long: `Target presets name an OpenOCD endpoint together with the ELF and
profile of the kernel running behind it. They live in the config file
(see TASKSCOPE_CONFIG) and are selected with --target.`,
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List target presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		names := reg.TargetNames()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No targets configured. Add one with 'taskscope target add'.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tNAME\tOPENOCD\tPROFILE\tELF\tLAST USED")
		for _, name := range names {
			t := reg.GetTarget(name)
			marker := ""
			if reg.Defaults != nil && reg.Defaults.Target == name {
				marker = "*"
			}
			host, port := t.OpenOCDHost, t.OpenOCDPort
			if host == "" {
				host = config.DefaultOpenOCDHost
			}
			if port == 0 {
				port = config.DefaultOpenOCDPort
			}
			fmt.Fprintf(tw, "%s\t%s\t%s:%d\t%s\t%s\t%s\n", marker, name, host, port,
				orNone(t.Profile), orNone(t.ELF), lastUsed(t.LastUsed))
		}
		return tw.Flush()
	},
}

func lastUsed(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

var targetAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add or update a target preset",
	Long: `Add a target preset, or update an existing one, from the connection
flags given on the command line.`,
	Example: `  taskscope target add bench --openocd-host 10.0.0.7 --elf build/f4os.elf --profile f4os --default`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("profile") {
			if _, err := profile.Lookup(profileName); err != nil {
				return err
			}
		}

		t := reg.EnsureTarget(args[0])
		fs := cmd.Flags()
		if fs.Changed("description") {
			t.Description = targetDescription
		}
		if fs.Changed("openocd-host") {
			t.OpenOCDHost = openocdHost
		}
		if fs.Changed("openocd-port") {
			t.OpenOCDPort = openocdPort
		}
		if fs.Changed("elf") {
			t.ELF = elfPath
		}
		if fs.Changed("profile") {
			t.Profile = profileName
		}
		if targetMakeDefault {
			reg.Defaults.Target = args[0]
		}

		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved target %q\n", args[0])
		return nil
	},
}

var targetRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a target preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if !reg.RemoveTarget(args[0]) {
			return &config.UnknownTargetError{Name: args[0], Known: reg.TargetNames()}
		}
		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed target %q\n", args[0])
		return nil
	},
}

var targetUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Make a target preset the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if reg.GetTarget(args[0]) == nil {
			return &config.UnknownTargetError{Name: args[0], Known: reg.TargetNames()}
		}
		reg.Defaults.Target = args[0]
		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Default target is now %q\n", args[0])
		return nil
	},
}

var targetInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := config.CreateDefaultConfig(); err != nil {
			return err
		}
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}
