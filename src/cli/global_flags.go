package cli

import (
	"github.com/spf13/cobra"

	"snaprot/src/config"
)

// addGlobalFlags adds persistent flags shared by all subcommands.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("dry-run", false, "Show planned actions without touching the filesystem")
	cmd.PersistentFlags().String("config", config.DefaultPath, "Path to the configuration file")
	cmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (repeatable)")
}

// globalOptions reads the persistent flags off the root command.
type globalOptions struct {
	DryRun     bool
	ConfigPath string
	Verbosity  int
}

func getGlobalOptions(cmd *cobra.Command) globalOptions {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	cfg, _ := cmd.Root().PersistentFlags().GetString("config")
	verb, _ := cmd.Root().PersistentFlags().GetCount("verbose")
	return globalOptions{DryRun: dry, ConfigPath: cfg, Verbosity: verb}
}
