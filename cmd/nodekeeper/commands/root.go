package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
	skipDeps   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodekeeper",
		Short: "nodekeeper - node package version and activation manager",
		Long: `nodekeeper manages the installed node packages of a host application:
stable registry releases (CNR) and nightly git checkouts, with explicit
enable/disable state and non-destructive switching between versions.

Disabled copies are parked beside the packages directory and can be
re-activated at any time; nightly snapshots accumulate instead of being
overwritten.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "nodekeeper.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&skipDeps, "skip-deps", false, "skip the dependency-installation step")

	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newEnableCommand())
	rootCmd.AddCommand(newDisableCommand())
	rootCmd.AddCommand(newUninstallCommand())
	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
