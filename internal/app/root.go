package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/fsauditd/internal/config"
	"github.com/blackwell-systems/fsauditd/internal/logging"
)

var (
	configPath string

	// RootCmd is the root command for fsauditd
	RootCmd = &cobra.Command{
		Use:   "fsauditd",
		Short: "Audit logger for filesystem and user account changes",
		Long: `fsauditd watches configured folders and files and records every change
as an entry in the audit table. Changes to the security trace file are read as
user account additions and deletions instead.

Quick Start:
  1. Describe the folders to watch in targets.xml
  2. fsauditd targets            # check how each target resolves
  3. fsauditd run                # or: fsauditd service install && fsauditd service start
  4. fsauditd entries            # inspect what was recorded

Settings are read from defaults, then the YAML file given by --config or
$FSAUDITD_CONFIG, then FSAUDITD_* environment variables
(e.g. FSAUDITD_DATABASE__DSN).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default: $FSAUDITD_CONFIG or ~/.config/fsauditd/config.yaml)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(serviceCmd)
	RootCmd.AddCommand(entriesCmd)
	RootCmd.AddCommand(targetsCmd)
	RootCmd.AddCommand(statusCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadSettings reads settings and configures the global logger from them.
func loadSettings() (*config.Settings, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	logging.Init(s.Logging())
	return s, nil
}
