// Package cmd wires the pilot CLI: run, validate, and history subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for pilot
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pilot",
		Short: "Orchestrated UI scenario runner for desktop IDEs",
		Long: `Pilot drives a desktop IDE through scripted end-to-end scenarios.

It parses scenario files (YAML or Markdown), launches the IDE sessions the
scenario declares, and executes milestones in dependency order with retries,
wait conditions, health checking, and checkpoint-based resumption.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
