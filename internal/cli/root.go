package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the helpdeskctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "helpdeskctl",
		Short: "Operate the helpdesk ticket engine",
		Long: `Operational commands for the helpdesk ticket engine.

Configuration is read from the environment (and .env when present),
the same way the API server reads it.`,
		SilenceUsage: true,
	}

	root.AddCommand(newMigrateCommand())
	root.AddCommand(newSweepCommand())
	root.AddCommand(newSLACommand())
	root.AddCommand(newTokenCommand())
	root.AddCommand(newTechnicianCommand())
	return root
}
