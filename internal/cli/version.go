package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/pkg/version"
)

func newVersionCmd(ver string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Overrides the root hook: printing the version needs no config.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cowtracker %s (commit %s, built %s)\n",
				ver, version.GetGitCommit(), version.GetBuildDate())
			return err
		},
	}
}
