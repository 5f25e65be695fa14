package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the cowtracker CLI.
func NewRootCmd(ver string) *cobra.Command {
	return NewRootCmdWithArgs(ver, os.Args, os.LookupEnv)
}

// NewRootCmdWithArgs creates the root command with explicit args and env lookup for testability.
// The first arg, when present, names the binary in usage output.
func NewRootCmdWithArgs(
	ver string,
	args []string,
	lookupEnv func(string) (string, bool),
) *cobra.Command {
	s := &session{lookupEnv: lookupEnv}

	useName := "cowtracker"
	if len(args) > 0 && args[0] != "" {
		useName = strings.TrimSuffix(filepath.Base(args[0]), ".exe")
	}

	cmd := &cobra.Command{
		Use:     useName,
		Short:   "CowTracker herd management CLI",
		Long:    "CowTracker: browse farms, cattle, medical records and herd reports through a persistent local cache",
		Version: ver,
		Example: rootCmdExample,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return s.close(cmd)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (default $COWTRACKER_HOME/config.yaml or ~/.cowtracker/config.yaml)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().
		String("cache-ttl", "", "default cache TTL, in seconds or as a duration like 5m (overrides config file and env var)")
	cmd.PersistentFlags().Bool("no-cache", false, "bypass the cache and always fetch from the backend")
	cmd.PersistentFlags().Bool("stale-on-error", false, "serve expired cache entries when the backend is unreachable")
	cmd.PersistentFlags().StringP("output", "o", "", "output format: table or json (default from config)")

	cmd.AddCommand(
		newFarmsCmd(s),
		newCattleCmd(s),
		newMedicalCmd(s),
		newUsersCmd(s),
		newReportCmd(s),
		newCacheCmd(s),
		newLoginCmd(s),
		newLogoutCmd(s),
		newVersionCmd(ver),
	)

	return cmd
}

const rootCmdExample = `  # List farms (served from cache while fresh)
  cowtracker farms list

  # List the cattle on one farm as JSON
  cowtracker cattle list --farm f1 -o json

  # Show an animal's medical history, always hitting the backend
  cowtracker medical list c42 --no-cache

  # Herd report for every farm with a 30 second cache TTL
  cowtracker report --cache-ttl 30s

  # Store an API token for the configured backend
  cowtracker login --token "$TOKEN"

  # Inspect and manage the local cache
  cowtracker cache stats
  cowtracker cache invalidate cattle
  cowtracker cache janitor --interval 5m`
