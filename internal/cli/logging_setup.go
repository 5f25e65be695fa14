package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/config"
	"github.com/rshade/cowtracker/internal/logging"
)

// setupLogging configures logging from the loaded config and CLI flags,
// tags the command context with a trace ID, and returns the logger so the
// caller can close its file.
func setupLogging(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	loggingCfg := cfg.Logging

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = "console"
		loggingCfg.File = ""
	}

	l, err := logging.New(loggingCfg.ToLoggingConfig(), cmd.ErrOrStderr())
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v; logging to stderr\n", err)
	}

	ctx := cmd.Context()
	traceID := logging.GetOrGenerateTraceID(ctx)
	ctx = logging.WithContext(ctx, l.Logger)
	ctx = logging.ContextWithTraceID(ctx, traceID)
	logger = logging.ComponentLogger(*logging.FromContext(ctx), "cli")
	cmd.SetContext(ctx)

	logger.Debug().Ctx(ctx).Str("command", cmd.CommandPath()).Msg("command started")
	return l
}

// cleanupLogging closes the log file handle, if any.
func cleanupLogging(cmd *cobra.Command, l *logging.Logger) error {
	logger.Debug().Ctx(cmd.Context()).Str("command", cmd.CommandPath()).Msg("command finished")
	return l.Close()
}
