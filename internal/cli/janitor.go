package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/cache"
	"github.com/rshade/cowtracker/internal/config"
)

func newCacheJanitorCmd(s *session) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Periodically remove expired entries until interrupted",
		Long: `Run the cache janitor in the foreground. Expired entries are swept from
memory and storage every interval. Without --interval the interval comes from
cache.cleanup_interval, and edits to the config file take effect without a
restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			interval := s.cfg.Cache.CleanupInterval.Std()
			var updates <-chan time.Duration
			if raw != "" {
				parsed, err := cache.ParseTTL(raw)
				if err != nil {
					return fmt.Errorf("invalid --interval: %w", err)
				}
				interval = parsed
			} else {
				updates = s.watchCleanupInterval(ctx)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cache janitor running every %s; press Ctrl+C to stop.\n", interval)
			return runJanitor(ctx, s.cache, interval, updates)
		},
	}
	cmd.Flags().StringVar(&raw, "interval", "", "sweep interval, in seconds or as a duration like 5m (default from config)")
	return cmd
}

// watchCleanupInterval streams cache.cleanup_interval whenever the config
// file changes. It returns nil when the file does not exist.
func (s *session) watchCleanupInterval(ctx context.Context) <-chan time.Duration {
	if _, err := os.Stat(s.configPath); err != nil {
		logger.Debug().Ctx(ctx).Str("path", s.configPath).Msg("no config file to watch")
		return nil
	}

	updates := make(chan time.Duration, 1)
	go func() {
		err := config.Watch(ctx, s.configPath, s.lookupEnv, func(cfg *config.Config, err error) {
			if err != nil {
				return
			}
			select {
			case updates <- cfg.Cache.CleanupInterval.Std():
			case <-ctx.Done():
			}
		})
		if err != nil {
			logger.Warn().Ctx(ctx).Err(err).Msg("config watcher stopped")
		}
	}()
	return updates
}

// runJanitor runs m's janitor at interval and restarts it whenever updates
// delivers a different interval. It returns when ctx is done or the janitor
// fails.
func runJanitor(ctx context.Context, m *cache.Manager, interval time.Duration, updates <-chan time.Duration) error {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func(d time.Duration) {
			done <- m.RunJanitor(runCtx, d)
		}(interval)

		restart := false
		for !restart {
			select {
			case <-ctx.Done():
				cancel()
				<-done
				return nil

			case err := <-done:
				cancel()
				return err

			case next := <-updates:
				if next == interval {
					continue
				}
				cancel()
				<-done
				logger.Info().Ctx(ctx).
					Dur("old_interval", interval).
					Dur("new_interval", next).
					Msg("cleanup interval changed, restarting janitor")
				interval = next
				restart = true
			}
		}
	}
}
