package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rshade/cowtracker/internal/logging"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the config file at path whenever it is written or created
// and passes the result to onChange. A reload that fails to parse or
// validate is passed as an error, and the caller keeps its previous
// configuration. Watch blocks until ctx is done and returns nil then.
//
// The parent directory is watched rather than the file so atomic
// rename-on-save editors keep triggering reloads.
func Watch(
	ctx context.Context,
	path string,
	lookupEnv func(string) (string, bool),
	onChange func(*Config, error),
) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	log := logging.FromContext(ctx)
	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			log.Debug().Str("component", "config").Str("op", ev.Op.String()).Str("file", ev.Name).
				Msg("config change detected")
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			cfg, loadErr := LoadWithEnv(abs, lookupEnv)
			if loadErr != nil {
				log.Warn().Str("component", "config").Err(loadErr).Msg("failed to reload config")
			}
			onChange(cfg, loadErr)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Str("component", "config").Err(werr).Msg("config watcher error")
		}
	}
}
