package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rshade/cowtracker/internal/logging"
)

// DefaultCleanupInterval is how often RunJanitor sweeps by default.
const DefaultCleanupInterval = 10 * time.Minute

// ErrInvalidInterval is returned by RunJanitor for a non-positive interval.
var ErrInvalidInterval = errors.New("cleanup interval must be positive")

// RunJanitor calls CleanupExpired every interval until ctx is done.
// It returns nil once ctx is cancelled.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	log := logging.FromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := m.CleanupExpired(ctx); removed > 0 {
				log.Info().
					Str("component", "cache").
					Int("removed", removed).
					Msg("janitor removed expired entries")
			}
		}
	}
}
