package cache

import (
	"time"

	"github.com/rshade/cowtracker/internal/storage"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStorage persists entries to store so they survive restarts.
func WithStorage(store storage.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithTTLPolicy sets the per-category TTLs used when Get or Set receive ttl <= 0.
func WithTTLPolicy(policy TTLPolicy) Option {
	return func(m *Manager) {
		m.policy = policy
	}
}

// WithDisabled turns the Manager into a pass-through: every Get fetches and
// Set does nothing. Concurrent Gets for one key are still coalesced.
// Restore loads nothing, but Invalidate, Clear and CleanupExpired still
// remove persisted records.
func WithDisabled() Option {
	return func(m *Manager) {
		m.disabled = true
	}
}

// WithStaleOnError makes every Get behave as if AllowStale was passed.
func WithStaleOnError() Option {
	return func(m *Manager) {
		m.staleOnError = true
	}
}

// GetOption adjusts a single Get call.
type GetOption func(*getOptions)

type getOptions struct {
	allowStale bool
}

// AllowStale lets Get fall back to an expired entry when the fetch fails.
// Without it a stale entry is treated exactly like an absent one.
func AllowStale() GetOption {
	return func(o *getOptions) {
		o.allowStale = true
	}
}
