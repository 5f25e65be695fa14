package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rshade/cowtracker/internal/logging"
	"github.com/rshade/cowtracker/internal/storage"
)

// FetchFunc loads the authoritative value for a key, typically over the network.
type FetchFunc func(ctx context.Context) (any, error)

// Stats is a point-in-time view of the cache.
type Stats struct {
	EntryCount int
	FreshCount int
	StaleCount int

	// Pending is the number of keys with a fetch in flight.
	Pending int

	Hits   uint64
	Misses uint64

	// Coalesced counts Get calls whose fetch result was shared with another caller.
	Coalesced uint64
}

// Manager is the process-wide read-through cache.
//
// Per key the state moves Absent -> Pending -> Fresh -> Stale -> (Absent | Fresh).
// At most one fetch per key is in flight for callers that arrive while it runs.
// Every invalidation that touches a key bumps its version; a fetch whose key
// version changed while it ran returns its value to its own waiters but is
// not stored, and later callers start a new fetch.
type Manager struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	versions map[string]uint64
	pending  map[string]int

	group singleflight.Group

	// persistMu serializes storage writes so storage ends up matching the
	// latest in-memory entry for each key.
	persistMu   sync.Mutex
	metaWritten bool

	store        storage.Store
	policy       TTLPolicy
	now          func() time.Time
	disabled     bool
	staleOnError bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	coalesced atomic.Uint64
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		entries:  make(map[string]*Entry),
		versions: make(map[string]uint64),
		pending:  make(map[string]int),
		policy:   DefaultTTLPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached value for key while it is fresh. Otherwise it calls
// fetch (once, shared with concurrent callers for the same key), stores the
// result for ttl and returns it. ttl <= 0 selects the TTLPolicy default for
// the key's category.
//
// Fetch failures come back as *FetchError and leave the key absent.
// If ctx is cancelled the caller stops waiting, but the fetch keeps running
// and still populates the cache.
func (m *Manager) Get(
	ctx context.Context,
	key string,
	fetch FetchFunc,
	ttl time.Duration,
	opts ...GetOption,
) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if fetch == nil {
		return nil, ErrNilFetch
	}

	o := getOptions{allowStale: m.staleOnError}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = m.policy.For(key)
	}

	log := logging.FromContext(ctx)

	if !m.disabled {
		if value, ok := m.lookup(key, true); ok {
			m.hits.Add(1)
			log.Debug().Str("component", "cache").Str("key", key).Msg("cache hit")
			return value, nil
		}
	}
	m.misses.Add(1)
	log.Debug().Str("component", "cache").Str("key", key).Msg("cache miss")

	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return m.load(flightCtx, key, fetch, ttl)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.coalesced.Add(1)
		}
		if res.Err == nil {
			return res.Val, nil
		}
		if o.allowStale {
			if value, ok := m.lookup(key, false); ok {
				log.Warn().
					Str("component", "cache").
					Str("key", key).
					Err(res.Err).
					Msg("fetch failed, serving stale entry")
				return value, nil
			}
		}
		return nil, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load runs one fetch for key and stores its result unless the key was
// invalidated while the fetch was in flight.
func (m *Manager) load(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) (any, error) {
	m.mu.Lock()
	version := m.versions[key]
	m.pending[key]++
	m.mu.Unlock()

	stored := false
	var entry *Entry
	value, err := func() (any, error) {
		defer func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.pending[key]--
			if m.pending[key] <= 0 {
				delete(m.pending, key)
				m.pruneVersionLocked(key)
			}
		}()

		v, fetchErr := fetch(ctx)
		if fetchErr != nil || m.disabled {
			return v, fetchErr
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.versions[key] != version {
			return v, nil
		}
		entry = &Entry{
			Key:      key,
			Value:    v,
			StoredAt: m.now(),
			TTL:      ttl,
			Version:  version,
		}
		m.entries[key] = entry
		stored = true
		return v, nil
	}()

	log := logging.FromContext(ctx)
	if err != nil {
		log.Debug().Str("component", "cache").Str("key", key).Err(err).Msg("fetch failed")
		return nil, &FetchError{Key: key, Err: err}
	}
	if stored {
		m.persist(ctx, entry)
	} else if !m.disabled {
		log.Debug().
			Str("component", "cache").
			Str("key", key).
			Msg("discarding fetch result invalidated while in flight")
	}
	return value, nil
}

// lookup returns the entry value for key. With freshOnly it ignores stale entries.
func (m *Manager) lookup(key string, freshOnly bool) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if freshOnly && !e.Fresh(m.now()) {
		return nil, false
	}
	return e.Value, true
}

// Set stores value under key as a fresh entry, replacing any previous one.
// Used after a mutation to pre-warm the cache with a known-fresh value.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if m.disabled {
		return nil
	}
	if ttl <= 0 {
		ttl = m.policy.For(key)
	}

	m.mu.Lock()
	e := &Entry{
		Key:      key,
		Value:    value,
		StoredAt: m.now(),
		TTL:      ttl,
		Version:  m.versions[key],
	}
	m.entries[key] = e
	m.mu.Unlock()

	m.persist(ctx, e)
	return nil
}

// Invalidate removes every entry whose key falls under pattern (see
// MatchPattern) and abandons matching in-flight fetches, so the next Get
// refetches. It returns the number of entries removed. An empty pattern
// removes nothing; use Clear to drop everything.
func (m *Manager) Invalidate(ctx context.Context, pattern string) int {
	m.mu.Lock()
	removed := m.bumpLocked(func(key string) bool { return MatchPattern(key, pattern) })
	m.mu.Unlock()

	m.removePersisted(ctx, func(key string) bool { return MatchPattern(key, pattern) })

	logging.FromContext(ctx).Debug().
		Str("component", "cache").
		Str("pattern", pattern).
		Int("removed", removed).
		Msg("cache invalidated")
	return removed
}

// Clear removes every entry, abandons all in-flight fetches and resets the
// hit/miss counters. Used on logout so nothing leaks across sessions.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	removed := m.bumpLocked(func(string) bool { return true })
	m.mu.Unlock()

	m.hits.Store(0)
	m.misses.Store(0)
	m.coalesced.Store(0)

	m.removePersisted(ctx, nil)

	logging.FromContext(ctx).Debug().
		Str("component", "cache").
		Int("removed", removed).
		Msg("cache cleared")
}

// bumpLocked deletes matching entries, bumps the version of every matching
// key that has an entry or an in-flight fetch, and forgets those flights so
// the next Get starts a new fetch. Must hold m.mu.
func (m *Manager) bumpLocked(match func(string) bool) int {
	bumped := make(map[string]bool)
	for key := range m.entries {
		if match(key) {
			delete(m.entries, key)
			bumped[key] = true
		}
	}
	removed := len(bumped)
	for key := range m.pending {
		if match(key) {
			bumped[key] = true
		}
	}
	for key := range bumped {
		m.versions[key]++
		m.group.Forget(key)
		m.pruneVersionLocked(key)
	}
	return removed
}

// pruneVersionLocked drops the version counter of a key that has neither an
// entry nor a fetch in flight. Such a key is Absent and a new fetch starts
// from a clean counter. Must hold m.mu.
func (m *Manager) pruneVersionLocked(key string) {
	if _, ok := m.entries[key]; ok {
		return
	}
	if m.pending[key] > 0 {
		return
	}
	delete(m.versions, key)
}

// CleanupExpired removes all stale entries without reading them and returns
// how many keys were removed. With storage configured it also sweeps stale
// and unreadable records written by other processes sharing the store.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	expired := make(map[string]bool)
	for key, e := range m.entries {
		if !e.Fresh(now) {
			delete(m.entries, key)
			m.pruneVersionLocked(key)
			expired[key] = true
		}
	}
	m.mu.Unlock()

	for _, key := range m.removeExpiredPersisted(ctx, now) {
		expired[key] = true
	}

	logging.FromContext(ctx).Debug().
		Str("component", "cache").
		Int("removed", len(expired)).
		Msg("expired entries cleaned up")
	return len(expired)
}

// Stats returns entry counts and hit/miss counters.
func (m *Manager) Stats() Stats {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		EntryCount: len(m.entries),
		Pending:    len(m.pending),
		Hits:       m.hits.Load(),
		Misses:     m.misses.Load(),
		Coalesced:  m.coalesced.Load(),
	}
	for _, e := range m.entries {
		if e.Fresh(now) {
			s.FreshCount++
		} else {
			s.StaleCount++
		}
	}
	return s
}

// Peek returns a copy of the entry for key without fetching or checking freshness.
func (m *Manager) Peek(key string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Keys returns the keys of all entries, sorted.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Now returns the Manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Enabled reports whether values are being cached.
func (m *Manager) Enabled() bool {
	return !m.disabled
}
