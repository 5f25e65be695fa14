package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// Entry is a single cached value with TTL metadata.
// Entries are never mutated after they are stored; a refresh replaces them.
type Entry struct {
	// Key is the canonical cache key.
	Key string

	// Value is the cached payload. Values restored from storage are json.RawMessage.
	Value any

	// StoredAt is when the entry was written.
	StoredAt time.Time

	// TTL is how long the entry stays fresh.
	TTL time.Duration

	// Version is the key's invalidation counter at the time the entry was written.
	Version uint64
}

// Fresh reports whether the entry is still within its TTL at now.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// ExpiresAt returns the instant the entry turns stale.
func (e *Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Age returns the duration since the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// TimeUntilExpiration returns the remaining freshness window.
// Returns 0 if already stale.
func (e *Entry) TimeUntilExpiration(now time.Time) time.Duration {
	remaining := e.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// record is the persisted form of an Entry.
// Timestamps are stored as epoch milliseconds to match the TTL resolution.
type record struct {
	Key      string          `json:"key"`
	Data     json.RawMessage `json:"data"`
	StoredAt int64           `json:"stored_at_ms"`
	TTLMs    int64           `json:"ttl_ms"`
	Version  uint64          `json:"version"`
}

// newRecord encodes e for storage. The value must be JSON-serializable.
func newRecord(e *Entry) (*record, error) {
	data, err := json.Marshal(e.Value)
	if err != nil {
		return nil, err
	}
	return &record{
		Key:      e.Key,
		Data:     data,
		StoredAt: e.StoredAt.UnixMilli(),
		TTLMs:    e.TTL.Milliseconds(),
		Version:  e.Version,
	}, nil
}

// entry converts a decoded record back into an Entry holding raw JSON.
func (r *record) entry() (*Entry, error) {
	if r.Key == "" {
		return nil, errors.New("persisted cache record has no key")
	}
	if r.TTLMs <= 0 {
		return nil, errors.New("persisted cache record has no TTL")
	}
	return &Entry{
		Key:      r.Key,
		Value:    r.Data,
		StoredAt: time.UnixMilli(r.StoredAt),
		TTL:      time.Duration(r.TTLMs) * time.Millisecond,
		Version:  r.Version,
	}, nil
}
