package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/rshade/cowtracker/internal/logging"
	"github.com/rshade/cowtracker/internal/storage"
)

const (
	// storagePrefix namespaces cache records inside a shared storage.Store.
	storagePrefix = "cache:"

	// metaKey holds the record format of everything under storagePrefix.
	metaKey = storagePrefix + "__meta__"

	// FormatVersion is the persisted record format written by this build.
	FormatVersion = "1.0.0"

	// formatConstraint selects the persisted formats this build can read.
	formatConstraint = "^1.0.0"
)

// meta is the persisted header describing the record format.
type meta struct {
	Format string `json:"format"`
}

func storageKey(key string) string {
	return storagePrefix + key
}

func isRecordKey(storeKey string) bool {
	return strings.HasPrefix(storeKey, storagePrefix) && storeKey != metaKey
}

// persist writes e to storage if it is still the current entry for its key.
// Failures are logged and otherwise ignored; the entry stays in memory.
func (m *Manager) persist(ctx context.Context, e *Entry) {
	if m.store == nil {
		return
	}
	log := logging.FromContext(ctx)

	rec, err := newRecord(e)
	if err != nil {
		log.Warn().
			Str("component", "cache").
			Str("key", e.Key).
			Err(err).
			Msg("value is not JSON-serializable, keeping it in memory only")
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Warn().Str("component", "cache").Str("key", e.Key).Err(err).Msg("failed to encode cache record")
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.RLock()
	current := m.entries[e.Key] == e
	m.mu.RUnlock()
	if !current {
		return
	}

	if metaErr := m.ensureMetaLocked(ctx); metaErr != nil {
		logStorageError(ctx, metaErr)
		return
	}
	if setErr := m.store.SetItem(ctx, storageKey(e.Key), data); setErr != nil {
		logStorageError(ctx, &StorageError{Op: "set", Key: e.Key, Err: setErr})
	}
}

// ensureMetaLocked writes the format header once per Manager lifetime (and
// again after Clear). Must hold m.persistMu.
func (m *Manager) ensureMetaLocked(ctx context.Context) error {
	if m.metaWritten {
		return nil
	}
	data, err := json.Marshal(meta{Format: FormatVersion})
	if err != nil {
		return &StorageError{Op: "encode meta", Err: err}
	}
	if err := m.store.SetItem(ctx, metaKey, data); err != nil {
		return &StorageError{Op: "set", Key: metaKey, Err: err}
	}
	m.metaWritten = true
	return nil
}

// removePersisted deletes stored records whose cache key satisfies match.
// A nil match removes every record and the format header.
func (m *Manager) removePersisted(ctx context.Context, match func(string) bool) {
	if m.store == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	keys, err := m.store.GetAllKeys(ctx)
	if err != nil {
		logStorageError(ctx, &StorageError{Op: "list", Err: err})
		return
	}

	var doomed []string
	for _, k := range keys {
		if match == nil && k == metaKey {
			doomed = append(doomed, k)
			continue
		}
		if !isRecordKey(k) {
			continue
		}
		if match == nil || match(strings.TrimPrefix(k, storagePrefix)) {
			doomed = append(doomed, k)
		}
	}
	if match == nil {
		m.metaWritten = false
	}
	if len(doomed) == 0 {
		return
	}
	if err := m.store.MultiRemove(ctx, doomed); err != nil {
		logStorageError(ctx, &StorageError{Op: "remove", Err: err})
	}
}

// removeExpiredPersisted deletes stored records that are stale at now or
// cannot be decoded, and returns their cache keys. A record that is fresh in
// storage is kept even if this Manager holds an expired copy, since another
// process may have refreshed it.
func (m *Manager) removeExpiredPersisted(ctx context.Context, now time.Time) []string {
	if m.store == nil {
		return nil
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	keys, err := m.store.GetAllKeys(ctx)
	if err != nil {
		logStorageError(ctx, &StorageError{Op: "list", Err: err})
		return nil
	}

	var doomed, removed []string
	for _, k := range keys {
		if !isRecordKey(k) {
			continue
		}
		data, getErr := m.store.GetItem(ctx, k)
		if getErr != nil {
			if !errors.Is(getErr, storage.ErrNotFound) {
				logStorageError(ctx, &StorageError{Op: "get", Key: k, Err: getErr})
			}
			continue
		}
		e, decodeErr := decodeRecord(data)
		if decodeErr == nil && storageKey(e.Key) == k && e.Fresh(now) {
			continue
		}
		doomed = append(doomed, k)
		removed = append(removed, strings.TrimPrefix(k, storagePrefix))
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := m.store.MultiRemove(ctx, doomed); err != nil {
		logStorageError(ctx, &StorageError{Op: "remove", Err: err})
		return nil
	}
	return removed
}

// Restore loads persisted entries into memory. Expired and unreadable
// records are removed from storage; persisted data in an incompatible format
// is discarded wholesale. Keys already present in memory are not replaced.
// It returns the number of restored entries. A failure to list storage keys
// is returned as *StorageError; every other storage failure is logged and
// the affected record is treated as a miss.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil || m.disabled {
		return 0, nil
	}
	log := logging.FromContext(ctx)

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	keys, err := m.store.GetAllKeys(ctx)
	if err != nil {
		return 0, &StorageError{Op: "list", Err: err}
	}

	var recordKeys []string
	for _, k := range keys {
		if isRecordKey(k) {
			recordKeys = append(recordKeys, k)
		}
	}

	if compatErr := m.checkFormatLocked(ctx, len(recordKeys) > 0); compatErr != nil {
		log.Warn().
			Str("component", "cache").
			Err(compatErr).
			Int("records", len(recordKeys)).
			Msg("discarding persisted cache")
		doomed := append(recordKeys, metaKey)
		if rmErr := m.store.MultiRemove(ctx, doomed); rmErr != nil {
			logStorageError(ctx, &StorageError{Op: "remove", Err: rmErr})
		}
		return 0, nil
	}

	now := m.now()
	restored := 0
	var doomed []string
	for _, k := range recordKeys {
		data, getErr := m.store.GetItem(ctx, k)
		if getErr != nil {
			if !errors.Is(getErr, storage.ErrNotFound) {
				logStorageError(ctx, &StorageError{Op: "get", Key: k, Err: getErr})
			}
			continue
		}

		e, decodeErr := decodeRecord(data)
		if decodeErr != nil || storageKey(e.Key) != k {
			log.Debug().Str("component", "cache").Str("storage_key", k).Msg("dropping unreadable cache record")
			doomed = append(doomed, k)
			continue
		}
		if !e.Fresh(now) {
			doomed = append(doomed, k)
			continue
		}

		m.mu.Lock()
		if m.versions[e.Key] < e.Version {
			m.versions[e.Key] = e.Version
		}
		if _, exists := m.entries[e.Key]; !exists {
			m.entries[e.Key] = e
			restored++
		}
		m.mu.Unlock()
	}

	if len(doomed) > 0 {
		if rmErr := m.store.MultiRemove(ctx, doomed); rmErr != nil {
			logStorageError(ctx, &StorageError{Op: "remove", Err: rmErr})
		}
	}

	log.Debug().
		Str("component", "cache").
		Int("restored", restored).
		Int("dropped", len(doomed)).
		Msg("cache restored from storage")
	return restored, nil
}

// checkFormatLocked verifies the persisted header is readable by this build.
// A missing header is fine only when there are no records. Must hold m.persistMu.
func (m *Manager) checkFormatLocked(ctx context.Context, haveRecords bool) error {
	data, err := m.store.GetItem(ctx, metaKey)
	if errors.Is(err, storage.ErrNotFound) {
		if haveRecords {
			return errors.New("persisted cache has no format header")
		}
		return nil
	}
	if err != nil {
		return &StorageError{Op: "get", Key: metaKey, Err: err}
	}

	var hdr meta
	if err := json.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("decoding cache format header: %w", err)
	}
	v, err := semver.NewVersion(hdr.Format)
	if err != nil {
		return fmt.Errorf("cache format %q: %w", hdr.Format, err)
	}
	c, err := semver.NewConstraint(formatConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("cache format %s does not satisfy %s", v, formatConstraint)
	}
	m.metaWritten = true
	return nil
}

func decodeRecord(data []byte) (*Entry, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r.entry()
}

func logStorageError(ctx context.Context, err error) {
	logging.FromContext(ctx).Warn().
		Str("component", "cache").
		Err(err).
		Msg("cache storage failure, continuing without persistence")
}
