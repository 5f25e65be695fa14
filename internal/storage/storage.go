// Package storage provides persistent key-value backends that let the cache
// survive process restarts.
//
// Every backend implements Store, a small async-storage style contract:
// get, set and remove single items, list keys, and remove keys in bulk.
// Backends are safe for concurrent use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Common storage errors.
var (
	ErrNotFound       = errors.New("storage item not found")
	ErrInvalidKey     = errors.New("storage key cannot be empty")
	ErrClosed         = errors.New("storage is closed")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Store is the persistent key-value contract consumed by the cache.
type Store interface {
	// GetItem returns the stored value or ErrNotFound.
	GetItem(ctx context.Context, key string) ([]byte, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key string, value []byte) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// GetAllKeys lists every stored key in no particular order.
	GetAllKeys(ctx context.Context) ([]string, error)

	// MultiRemove deletes all given keys. Missing keys are ignored.
	MultiRemove(ctx context.Context, keys []string) error

	// Close releases the backend's resources.
	Close() error
}

// Open constructs the backend named by backend. path is the directory for
// the file backend and the database file for SQLite; memory ignores it.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
