package cache

import (
	"errors"
	"fmt"
)

// Common cache errors.
var (
	// ErrInvalidKey is returned synchronously for empty or malformed keys.
	// It signals a programming error, not a runtime condition.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrNilFetch is returned when Get is called without a fetch function.
	ErrNilFetch = errors.New("cache fetch function cannot be nil")

	// ErrTypeMismatch is returned by Fetch when a cached value cannot be
	// converted to the requested type.
	ErrTypeMismatch = errors.New("cached value has unexpected type")
)

// FetchError wraps a failure of the injected fetch function.
// errors.Is and errors.As see through it to the original error.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StorageError reports a failure of the persistent storage collaborator.
// The Manager logs these and degrades to a cache miss.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
