package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	// itemFileExtension is the file extension used for stored items.
	itemFileExtension = ".item"

	// lockFileName guards the directory against concurrent processes.
	lockFileName = ".lock"

	// LockTimeout is the maximum time to wait for the directory lock.
	// If exceeded, operations proceed without the lock (fail-open) so a
	// crashed process holding the lock cannot hang the CLI.
	LockTimeout = 100 * time.Millisecond

	// lockRetryInterval is how often TryLockContext retries.
	lockRetryInterval = 10 * time.Millisecond

	// maxEncodedNameLen keeps item file names, temp suffix included, under
	// the 255-byte NAME_MAX of common filesystems.
	maxEncodedNameLen = 240

	// hashedNamePrefix marks files named by the SHA-256 of a long key. It is
	// outside the base64url alphabet.
	hashedNamePrefix = "~"
)

// FileStore stores each item as a file in a directory.
// File names are the base64url encoding of the key so GetAllKeys can
// recover keys exactly. Keys too long for a file name are stored under the
// hex SHA-256 of the key instead, with the key written ahead of the value.
// Writes go through a temp file and rename.
// Safe for concurrent use within a process (mutex) and across processes
// (advisory file lock).
type FileStore struct {
	// directory is the storage directory path.
	directory string

	// mu protects concurrent access to file operations within this process.
	mu sync.RWMutex

	// lock is the cross-process advisory lock on the directory.
	lock *flock.Flock
}

// NewFileStore creates a file-backed store.
// The directory will be created if it doesn't exist.
func NewFileStore(directory string) (*FileStore, error) {
	if directory == "" {
		return nil, errors.New("storage directory cannot be empty")
	}

	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{
		directory: directory,
		lock:      flock.New(filepath.Join(directory, lockFileName)),
	}, nil
}

// Directory returns the storage directory path.
func (s *FileStore) Directory() string {
	return s.directory
}

// GetItem reads an item by key.
func (s *FileStore) GetItem(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	release, err := s.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	path, hashed := s.keyToFilePath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	if !hashed {
		return data, nil
	}
	stored, value, ok := decodeHashedItem(data)
	if !ok || stored != key {
		return nil, ErrNotFound
	}
	return value, nil
}

// SetItem writes an item, replacing any previous value.
func (s *FileStore) SetItem(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	filePath, hashed := s.keyToFilePath(key)
	if hashed {
		value = encodeHashedItem(key, value)
	}

	// Write to temporary file first, then rename for atomicity
	tempPath := filePath + ".tmp"
	if writeErr := os.WriteFile(tempPath, value, 0o600); writeErr != nil {
		return fmt.Errorf("failed to write storage file: %w", writeErr)
	}

	if renameErr := os.Rename(tempPath, filePath); renameErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename storage file: %w", renameErr)
	}

	return nil
}

// RemoveItem deletes an item. Returns nil if it doesn't exist.
func (s *FileStore) RemoveItem(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	return s.removeLocked(key)
}

// GetAllKeys lists the keys of every stored item.
// Files that are not valid item names are skipped.
func (s *FileStore) GetAllKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	release, err := s.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != itemFileExtension {
			continue
		}
		key, ok := s.fileNameToKey(entry.Name())
		if !ok {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// MultiRemove deletes all given keys under a single lock acquisition.
func (s *FileStore) MultiRemove(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	var errs []error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if removeErr := s.removeLocked(key); removeErr != nil {
			errs = append(errs, removeErr)
		}
	}
	return errors.Join(errs...)
}

// Close releases the directory lock if still held.
func (s *FileStore) Close() error {
	return s.lock.Close()
}

func (s *FileStore) removeLocked(key string) error {
	path, _ := s.keyToFilePath(key)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete storage file: %w", err)
	}
	return nil
}

// acquire takes the cross-process lock (shared for reads, exclusive for
// writes). Fail-open: when the lock cannot be obtained within LockTimeout,
// the operation proceeds unlocked.
func (s *FileStore) acquire(ctx context.Context, exclusive bool) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(lockCtx, lockRetryInterval)
	} else {
		locked, err = s.lock.TryRLockContext(lockCtx, lockRetryInterval)
	}
	if err != nil {
		// Only fail-open on our own timeout, not on caller cancellation or real errors.
		if errors.Is(lockCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return func() {}, nil
		}
		return nil, fmt.Errorf("failed to lock storage directory: %w", err)
	}
	if !locked {
		return func() {}, nil
	}
	return func() { _ = s.lock.Unlock() }, nil
}

// keyToFilePath converts a key to its item file path and reports whether
// the name is a hash of the key.
func (s *FileStore) keyToFilePath(key string) (string, bool) {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	hashed := len(name) > maxEncodedNameLen
	if hashed {
		sum := sha256.Sum256([]byte(key))
		name = hashedNamePrefix + hex.EncodeToString(sum[:])
	}
	return filepath.Join(s.directory, name+itemFileExtension), hashed
}

// fileNameToKey reverses keyToFilePath for a bare file name. Hashed names
// are resolved by reading the key stored in the file. Must hold the lock.
func (s *FileStore) fileNameToKey(name string) (string, bool) {
	encoded := strings.TrimSuffix(name, itemFileExtension)
	if strings.HasPrefix(encoded, hashedNamePrefix) {
		data, err := os.ReadFile(filepath.Join(s.directory, name))
		if err != nil {
			return "", false
		}
		key, _, ok := decodeHashedItem(data)
		return key, ok
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

// encodeHashedItem prefixes value with the uvarint length of key and key.
func encodeHashedItem(key string, value []byte) []byte {
	var buf bytes.Buffer
	buf.Write(binary.AppendUvarint(nil, uint64(len(key))))
	buf.WriteString(key)
	buf.Write(value)
	return buf.Bytes()
}

func decodeHashedItem(data []byte) (string, []byte, bool) {
	n, size := binary.Uvarint(data)
	if size <= 0 || n == 0 || n > uint64(len(data)-size) {
		return "", nil, false
	}
	end := size + int(n)
	return string(data[size:end]), data[end:], true
}
