// Package credentials keeps the API token in the system keyring, falling
// back to a 0600 file in the config directory when no keyring is available.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	serviceName  = "cowtracker"
	fallbackFile = "credentials.json"

	// EnvNoKeyring disables the system keyring when set to any value.
	EnvNoKeyring = "COWTRACKER_NO_KEYRING"
)

// ErrNotFound is returned when no token is stored for an origin.
var ErrNotFound = errors.New("no stored credentials")

// Store saves API tokens per backend origin.
type Store struct {
	useKeyring  bool
	fallbackDir string
}

// NewStore creates a credential store. It probes the keyring once and
// uses the file fallback when the probe fails or EnvNoKeyring is set.
func NewStore(fallbackDir string, lookupEnv func(string) (string, bool)) *Store {
	if _, off := lookupEnv(EnvNoKeyring); off {
		return &Store{useKeyring: false, fallbackDir: fallbackDir}
	}

	probe := serviceName + "::probe"
	if err := keyring.Set(serviceName, probe, "probe"); err == nil {
		_ = keyring.Delete(serviceName, probe)
		return &Store{useKeyring: true, fallbackDir: fallbackDir}
	}
	return &Store{useKeyring: false, fallbackDir: fallbackDir}
}

// UsingKeyring reports whether tokens go to the system keyring.
func (s *Store) UsingKeyring() bool {
	return s.useKeyring
}

// Path returns the fallback file path.
func (s *Store) Path() string {
	return filepath.Join(s.fallbackDir, fallbackFile)
}

func key(origin string) string {
	return serviceName + "::" + strings.TrimRight(origin, "/")
}

// Token returns the token stored for origin, or ErrNotFound.
func (s *Store) Token(origin string) (string, error) {
	if s.useKeyring {
		tok, err := keyring.Get(serviceName, key(origin))
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		if err != nil {
			return "", fmt.Errorf("reading keyring: %w", err)
		}
		return tok, nil
	}

	all, err := s.loadFile()
	if err != nil {
		return "", err
	}
	tok, ok := all[key(origin)]
	if !ok {
		return "", ErrNotFound
	}
	return tok, nil
}

// SaveToken stores token for origin, replacing any previous one.
func (s *Store) SaveToken(origin, token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if s.useKeyring {
		return keyring.Set(serviceName, key(origin), token)
	}

	all, err := s.loadFile()
	if err != nil {
		return err
	}
	all[key(origin)] = token
	return s.saveFile(all)
}

// DeleteToken removes the token for origin. A missing token is not an error.
func (s *Store) DeleteToken(origin string) error {
	if s.useKeyring {
		err := keyring.Delete(serviceName, key(origin))
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}

	all, err := s.loadFile()
	if err != nil {
		return err
	}
	if _, ok := all[key(origin)]; !ok {
		return nil
	}
	delete(all, key(origin))
	return s.saveFile(all)
}

func (s *Store) loadFile() (map[string]string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	all := make(map[string]string)
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", s.Path(), err)
	}
	return all, nil
}

func (s *Store) saveFile(all map[string]string) error {
	if err := os.MkdirAll(s.fallbackDir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.fallbackDir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	dest := s.Path()
	if err := os.Rename(tmpPath, dest); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(dest)
			return os.Rename(tmpPath, dest)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
