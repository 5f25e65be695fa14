package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rshade/cowtracker/internal/storage"
)

const (
	configDirName  = ".cowtracker"
	configFileName = "config.yaml"
	cacheDirName   = "cache"
	cacheDBName    = "cache.db"
)

// GetConfigDir returns the cowtracker configuration directory:
// $COWTRACKER_HOME if set, otherwise ~/.cowtracker.
func GetConfigDir(lookupEnv func(string) (string, bool)) (string, error) {
	if home, ok := lookupEnv(EnvHome); ok && home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, configDirName), nil
}

// DefaultConfigPath returns the path of the default config file.
func DefaultConfigPath(lookupEnv func(string) (string, bool)) (string, error) {
	dir, err := GetConfigDir(lookupEnv)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// EnsureConfigDir ensures the configuration directory exists.
func EnsureConfigDir(lookupEnv func(string) (string, bool)) (string, error) {
	dir, err := GetConfigDir(lookupEnv)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory %q: %w", dir, err)
	}
	return dir, nil
}

// DefaultStoragePath returns where a backend keeps its data when no path is
// configured: a directory for file, a database file for sqlite, and "" for
// memory.
func DefaultStoragePath(backend string, lookupEnv func(string) (string, bool)) (string, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == storage.BackendMemory || backend == "" {
		return "", nil
	}

	dir, err := GetConfigDir(lookupEnv)
	if err != nil {
		return "", err
	}
	if backend == storage.BackendSQLite {
		return filepath.Join(dir, cacheDBName), nil
	}
	return filepath.Join(dir, cacheDirName), nil
}
