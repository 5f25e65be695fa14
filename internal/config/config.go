// Package config loads cowtracker settings from ~/.cowtracker/config.yaml,
// applies COWTRACKER_* environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rshade/cowtracker/internal/cache"
	"github.com/rshade/cowtracker/internal/storage"
)

// Environment variables that override file settings.
const (
	EnvAPIURL         = "COWTRACKER_API_URL"
	EnvAPIToken       = "COWTRACKER_API_TOKEN"
	EnvCacheTTL       = "COWTRACKER_CACHE_TTL"
	EnvCacheEnabled   = "COWTRACKER_CACHE_ENABLED"
	EnvStorageBackend = "COWTRACKER_STORAGE_BACKEND"
	EnvStoragePath    = "COWTRACKER_STORAGE_PATH"
	EnvLogLevel       = "COWTRACKER_LOG_LEVEL"
	EnvHome           = "COWTRACKER_HOME"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

const (
	defaultAPIURL     = "http://localhost:3000/api"
	defaultAPITimeout = 30 * time.Second
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that reads "300" (seconds) or "5m" from YAML.
type Duration time.Duration

// UnmarshalYAML accepts integer seconds or a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	v, err := cache.ParseTTL(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes a Go duration string so the file round-trips.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete cowtracker configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`
}

// APIConfig points the REST client at the backend.
type APIConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token,omitempty"`
	Timeout Duration `yaml:"timeout"`
}

// CacheConfig controls the read-through cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// DefaultTTL applies to categories without an entry in TTLs.
	DefaultTTL Duration `yaml:"default_ttl"`

	// TTLs overrides the built-in per-category lifetimes.
	TTLs map[string]Duration `yaml:"ttls,omitempty"`

	CleanupInterval Duration `yaml:"cleanup_interval"`
	StaleOnError    bool     `yaml:"stale_on_error"`
}

// StorageConfig selects the persistence backend for cache entries.
type StorageConfig struct {
	Backend string `yaml:"backend"`

	// Path is a directory for the file backend and a database file for
	// sqlite. Empty selects a location under the config directory.
	Path string `yaml:"path,omitempty"`
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: defaultAPIURL,
			Timeout: Duration(defaultAPITimeout),
		},
		Cache: CacheConfig{
			Enabled:         true,
			DefaultTTL:      Duration(cache.DefaultTTL),
			CleanupInterval: Duration(cache.DefaultCleanupInterval),
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Output: OutputConfig{
			DefaultFormat: FormatTable,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment. An empty path reads the default config file if it exists;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := New()

	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultConfigPath(lookupEnv)
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if mergeErr := ShallowMergeYAML(cfg, path); mergeErr != nil {
		return nil, mergeErr
	}

	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from COWTRACKER_* variables.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv(EnvAPIURL); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := lookupEnv(EnvAPIToken); ok {
		c.API.Token = v
	}
	if v, ok := lookupEnv(EnvCacheTTL); ok && v != "" {
		ttl, err := cache.ParseTTL(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvCacheTTL, err)
		}
		c.Cache.DefaultTTL = Duration(ttl)
	}
	if v, ok := lookupEnv(EnvCacheEnabled); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, EnvCacheEnabled, v)
		}
		c.Cache.Enabled = enabled
	}
	if v, ok := lookupEnv(EnvStorageBackend); ok && v != "" {
		c.Storage.Backend = v
	}
	if v, ok := lookupEnv(EnvStoragePath); ok && v != "" {
		c.Storage.Path = v
	}
	if v, ok := lookupEnv(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: api.base_url %q must be an absolute URL", ErrInvalidConfig, c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: api.base_url scheme must be http or https", ErrInvalidConfig)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", ErrInvalidConfig)
	}

	if _, err := c.TTLPolicy(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("%w: cache.cleanup_interval must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Storage.Backend) {
	case storage.BackendMemory, storage.BackendFile, storage.BackendSQLite:
	default:
		return fmt.Errorf("%w: storage.backend %q (want memory, file or sqlite)", ErrInvalidConfig, c.Storage.Backend)
	}

	switch c.Output.DefaultFormat {
	case FormatTable, FormatJSON:
	default:
		return fmt.Errorf("%w: output.default_format %q (want table or json)", ErrInvalidConfig, c.Output.DefaultFormat)
	}

	return nil
}

// TTLPolicy merges the configured lifetimes over cache.DefaultTTLPolicy.
func (c *Config) TTLPolicy() (cache.TTLPolicy, error) {
	policy := cache.DefaultTTLPolicy()
	if c.Cache.DefaultTTL > 0 {
		policy.Default = c.Cache.DefaultTTL.Std()
	}
	for category, ttl := range c.Cache.TTLs {
		policy.Categories[strings.ToLower(strings.TrimSpace(category))] = ttl.Std()
	}
	if err := policy.Validate(); err != nil {
		return cache.TTLPolicy{}, err
	}
	return policy, nil
}

// StoragePath returns the configured storage path or the backend's default
// location under the config directory.
func (c *Config) StoragePath(lookupEnv func(string) (string, bool)) (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	return DefaultStoragePath(c.Storage.Backend, lookupEnv)
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
