package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/api"
	"github.com/rshade/cowtracker/internal/cache"
	"github.com/rshade/cowtracker/internal/config"
	"github.com/rshade/cowtracker/internal/credentials"
	"github.com/rshade/cowtracker/internal/herd"
	"github.com/rshade/cowtracker/internal/logging"
	"github.com/rshade/cowtracker/internal/storage"
)

// session holds what the root command builds before any subcommand runs.
type session struct {
	lookupEnv func(string) (string, bool)

	configPath string
	cfg        *config.Config
	log        *logging.Logger
	creds      *credentials.Store
	store      storage.Store
	cache      *cache.Manager
	client     *api.Client
	service    *herd.Service
}

// open loads configuration, applies flag overrides and wires the cache,
// its storage backend and the API client together.
func (s *session) open(cmd *cobra.Command) error {
	cfg, err := s.loadConfig(cmd)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.log = setupLogging(cmd, cfg)
	ctx := cmd.Context()

	dir, err := config.GetConfigDir(s.lookupEnv)
	if err != nil {
		return err
	}
	s.creds = credentials.NewStore(dir, s.lookupEnv)

	s.store = s.openStore(ctx)
	s.cache, err = s.newManager(ctx)
	if err != nil {
		return err
	}

	s.client, err = api.NewClient(cfg.API.BaseURL, s.token(), cfg.API.Timeout.Std())
	if err != nil {
		return err
	}
	s.service = herd.NewService(s.client, s.cache)
	return nil
}

// close releases the storage backend and the log file.
func (s *session) close(cmd *cobra.Command) error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache storage: %w", err))
		}
		s.store = nil
	}
	if err := cleanupLogging(cmd, s.log); err != nil {
		errs = append(errs, err)
	}
	s.log = nil
	return errors.Join(errs...)
}

// loadConfig reads the config file and environment, then applies the
// global flags, which take precedence over both.
func (s *session) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	cfg, err := config.LoadWithEnv(path, s.lookupEnv)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path, err = config.DefaultConfigPath(s.lookupEnv)
		if err != nil {
			return nil, err
		}
	}
	s.configPath = path

	if raw, _ := flags.GetString("cache-ttl"); raw != "" {
		ttl, parseErr := cache.ParseTTL(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: --cache-ttl: %w", config.ErrInvalidConfig, parseErr)
		}
		applyTTLOverride(cfg, ttl)
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if stale, _ := flags.GetBool("stale-on-error"); stale {
		cfg.Cache.StaleOnError = true
	}
	if format, _ := flags.GetString("output"); format != "" {
		cfg.Output.DefaultFormat = format
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyTTLOverride makes ttl the lifetime of every category.
func applyTTLOverride(cfg *config.Config, ttl time.Duration) {
	cfg.Cache.DefaultTTL = config.Duration(ttl)
	cfg.Cache.TTLs = make(map[string]config.Duration)
	for category := range cache.DefaultTTLPolicy().Categories {
		cfg.Cache.TTLs[category] = config.Duration(ttl)
	}
}

// openStore opens the configured backend. A backend that cannot be opened
// degrades to an in-memory store so commands keep working without
// persistence. The store is opened even with caching disabled so that
// invalidation, clear and cleanup still reach persisted records.
func (s *session) openStore(ctx context.Context) storage.Store {
	path, err := s.cfg.StoragePath(s.lookupEnv)
	if err == nil && s.cfg.Storage.Path == "" && path != "" {
		_, err = config.EnsureConfigDir(s.lookupEnv)
	}
	var store storage.Store
	if err == nil {
		store, err = storage.Open(ctx, s.cfg.Storage.Backend, path)
	}
	if err != nil {
		logger.Warn().Ctx(ctx).
			Err(err).
			Str("backend", s.cfg.Storage.Backend).
			Msg("cache storage unavailable, using memory only")
		return storage.NewMemory()
	}
	return store
}

func (s *session) newManager(ctx context.Context) (*cache.Manager, error) {
	policy, err := s.cfg.TTLPolicy()
	if err != nil {
		return nil, err
	}

	opts := []cache.Option{cache.WithTTLPolicy(policy)}
	if s.store != nil {
		opts = append(opts, cache.WithStorage(s.store))
	}
	if !s.cfg.Cache.Enabled {
		opts = append(opts, cache.WithDisabled())
	}
	if s.cfg.Cache.StaleOnError {
		opts = append(opts, cache.WithStaleOnError())
	}
	m := cache.NewManager(opts...)

	restored, err := m.Restore(ctx)
	if err != nil {
		logger.Warn().Ctx(ctx).Err(err).Msg("could not restore persisted cache")
	}
	logger.Debug().Ctx(ctx).Int("restored", restored).Msg("cache ready")
	return m, nil
}

// token returns the configured token, or the one saved by login for the
// configured backend.
func (s *session) token() string {
	if s.cfg.API.Token != "" {
		return s.cfg.API.Token
	}
	tok, err := s.creds.Token(s.cfg.API.BaseURL)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			logger.Warn().Err(err).Msg("could not read stored credentials")
		}
		return ""
	}
	return tok
}

// output writes v as JSON when the JSON format is selected, or calls
// render otherwise.
func (s *session) output(cmd *cobra.Command, v any, render func() error) error {
	if s.cfg.Output.DefaultFormat == config.FormatJSON {
		return writeJSON(cmd.OutOrStdout(), v)
	}
	return render()
}
