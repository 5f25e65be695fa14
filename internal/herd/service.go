package herd

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rshade/cowtracker/internal/cache"
	"github.com/rshade/cowtracker/internal/logging"
)

// ErrMissingID is returned when an operation needs an entity ID and got "".
var ErrMissingID = errors.New("id cannot be empty")

// warmConcurrency bounds the number of fetches Warm runs at once.
const warmConcurrency = 4

// Client loads and mutates resources on the backend. The api package
// provides the REST implementation.
type Client interface {
	ListFarms(ctx context.Context) ([]Farm, error)
	GetFarm(ctx context.Context, id string) (*Farm, error)
	CreateFarm(ctx context.Context, farm Farm) (*Farm, error)
	UpdateFarm(ctx context.Context, id string, farm Farm) (*Farm, error)
	DeleteFarm(ctx context.Context, id string) error

	// ListCattle lists every animal, or only one farm's when farmID is set.
	ListCattle(ctx context.Context, farmID string) ([]CattleItem, error)
	GetCattle(ctx context.Context, id string) (*CattleItem, error)
	CreateCattle(ctx context.Context, item CattleItem) (*CattleItem, error)
	UpdateCattle(ctx context.Context, id string, item CattleItem) (*CattleItem, error)
	DeleteCattle(ctx context.Context, id string) error

	ListMedicalRecords(ctx context.Context, cattleID string) ([]MedicalRecord, error)
	AddMedicalRecord(ctx context.Context, cattleID string, record MedicalRecord) (*MedicalRecord, error)

	CurrentUser(ctx context.Context) (*UserInfo, error)
	ListUsers(ctx context.Context) ([]UserInfo, error)

	// Report builds a herd summary; an empty farmID covers every farm.
	Report(ctx context.Context, farmID string) (*ReportData, error)
}

// Service reads resources through the cache and invalidates the affected
// categories after every mutation.
type Service struct {
	client Client
	cache  *cache.Manager
	opts   []cache.GetOption
}

// NewService returns a Service. opts apply to every cached read.
func NewService(client Client, m *cache.Manager, opts ...cache.GetOption) *Service {
	return &Service{client: client, cache: m, opts: opts}
}

// Cache returns the underlying cache manager.
func (s *Service) Cache() *cache.Manager {
	return s.cache
}

// Farms returns every farm visible to the user.
func (s *Service) Farms(ctx context.Context) ([]Farm, error) {
	return cache.Fetch(ctx, s.cache, FarmListKey(), s.client.ListFarms, 0, s.opts...)
}

// Farm returns one farm.
func (s *Service) Farm(ctx context.Context, id string) (*Farm, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	return cache.Fetch(ctx, s.cache, FarmKey(id), func(ctx context.Context) (*Farm, error) {
		return s.client.GetFarm(ctx, id)
	}, 0, s.opts...)
}

// Cattle returns every animal, or only those on farmID when it is set.
func (s *Service) Cattle(ctx context.Context, farmID string) ([]CattleItem, error) {
	key := CattleAllKey()
	if farmID != "" {
		key = CattleByFarmKey(farmID)
	}
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]CattleItem, error) {
		return s.client.ListCattle(ctx, farmID)
	}, 0, s.opts...)
}

// Animal returns one animal.
func (s *Service) Animal(ctx context.Context, id string) (*CattleItem, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	return cache.Fetch(ctx, s.cache, CattleKey(id), func(ctx context.Context) (*CattleItem, error) {
		return s.client.GetCattle(ctx, id)
	}, 0, s.opts...)
}

// MedicalRecords returns the medical history of one animal.
func (s *Service) MedicalRecords(ctx context.Context, cattleID string) ([]MedicalRecord, error) {
	if cattleID == "" {
		return nil, ErrMissingID
	}
	return cache.Fetch(ctx, s.cache, MedicalKey(cattleID), func(ctx context.Context) ([]MedicalRecord, error) {
		return s.client.ListMedicalRecords(ctx, cattleID)
	}, 0, s.opts...)
}

// CurrentUser returns the signed-in account.
func (s *Service) CurrentUser(ctx context.Context) (*UserInfo, error) {
	return cache.Fetch(ctx, s.cache, CurrentUserKey(), s.client.CurrentUser, 0, s.opts...)
}

// Users lists accounts.
func (s *Service) Users(ctx context.Context) ([]UserInfo, error) {
	return cache.Fetch(ctx, s.cache, UserListKey(), s.client.ListUsers, 0, s.opts...)
}

// Report returns the herd summary for farmID, or for every farm when empty.
func (s *Service) Report(ctx context.Context, farmID string) (*ReportData, error) {
	return cache.Fetch(ctx, s.cache, ReportKey(farmID), func(ctx context.Context) (*ReportData, error) {
		return s.client.Report(ctx, farmID)
	}, 0, s.opts...)
}

// CreateFarm creates a farm, drops cached farm lists and reports, and caches
// the new farm.
func (s *Service) CreateFarm(ctx context.Context, farm Farm) (*Farm, error) {
	created, err := s.client.CreateFarm(ctx, farm)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "create farm", CategoryFarm, CategoryReport)
	s.prewarm(ctx, FarmKey(created.ID), created)
	return created, nil
}

// UpdateFarm updates a farm and refreshes the cache the same way CreateFarm does.
func (s *Service) UpdateFarm(ctx context.Context, id string, farm Farm) (*Farm, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	updated, err := s.client.UpdateFarm(ctx, id, farm)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "update farm", CategoryFarm, CategoryReport)
	s.prewarm(ctx, FarmKey(updated.ID), updated)
	return updated, nil
}

// DeleteFarm deletes a farm. Cattle lists are dropped too since the
// backend detaches or removes the farm's animals.
func (s *Service) DeleteFarm(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	if err := s.client.DeleteFarm(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "delete farm", CategoryFarm, CategoryCattle, CategoryReport)
	return nil
}

// CreateAnimal adds an animal. Farm entries carry cattle counts, so they
// are dropped along with cattle lists and reports.
func (s *Service) CreateAnimal(ctx context.Context, item CattleItem) (*CattleItem, error) {
	created, err := s.client.CreateCattle(ctx, item)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "create cattle", CategoryCattle, CategoryFarm, CategoryReport)
	s.prewarm(ctx, CattleKey(created.ID), created)
	return created, nil
}

// UpdateAnimal updates an animal.
func (s *Service) UpdateAnimal(ctx context.Context, id string, item CattleItem) (*CattleItem, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	updated, err := s.client.UpdateCattle(ctx, id, item)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "update cattle", CategoryCattle, CategoryFarm, CategoryReport)
	s.prewarm(ctx, CattleKey(updated.ID), updated)
	return updated, nil
}

// DeleteAnimal deletes an animal and its cached medical history.
func (s *Service) DeleteAnimal(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	if err := s.client.DeleteCattle(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "delete cattle", CategoryCattle, CategoryFarm, CategoryReport, MedicalKey(id))
	return nil
}

// AddMedicalRecord records a treatment for an animal.
func (s *Service) AddMedicalRecord(ctx context.Context, cattleID string, record MedicalRecord) (*MedicalRecord, error) {
	if cattleID == "" {
		return nil, ErrMissingID
	}
	added, err := s.client.AddMedicalRecord(ctx, cattleID, record)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "add medical record", MedicalKey(cattleID), CategoryReport)
	return added, nil
}

// Logout drops every cached resource so nothing leaks into the next session.
func (s *Service) Logout(ctx context.Context) {
	s.cache.Clear(ctx)
	logging.FromContext(ctx).Info().Str("component", "herd").Msg("cache cleared on logout")
}

// Warm prefetches the resources most screens start from: farms, all
// cattle, the current user and the all-farms report. Fetches run
// concurrently and the first failure is returned.
func (s *Service) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	g.Go(func() error {
		_, err := s.Farms(gctx)
		return wrapWarm("farms", err)
	})
	g.Go(func() error {
		_, err := s.Cattle(gctx, "")
		return wrapWarm("cattle", err)
	})
	g.Go(func() error {
		_, err := s.CurrentUser(gctx)
		return wrapWarm("current user", err)
	})
	g.Go(func() error {
		_, err := s.Report(gctx, "")
		return wrapWarm("report", err)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logging.FromContext(ctx).Debug().Str("component", "herd").Msg("cache warmed")
	return nil
}

func wrapWarm(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("warming %s: %w", what, err)
}

func (s *Service) invalidate(ctx context.Context, op string, patterns ...string) {
	removed := 0
	for _, p := range patterns {
		removed += s.cache.Invalidate(ctx, p)
	}
	logging.FromContext(ctx).Debug().
		Str("component", "herd").
		Str("operation", op).
		Strs("patterns", patterns).
		Int("removed", removed).
		Msg("invalidated cache after mutation")
}

func (s *Service) prewarm(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		logging.FromContext(ctx).Warn().
			Str("component", "herd").
			Str("key", key).
			Err(err).
			Msg("could not pre-warm cache")
	}
}
