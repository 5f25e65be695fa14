package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/cowtracker/internal/cache"
	"github.com/rshade/cowtracker/internal/storage"
)

type farm struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// flakyStore wraps a Store and fails selected operations.
type flakyStore struct {
	storage.Store

	failSet  bool
	failList bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) SetItem(ctx context.Context, key string, value []byte) error {
	if s.failSet {
		return errDiskFull
	}
	return s.Store.SetItem(ctx, key, value)
}

func (s *flakyStore) GetAllKeys(ctx context.Context) ([]string, error) {
	if s.failList {
		return nil, errDiskFull
	}
	return s.Store.GetAllKeys(ctx)
}

func storedKeys(t *testing.T, store storage.Store) []string {
	t.Helper()
	keys, err := store.GetAllKeys(context.Background())
	require.NoError(t, err)
	sort.Strings(keys)
	return keys
}

// TestPersist_RestoreAcrossManagers verifies entries survive a restart.
func TestPersist_RestoreAcrossManagers(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemory()

	first := newManager(clock, cache.WithStorage(store))
	farms := []farm{{ID: "1", Name: "Green Acres"}, {ID: "2", Name: "Sunny Ridge"}}
	got, err := cache.Fetch(ctx, first, "farm:list", func(context.Context) ([]farm, error) {
		return farms, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, farms, got)

	assert.Equal(t, []string{"cache:__meta__", "cache:farm:list"}, storedKeys(t, store))

	clock.Advance(10 * time.Second)
	second := newManager(clock, cache.WithStorage(store))
	restored, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	entry, ok := second.Peek("farm:list")
	require.True(t, ok)
	assert.Equal(t, time.Minute, entry.TTL)
	assert.IsType(t, json.RawMessage{}, entry.Value)

	again, err := cache.Fetch(ctx, second, "farm:list", func(context.Context) ([]farm, error) {
		t.Error("restored entry should be served without fetching")
		return nil, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, farms, again)
}

// TestPersist_RestoreDropsExpiredAndCorrupt verifies bad records are cleaned up.
func TestPersist_RestoreDropsExpiredAndCorrupt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemory()

	writer := newManager(clock, cache.WithStorage(store))
	require.NoError(t, writer.Set(ctx, "cattle:1", "short", 100*time.Millisecond))
	require.NoError(t, writer.Set(ctx, "report:farmId=null", map[string]int{"totalCattle": 5}, time.Minute))
	require.NoError(t, store.SetItem(ctx, "cache:farm:9", []byte("{not json")))
	require.NoError(t, store.SetItem(ctx, "unrelated", []byte("keep me")))

	clock.Advance(time.Second)
	reader := newManager(clock, cache.WithStorage(store))
	restored, err := reader.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, []string{"report:farmId=null"}, reader.Keys())

	assert.Equal(t, []string{"cache:__meta__", "cache:report:farmId=null", "unrelated"}, storedKeys(t, store))
}

// TestPersist_IncompatibleFormat verifies data from another format major is discarded.
func TestPersist_IncompatibleFormat(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	writer := cache.NewManager(cache.WithStorage(store))
	require.NoError(t, writer.Set(ctx, "farm:1", "x", time.Minute))
	require.NoError(t, store.SetItem(ctx, "cache:__meta__", []byte(`{"format":"2.0.0"}`)))

	reader := cache.NewManager(cache.WithStorage(store))
	restored, err := reader.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
	assert.Empty(t, storedKeys(t, store))
}

// TestPersist_MissingHeader verifies records without a format header are discarded.
func TestPersist_MissingHeader(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	writer := cache.NewManager(cache.WithStorage(store))
	require.NoError(t, writer.Set(ctx, "farm:1", "x", time.Minute))
	require.NoError(t, store.RemoveItem(ctx, "cache:__meta__"))

	reader := cache.NewManager(cache.WithStorage(store))
	restored, err := reader.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
	assert.Empty(t, storedKeys(t, store))
}

// TestPersist_InvalidateAndClear verifies removals reach storage.
func TestPersist_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := cache.NewManager(cache.WithStorage(store))

	require.NoError(t, m.Set(ctx, "farm:1", 1, time.Minute))
	require.NoError(t, m.Set(ctx, "farm:list", []int{1}, time.Minute))
	require.NoError(t, m.Set(ctx, "cattle:1", 2, time.Minute))

	m.Invalidate(ctx, "farm")
	assert.Equal(t, []string{"cache:__meta__", "cache:cattle:1"}, storedKeys(t, store))

	m.Clear(ctx)
	assert.Empty(t, storedKeys(t, store))

	// The header is written again by the next persist.
	require.NoError(t, m.Set(ctx, "user:me", "me", time.Minute))
	assert.Equal(t, []string{"cache:__meta__", "cache:user:me"}, storedKeys(t, store))
}

// TestPersist_CleanupExpiredRemovesRecords verifies the sweep reaches storage.
func TestPersist_CleanupExpiredRemovesRecords(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemory()
	m := newManager(clock, cache.WithStorage(store))

	require.NoError(t, m.Set(ctx, "cattle:1", 1, time.Second))
	require.NoError(t, m.Set(ctx, "user:me", 2, time.Hour))
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, m.CleanupExpired(ctx))
	assert.Equal(t, []string{"cache:__meta__", "cache:user:me"}, storedKeys(t, store))
}

// TestPersist_StorageFailuresDegrade verifies storage errors never fail cache operations.
func TestPersist_StorageFailuresDegrade(t *testing.T) {
	ctx := context.Background()

	t.Run("set fails", func(t *testing.T) {
		store := &flakyStore{Store: storage.NewMemory(), failSet: true}
		m := cache.NewManager(cache.WithStorage(store))

		require.NoError(t, m.Set(ctx, "farm:1", "x", time.Minute))
		got, err := m.Get(ctx, "farm:1", failingFetch(t), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "x", got)
	})

	t.Run("list fails on restore", func(t *testing.T) {
		store := &flakyStore{Store: storage.NewMemory(), failList: true}
		m := cache.NewManager(cache.WithStorage(store))

		_, err := m.Restore(ctx)
		var storageErr *cache.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "list", storageErr.Op)
		require.ErrorIs(t, err, errDiskFull)

		// Invalidate still works in memory.
		require.NoError(t, m.Set(ctx, "farm:1", "x", time.Minute))
		assert.Equal(t, 1, m.Invalidate(ctx, "farm"))
	})

	t.Run("unserializable value stays in memory", func(t *testing.T) {
		store := storage.NewMemory()
		m := cache.NewManager(cache.WithStorage(store))

		ch := make(chan int)
		require.NoError(t, m.Set(ctx, "farm:1", ch, time.Minute))
		_, ok := m.Peek("farm:1")
		assert.True(t, ok)
		assert.Equal(t, 0, store.Len())
	})
}

// TestPersist_CleanupExpiredSweepsSharedStore verifies a long-lived Manager
// removes expired records that another Manager wrote after it restored.
func TestPersist_CleanupExpiredSweepsSharedStore(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemory()

	janitor := newManager(clock, cache.WithStorage(store))
	_, err := janitor.Restore(ctx)
	require.NoError(t, err)

	writer := newManager(clock, cache.WithStorage(store))
	require.NoError(t, writer.Set(ctx, "farm:list", []farm{{ID: "1"}}, time.Minute))
	require.NoError(t, writer.Set(ctx, "user:me", "me", time.Hour))
	require.NoError(t, store.SetItem(ctx, "cache:farm:9", []byte("{not json")))

	clock.Advance(2 * time.Minute)

	assert.Equal(t, 2, janitor.CleanupExpired(ctx))
	assert.Equal(t, []string{"cache:__meta__", "cache:user:me"}, storedKeys(t, store))
	assert.Equal(t, 0, janitor.CleanupExpired(ctx))
}

// TestPersist_CleanupKeepsRefreshedRecord verifies a record refreshed by
// another Manager survives a sweep by a Manager holding an expired copy.
func TestPersist_CleanupKeepsRefreshedRecord(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemory()

	janitor := newManager(clock, cache.WithStorage(store))
	require.NoError(t, janitor.Set(ctx, "farm:1", "old", time.Minute))

	clock.Advance(2 * time.Minute)
	writer := newManager(clock, cache.WithStorage(store))
	require.NoError(t, writer.Set(ctx, "farm:1", "new", time.Minute))

	assert.Equal(t, 1, janitor.CleanupExpired(ctx))
	assert.Empty(t, janitor.Keys())
	assert.Equal(t, []string{"cache:__meta__", "cache:farm:1"}, storedKeys(t, store))
}

// TestPersist_DisabledStillRemovesRecords verifies a pass-through Manager
// neither reads nor writes records but still deletes them.
func TestPersist_DisabledStillRemovesRecords(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemory()

	writer := newManager(clock, cache.WithStorage(store))
	require.NoError(t, writer.Set(ctx, "farm:list", []int{1}, time.Minute))
	require.NoError(t, writer.Set(ctx, "cattle:all", []int{2}, time.Minute))
	require.NoError(t, writer.Set(ctx, "user:me", "me", time.Minute))

	disabled := newManager(clock, cache.WithStorage(store), cache.WithDisabled())
	restored, err := disabled.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)

	require.NoError(t, disabled.Set(ctx, "report:farmId=null", 1, time.Minute))
	_, err = disabled.Get(ctx, "medical:c1", countingFetch(new(atomic.Int32), "live"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache:__meta__", "cache:cattle:all", "cache:farm:list", "cache:user:me"},
		storedKeys(t, store))

	disabled.Invalidate(ctx, "cattle")
	assert.Equal(t, []string{"cache:__meta__", "cache:farm:list", "cache:user:me"}, storedKeys(t, store))

	disabled.Clear(ctx)
	assert.Empty(t, storedKeys(t, store))
}
