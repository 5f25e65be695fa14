package herd_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/cowtracker/internal/cache"
	"github.com/rshade/cowtracker/internal/herd"
	"github.com/rshade/cowtracker/internal/storage"
)

// fakeClient is an in-memory herd.Client that counts calls per method.
type fakeClient struct {
	mu     sync.Mutex
	calls  map[string]int
	farms  map[string]herd.Farm
	cattle map[string]herd.CattleItem
	nextID int

	failReport error
	delay      time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls: make(map[string]int),
		farms: map[string]herd.Farm{
			"f1": {ID: "f1", Name: "Green Acres", CattleCount: 2},
		},
		cattle: map[string]herd.CattleItem{
			"c1": {ID: "c1", IdentificationNumber: "A-001", FarmID: "f1", Breed: "Angus"},
			"c2": {ID: "c2", IdentificationNumber: "A-002", FarmID: "f1", Breed: "Hereford"},
		},
	}
}

func (f *fakeClient) record(method string) {
	f.mu.Lock()
	f.calls[method]++
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (f *fakeClient) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeClient) ListFarms(context.Context) ([]herd.Farm, error) {
	f.record("ListFarms")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]herd.Farm, 0, len(f.farms))
	for _, farm := range f.farms {
		out = append(out, farm)
	}
	return out, nil
}

func (f *fakeClient) GetFarm(_ context.Context, id string) (*herd.Farm, error) {
	f.record("GetFarm")
	f.mu.Lock()
	defer f.mu.Unlock()
	farm, ok := f.farms[id]
	if !ok {
		return nil, errors.New("farm not found")
	}
	return &farm, nil
}

func (f *fakeClient) CreateFarm(_ context.Context, farm herd.Farm) (*herd.Farm, error) {
	f.record("CreateFarm")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	farm.ID = "new" + string(rune('0'+f.nextID))
	f.farms[farm.ID] = farm
	return &farm, nil
}

func (f *fakeClient) UpdateFarm(_ context.Context, id string, farm herd.Farm) (*herd.Farm, error) {
	f.record("UpdateFarm")
	f.mu.Lock()
	defer f.mu.Unlock()
	farm.ID = id
	f.farms[id] = farm
	return &farm, nil
}

func (f *fakeClient) DeleteFarm(_ context.Context, id string) error {
	f.record("DeleteFarm")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.farms, id)
	return nil
}

func (f *fakeClient) ListCattle(_ context.Context, farmID string) ([]herd.CattleItem, error) {
	f.record("ListCattle")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []herd.CattleItem
	for _, c := range f.cattle {
		if farmID == "" || c.FarmID == farmID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClient) GetCattle(_ context.Context, id string) (*herd.CattleItem, error) {
	f.record("GetCattle")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cattle[id]
	if !ok {
		return nil, errors.New("cattle not found")
	}
	return &c, nil
}

func (f *fakeClient) CreateCattle(_ context.Context, item herd.CattleItem) (*herd.CattleItem, error) {
	f.record("CreateCattle")
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = "c" + string(rune('0'+len(f.cattle)+1))
	f.cattle[item.ID] = item
	return &item, nil
}

func (f *fakeClient) UpdateCattle(_ context.Context, id string, item herd.CattleItem) (*herd.CattleItem, error) {
	f.record("UpdateCattle")
	item.ID = id
	f.mu.Lock()
	f.cattle[id] = item
	f.mu.Unlock()
	return &item, nil
}

func (f *fakeClient) DeleteCattle(_ context.Context, id string) error {
	f.record("DeleteCattle")
	f.mu.Lock()
	delete(f.cattle, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) ListMedicalRecords(_ context.Context, cattleID string) ([]herd.MedicalRecord, error) {
	f.record("ListMedicalRecords")
	return []herd.MedicalRecord{{ID: "m1", CattleID: cattleID, Type: "vaccination"}}, nil
}

func (f *fakeClient) AddMedicalRecord(
	_ context.Context,
	cattleID string,
	record herd.MedicalRecord,
) (*herd.MedicalRecord, error) {
	f.record("AddMedicalRecord")
	record.ID = "m2"
	record.CattleID = cattleID
	return &record, nil
}

func (f *fakeClient) CurrentUser(context.Context) (*herd.UserInfo, error) {
	f.record("CurrentUser")
	return &herd.UserInfo{ID: "u1", Email: "rancher@example.com"}, nil
}

func (f *fakeClient) ListUsers(context.Context) ([]herd.UserInfo, error) {
	f.record("ListUsers")
	return []herd.UserInfo{{ID: "u1", Email: "rancher@example.com"}}, nil
}

func (f *fakeClient) Report(_ context.Context, farmID string) (*herd.ReportData, error) {
	f.record("Report")
	if f.failReport != nil {
		return nil, f.failReport
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.cattle {
		if farmID == "" || c.FarmID == farmID {
			total++
		}
	}
	return &herd.ReportData{FarmID: farmID, TotalCattle: total}, nil
}

func newService(t *testing.T, opts ...cache.Option) (*herd.Service, *fakeClient) {
	t.Helper()
	client := newFakeClient()
	return herd.NewService(client, cache.NewManager(opts...)), client
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "farm:list", herd.FarmListKey())
	assert.Equal(t, "farm:id=123", herd.FarmKey("123"))
	assert.NotEqual(t, herd.FarmListKey(), herd.FarmKey("list"))
	assert.Equal(t, "cattle:all", herd.CattleAllKey())
	assert.Equal(t, "cattle:farm=9", herd.CattleByFarmKey("9"))
	assert.Equal(t, "cattle:id=c1", herd.CattleKey("c1"))
	assert.NotEqual(t, herd.CattleAllKey(), herd.CattleKey("all"))
	assert.Equal(t, "medical:cattle=c1", herd.MedicalKey("c1"))
	assert.Equal(t, "user:me", herd.CurrentUserKey())
	assert.Equal(t, "user:list", herd.UserListKey())
	assert.Equal(t, "report:farmId=null", herd.ReportKey(""))
	assert.Equal(t, "report:farmId=f1", herd.ReportKey("f1"))
}

func TestService_ReadsAreCached(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)

	for range 3 {
		farms, err := svc.Farms(ctx)
		require.NoError(t, err)
		assert.Len(t, farms, 1)

		farm, err := svc.Farm(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "Green Acres", farm.Name)

		cattle, err := svc.Cattle(ctx, "f1")
		require.NoError(t, err)
		assert.Len(t, cattle, 2)

		_, err = svc.MedicalRecords(ctx, "c1")
		require.NoError(t, err)
		_, err = svc.Users(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, client.count("ListFarms"))
	assert.Equal(t, 1, client.count("GetFarm"))
	assert.Equal(t, 1, client.count("ListCattle"))
	assert.Equal(t, 1, client.count("ListMedicalRecords"))
	assert.Equal(t, 1, client.count("ListUsers"))
}

func TestService_EntityIDsDoNotShadowLists(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)
	client.farms["list"] = herd.Farm{ID: "list", Name: "Listed Pasture"}
	client.cattle["all"] = herd.CattleItem{ID: "all", IdentificationNumber: "A-100", FarmID: "f9"}

	farms, err := svc.Farms(ctx)
	require.NoError(t, err)
	assert.Len(t, farms, 2)
	farm, err := svc.Farm(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, "Listed Pasture", farm.Name)

	cattle, err := svc.Cattle(ctx, "")
	require.NoError(t, err)
	assert.Len(t, cattle, 3)
	animal, err := svc.Animal(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, "A-100", animal.IdentificationNumber)

	farms, err = svc.Farms(ctx)
	require.NoError(t, err)
	assert.Len(t, farms, 2)
	cattle, err = svc.Cattle(ctx, "")
	require.NoError(t, err)
	assert.Len(t, cattle, 3)

	assert.Equal(t, 1, client.count("ListFarms"))
	assert.Equal(t, 1, client.count("GetFarm"))
	assert.Equal(t, 1, client.count("ListCattle"))
	assert.Equal(t, 1, client.count("GetCattle"))
}

func TestService_MissingID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Farm(ctx, "")
	require.ErrorIs(t, err, herd.ErrMissingID)
	_, err = svc.Animal(ctx, "")
	require.ErrorIs(t, err, herd.ErrMissingID)
	_, err = svc.MedicalRecords(ctx, "")
	require.ErrorIs(t, err, herd.ErrMissingID)
	require.ErrorIs(t, svc.DeleteFarm(ctx, ""), herd.ErrMissingID)
	require.ErrorIs(t, svc.DeleteAnimal(ctx, ""), herd.ErrMissingID)
}

func TestService_CreateAnimalInvalidates(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)

	_, err := svc.Cattle(ctx, "")
	require.NoError(t, err)
	_, err = svc.Farms(ctx)
	require.NoError(t, err)
	report, err := svc.Report(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalCattle)
	_, err = svc.CurrentUser(ctx)
	require.NoError(t, err)

	created, err := svc.CreateAnimal(ctx, herd.CattleItem{IdentificationNumber: "A-003", FarmID: "f1"})
	require.NoError(t, err)

	// The new animal is served from the pre-warmed entry.
	animal, err := svc.Animal(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "A-003", animal.IdentificationNumber)
	assert.Equal(t, 0, client.count("GetCattle"))

	cattle, err := svc.Cattle(ctx, "")
	require.NoError(t, err)
	assert.Len(t, cattle, 3)
	assert.Equal(t, 2, client.count("ListCattle"))

	report, err = svc.Report(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalCattle)

	_, err = svc.Farms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, client.count("ListFarms"))

	// Unrelated categories survive.
	_, err = svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, client.count("CurrentUser"))
}

func TestService_FarmMutations(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)

	_, err := svc.Farms(ctx)
	require.NoError(t, err)
	_, err = svc.Cattle(ctx, "f1")
	require.NoError(t, err)

	updated, err := svc.UpdateFarm(ctx, "f1", herd.Farm{Name: "Greener Acres"})
	require.NoError(t, err)
	assert.Equal(t, "f1", updated.ID)

	farm, err := svc.Farm(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "Greener Acres", farm.Name)
	assert.Equal(t, 0, client.count("GetFarm"))

	farms, err := svc.Farms(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Greener Acres", farms[0].Name)
	assert.Equal(t, 2, client.count("ListFarms"))

	// Updating a farm leaves cattle lists alone; deleting it does not.
	_, err = svc.Cattle(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, client.count("ListCattle"))

	require.NoError(t, svc.DeleteFarm(ctx, "f1"))
	_, err = svc.Cattle(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 2, client.count("ListCattle"))

	_, ok := svc.Cache().Peek(herd.FarmKey("f1"))
	assert.False(t, ok)

	created, err := svc.CreateFarm(ctx, herd.Farm{Name: "Sunny Ridge"})
	require.NoError(t, err)
	entry, ok := svc.Cache().Peek(herd.FarmKey(created.ID))
	require.True(t, ok)
	assert.Equal(t, cache.DefaultFarmTTL, entry.TTL)
}

func TestService_DeleteAnimalDropsMedical(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)

	_, err := svc.MedicalRecords(ctx, "c1")
	require.NoError(t, err)
	_, err = svc.MedicalRecords(ctx, "c2")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAnimal(ctx, "c1"))

	_, ok := svc.Cache().Peek(herd.MedicalKey("c1"))
	assert.False(t, ok)
	_, ok = svc.Cache().Peek(herd.MedicalKey("c2"))
	assert.True(t, ok)
	assert.Equal(t, 2, client.count("ListMedicalRecords"))
}

func TestService_AddMedicalRecord(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)

	_, err := svc.MedicalRecords(ctx, "c1")
	require.NoError(t, err)
	_, err = svc.Report(ctx, "f1")
	require.NoError(t, err)
	_, err = svc.Cattle(ctx, "")
	require.NoError(t, err)

	rec, err := svc.AddMedicalRecord(ctx, "c1", herd.MedicalRecord{Type: "treatment"})
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.CattleID)

	_, err = svc.MedicalRecords(ctx, "c1")
	require.NoError(t, err)
	_, err = svc.Report(ctx, "f1")
	require.NoError(t, err)
	_, err = svc.Cattle(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, 2, client.count("ListMedicalRecords"))
	assert.Equal(t, 2, client.count("Report"))
	assert.Equal(t, 1, client.count("ListCattle"))

	_, err = svc.AddMedicalRecord(ctx, "", herd.MedicalRecord{})
	require.ErrorIs(t, err, herd.ErrMissingID)
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)

	require.NoError(t, svc.Warm(ctx))
	assert.Equal(t, 4, svc.Cache().Stats().EntryCount)

	svc.Logout(ctx)
	assert.Equal(t, 0, svc.Cache().Stats().EntryCount)

	_, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, client.count("CurrentUser"))
}

func TestService_Warm(t *testing.T) {
	ctx := context.Background()

	t.Run("populates", func(t *testing.T) {
		svc, client := newService(t)
		require.NoError(t, svc.Warm(ctx))

		assert.ElementsMatch(t,
			[]string{"cattle:all", "farm:list", "report:farmId=null", "user:me"},
			svc.Cache().Keys())
		assert.Equal(t, 1, client.count("Report"))
	})

	t.Run("returns first failure", func(t *testing.T) {
		svc, client := newService(t)
		boom := errors.New("report service down")
		client.failReport = boom

		err := svc.Warm(ctx)
		require.ErrorIs(t, err, boom)
		var fetchErr *cache.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, "report:farmId=null", fetchErr.Key)
		assert.Contains(t, err.Error(), "warming report")
	})
}

func TestService_ConcurrentReadsCoalesce(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)
	client.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Cattle(ctx, "f1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, client.count("ListCattle"))
}

func TestService_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	client := newFakeClient()

	first := herd.NewService(client, cache.NewManager(cache.WithStorage(store)))
	_, err := first.Farm(ctx, "f1")
	require.NoError(t, err)

	m := cache.NewManager(cache.WithStorage(store))
	restored, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	second := herd.NewService(client, m)
	farm, err := second.Farm(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "Green Acres", farm.Name)
	assert.Equal(t, 1, client.count("GetFarm"))
}

func TestService_StaleOnError(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	client := newFakeClient()

	svc := herd.NewService(client, cache.NewManager(cache.WithClock(clock)), cache.AllowStale())
	_, err := svc.Report(ctx, "")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	client.failReport = errors.New("offline")

	report, err := svc.Report(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalCattle)
	assert.Equal(t, 2, client.count("Report"))
}
