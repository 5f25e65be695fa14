package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versionCount(m *Manager) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions)
}

func TestManager_VersionCountersArePruned(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	m := NewManager(WithClock(func() time.Time { return now }))

	for i := range 50 {
		key := fmt.Sprintf("cattle:c%d", i)
		require.NoError(t, m.Set(ctx, key, i, time.Minute))
		m.Invalidate(ctx, key)
	}
	assert.Equal(t, 0, versionCount(m))

	for i := range 10 {
		_, err := m.Get(ctx, fmt.Sprintf("farm:f%d", i), func(context.Context) (any, error) {
			return i, nil
		}, time.Second)
		require.NoError(t, err)
	}
	m.Clear(ctx)
	assert.Equal(t, 0, versionCount(m))

	require.NoError(t, m.Set(ctx, "user:me", "me", time.Second))
	now = now.Add(time.Minute)
	assert.Equal(t, 1, m.CleanupExpired(ctx))
	assert.Equal(t, 0, versionCount(m))
}

func TestManager_VersionKeptWhileFetchInFlight(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Get(ctx, "cattle:all", func(context.Context) (any, error) {
			close(started)
			<-release
			return "old", nil
		}, time.Minute)
	}()
	<-started

	m.Invalidate(ctx, "cattle")
	assert.Equal(t, 1, versionCount(m))

	close(release)
	<-done
	_, ok := m.Peek("cattle:all")
	assert.False(t, ok)
	assert.Equal(t, 0, versionCount(m))
}
