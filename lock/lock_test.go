package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockUnlock(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	locked, err := m.IsLocked(ctx, 1)
	require.NoError(t, err)
	assert.False(t, locked)

	ok, err := m.TryLock(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TryLock(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, _ = m.IsLocked(ctx, 1)
	assert.True(t, locked)

	other, _ := m.IsLocked(ctx, 2)
	assert.False(t, other)

	require.NoError(t, m.Unlock(ctx, 1))
	require.NoError(t, m.Unlock(ctx, 1))
	locked, _ = m.IsLocked(ctx, 1)
	assert.False(t, locked)
}

func TestMemoryTryLockConcurrent(t *testing.T) {
	m := NewMemory(0)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.TryLock(context.Background(), 5); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryLeaseExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.nowFn = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := m.TryLock(ctx, 1)
	require.True(t, ok)
	ok, _ = m.TryLock(ctx, 2)
	require.True(t, ok)

	now = now.Add(59 * time.Minute)
	locked, _ := m.IsLocked(ctx, 1)
	assert.True(t, locked)
	assert.Equal(t, 0, m.Sweep())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, m.Sweep())
	assert.Equal(t, 0, m.Len())

	ok, _ = m.TryLock(ctx, 1)
	assert.True(t, ok)
}
