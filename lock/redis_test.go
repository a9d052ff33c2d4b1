package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const isolatedLockTestRedisDB = 13

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: isolatedLockTestRedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestRedisLockUnlock(t *testing.T) {
	r := NewRedis(newTestRedis(t), time.Minute)
	ctx := context.Background()

	ok, err := r.TryLock(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryLock(ctx, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := r.IsLocked(ctx, 100)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, r.Unlock(ctx, 100))
	locked, err = r.IsLocked(ctx, 100)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRedisLeaseExpires(t *testing.T) {
	r := NewRedis(newTestRedis(t), 200*time.Millisecond)
	ctx := context.Background()

	ok, err := r.TryLock(ctx, 101)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		locked, err := r.IsLocked(ctx, 101)
		return err == nil && !locked
	}, 2*time.Second, 50*time.Millisecond)
}
