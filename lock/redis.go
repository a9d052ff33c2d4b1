package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "essay:lock:user:"

// Redis is a Registry backed by SETNX leases, shared by every bot instance
// pointing at the same redis. A zero TTL means the lease never expires.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Registry = (*Redis)(nil)

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func lockKey(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

func (r *Redis) IsLocked(ctx context.Context, userID int64) (bool, error) {
	n, err := r.client.Exists(ctx, lockKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("lock: exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) TryLock(ctx context.Context, userID int64) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(userID), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock: setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) Unlock(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, lockKey(userID)).Err(); err != nil {
		return fmt.Errorf("lock: del: %w", err)
	}
	return nil
}
