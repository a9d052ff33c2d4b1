// Package lock keeps one in-flight review per user.
package lock

import (
	"context"
	"sync"
	"time"
)

// Registry is a per-user mutual-exclusion flag.
type Registry interface {
	IsLocked(ctx context.Context, userID int64) (bool, error)
	// TryLock takes the user's lock and reports whether it was free.
	TryLock(ctx context.Context, userID int64) (bool, error)
	Unlock(ctx context.Context, userID int64) error
}

// Memory is a process-local Registry. Locks do not survive a restart.
// With a non-zero TTL a lock expires on its own; Sweep drops expired entries.
type Memory struct {
	mu    sync.Mutex
	held  map[int64]time.Time
	ttl   time.Duration
	nowFn func() time.Time
}

var _ Registry = (*Memory)(nil)

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		held:  make(map[int64]time.Time),
		ttl:   ttl,
		nowFn: time.Now,
	}
}

func (m *Memory) expired(until time.Time, now time.Time) bool {
	return !until.IsZero() && !now.Before(until)
}

func (m *Memory) IsLocked(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.held[userID]
	if !ok {
		return false, nil
	}
	if m.expired(until, m.nowFn()) {
		delete(m.held, userID)
		return false, nil
	}
	return true, nil
}

func (m *Memory) TryLock(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	if until, ok := m.held[userID]; ok && !m.expired(until, now) {
		return false, nil
	}
	var until time.Time
	if m.ttl > 0 {
		until = now.Add(m.ttl)
	}
	m.held[userID] = until
	return true, nil
}

func (m *Memory) Unlock(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, userID)
	return nil
}

// Sweep removes expired leases and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	n := 0
	for id, until := range m.held {
		if m.expired(until, now) {
			delete(m.held, id)
			n++
		}
	}
	return n
}

// Len returns the number of held locks.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
