package store

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// sweepEvery is how many writes pass between inline sweeps.
const sweepEvery = 1024

// Memory is an in-process KV. Expired keys are dropped lazily on access and
// by a sweep every sweepEvery writes. Suitable for single-process
// deployments only.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]memoryItem
	writes int
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expiresAt.Equal(item.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: make([]byte, len(value))}
	copy(item.value, value)
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = item
	m.writes++
	if m.writes%sweepEvery == 0 {
		m.sweepLocked(m.now())
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Sweep removes every expired key and returns how many were dropped.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

func (m *Memory) sweepLocked(now time.Time) int {
	n := 0
	for k, item := range m.items {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
