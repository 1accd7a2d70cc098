// Package ratelimit provides fixed-window limiters keyed by caller. The memory
// limiter is per process; the redis one is shared by every API replica.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	clients map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count     int
	windowEnd time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		window:  window,
		clients: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.clients[key]
	if !ok || now.After(b.windowEnd) {
		m.clients[key] = &bucket{count: 1, windowEnd: now.Add(m.window)}
		m.sweep(now)
		return Decision{Allowed: true, Remaining: m.limit - 1}, nil
	}

	if b.count >= m.limit {
		return Decision{RetryAfter: b.windowEnd.Sub(now)}, nil
	}

	b.count++
	return Decision{Allowed: true, Remaining: m.limit - b.count}, nil
}

// sweep drops expired buckets once the map grows, so idle clients do not
// accumulate.
func (m *Memory) sweep(now time.Time) {
	if len(m.clients) < 1024 {
		return
	}
	for k, b := range m.clients {
		if now.After(b.windowEnd) {
			delete(m.clients, k)
		}
	}
}
