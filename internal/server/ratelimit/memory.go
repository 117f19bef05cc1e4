package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a sliding-window limiter for a single process. Its state
// is lost on restart and not shared between instances; use RedisLimiter
// when more than one server runs.
type MemoryLimiter struct {
	mu    sync.Mutex
	rules Rules
	hits  map[string][]time.Time
	now   func() time.Time
}

func NewMemoryLimiter(rules Rules) *MemoryLimiter {
	return &MemoryLimiter{rules: rules, hits: make(map[string][]time.Time), now: time.Now}
}

func (m *MemoryLimiter) Allow(_ context.Context, bucket Bucket, key string) (bool, error) {
	rule, ok := m.rules[bucket]
	if !ok || rule.Limit <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := string(bucket) + ":" + key
	recent := keepAfter(m.hits[k], now.Add(-rule.Window))
	if len(recent) >= rule.Limit {
		m.hits[k] = recent
		return false, nil
	}
	m.hits[k] = append(recent, now)
	return true, nil
}

// Prune drops keys with no hit inside their bucket window.
func (m *MemoryLimiter) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, hits := range m.hits {
		var window time.Duration
		for b, r := range m.rules {
			if len(k) > len(b) && k[:len(b)+1] == string(b)+":" {
				window = r.Window
				break
			}
		}
		recent := keepAfter(hits, now.Add(-window))
		if len(recent) == 0 {
			delete(m.hits, k)
		} else {
			m.hits[k] = recent
		}
	}
}

// Run prunes every interval until ctx is done.
func (m *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Prune()
		}
	}
}

func keepAfter(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
