package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process memory. Suitable for the advisory
// limiter and for tests; it is not shared across replicas.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]time.Time
	swept  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]time.Time)}
}

func (s *MemoryStore) Record(ctx context.Context, key string, now time.Time, ceiling int, window time.Duration) (Decision, error) {
	d, _, err := s.RecordAll(ctx, []string{key}, []int{ceiling}, now, window)
	return d, err
}

func (s *MemoryStore) RecordAll(_ context.Context, keys []string, ceilings []int, now time.Time, window time.Duration) (Decision, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.swept) >= window {
		s.sweep(now, window)
	}
	cutoff := now.Add(-window)
	for i, key := range keys {
		kept := s.events[key][:0]
		for _, at := range s.events[key] {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}
		s.events[key] = kept
		if len(kept) >= ceilings[i] {
			return Decision{Count: len(kept), RetryAfter: kept[0].Add(window).Sub(now)}, i, nil
		}
	}
	count := 0
	for i, key := range keys {
		s.events[key] = append(s.events[key], now)
		if i == 0 {
			count = len(s.events[key])
		}
	}
	return Decision{Allowed: true, Count: count}, -1, nil
}

// Sweep drops keys whose events all fell out of window.
// RecordAll calls it at most once per window.
func (s *MemoryStore) Sweep(now time.Time, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now, window)
}

func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	s.swept = now
	cutoff := now.Add(-window)
	for key, events := range s.events {
		if len(events) == 0 || !events[len(events)-1].After(cutoff) {
			delete(s.events, key)
		}
	}
}
