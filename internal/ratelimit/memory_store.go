package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int
	resetTime time.Time
}

// MemoryStore keeps counters in process memory. Expired windows are purged
// lazily on each Hit; there is no background timer.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Hit(_ context.Context, key string, cfg Config, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(now)

	w, ok := s.windows[key]
	if !ok {
		w = &window{count: 1, resetTime: now.Add(cfg.Window)}
		s.windows[key] = w
		return Result{Allowed: true, Remaining: cfg.MaxRequests - 1, ResetTime: w.resetTime}, nil
	}

	if w.count >= cfg.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetTime: w.resetTime}, nil
	}

	w.count++
	return Result{Allowed: true, Remaining: cfg.MaxRequests - w.count, ResetTime: w.resetTime}, nil
}

// Len returns the number of live windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) purge(now time.Time) {
	for k, w := range s.windows {
		if now.After(w.resetTime) {
			delete(s.windows, k)
		}
	}
}
