package store

import (
	"context"
	"sync"
	"time"
)

// MemoryRateLimiter is a per-process sliding-window limiter.
type MemoryRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

func (l *MemoryRateLimiter) Window() time.Duration {
	return l.window
}

// Allow records a hit for key if it is under the limit. When the key is over
// the limit, the returned duration is how long until the oldest hit expires.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.live(l.hits[key], now)
	if len(hits) >= l.limit {
		l.hits[key] = hits
		return false, hits[0].Add(l.window).Sub(now), nil
	}
	l.hits[key] = append(hits, now)
	return true, 0, nil
}

// Sweep drops keys whose hits have all expired and returns how many remain.
func (l *MemoryRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, hits := range l.hits {
		hits = l.live(hits, now)
		if len(hits) == 0 {
			delete(l.hits, key)
			continue
		}
		l.hits[key] = hits
	}
	return len(l.hits)
}

func (l *MemoryRateLimiter) live(hits []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// MemorySessionSet remembers processed payment sessions. Once it holds more
// than capacity ids it keeps only the retain most recently marked.
type MemorySessionSet struct {
	capacity int
	retain   int

	mu    sync.Mutex
	order []string
	ids   map[string]struct{}
}

func NewMemorySessionSet(capacity, retain int) *MemorySessionSet {
	return &MemorySessionSet{
		capacity: capacity,
		retain:   retain,
		ids:      make(map[string]struct{}),
	}
}

func (s *MemorySessionSet) Seen(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[sessionID]
	return ok, nil
}

func (s *MemorySessionSet) Mark(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[sessionID]; ok {
		return nil
	}
	s.ids[sessionID] = struct{}{}
	s.order = append(s.order, sessionID)

	if len(s.order) > s.capacity {
		drop := len(s.order) - s.retain
		for _, id := range s.order[:drop] {
			delete(s.ids, id)
		}
		s.order = append([]string(nil), s.order[drop:]...)
	}
	return nil
}

func (s *MemorySessionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
