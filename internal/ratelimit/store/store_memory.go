package store

import (
	"context"
	"sync"
	"time"

	"webdir/internal/ratelimit/models"
	"webdir/pkg/requestcontext"
)

// sweepInterval is how often Allow evicts keys whose windows have emptied.
const sweepInterval = time.Minute

// InMemory is a per-process sliding window. It is the local fallback when
// Redis is unavailable and the only store when Redis is not configured.
type InMemory struct {
	mu        sync.Mutex
	windows   map[string]*slidingWindow
	lastSweep time.Time
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

func NewInMemory() *InMemory {
	return &InMemory{windows: make(map[string]*slidingWindow)}
}

// Allow records one event for key if fewer than limit events fall inside the
// window ending at the request time.
func (s *InMemory) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	w := s.windowFor(key, window)
	w.cleanup(now)

	if len(w.timestamps) < limit {
		w.timestamps = append(w.timestamps, now)
		return &models.Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(w.timestamps),
			ResetAt:   w.timestamps[0].Add(window),
		}, nil
	}

	resetAt := w.timestamps[0].Add(window)
	return &models.Result{
		Allowed:    false,
		Limit:      limit,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
	}, nil
}

func (s *InMemory) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// cleanup drops timestamps at or before now-window.
func (w *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}

// sweep drops every key with no events left in its window so idle voters do
// not accumulate. Must be called with s.mu held.
func (s *InMemory) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, w := range s.windows {
		w.cleanup(now)
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
		}
	}
}

// windowFor must be called with s.mu held.
func (s *InMemory) windowFor(key string, window time.Duration) *slidingWindow {
	if w := s.windows[key]; w != nil {
		w.window = window
		return w
	}
	w := &slidingWindow{window: window}
	s.windows[key] = w
	return w
}
