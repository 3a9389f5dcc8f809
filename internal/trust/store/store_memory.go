package store

import (
	"context"
	"sync"
	"time"

	"webdir/internal/trust/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.UserID]models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.UserID]models.Profile)}
}

func (s *InMemory) Get(_ context.Context, userID id.UserID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) AdjustKarma(_ context.Context, userID id.UserID, delta int, now time.Time) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	p.UserID = userID
	p.Karma += delta
	p.UpdatedAt = now
	s.profiles[userID] = p
	return &p, nil
}

func (s *InMemory) SetModerator(_ context.Context, userID id.UserID, moderator bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	p.UserID = userID
	p.IsModerator = moderator
	p.UpdatedAt = now
	s.profiles[userID] = p
	return nil
}
