package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"webdir/internal/category/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
)

// InMemory keeps the category tree in process.
type InMemory struct {
	mu         sync.RWMutex
	categories map[id.CategoryID]*models.Category
	slugs      map[string]id.CategoryID
}

func NewInMemory() *InMemory {
	return &InMemory{
		categories: make(map[id.CategoryID]*models.Category),
		slugs:      make(map[string]id.CategoryID),
	}
}

func (s *InMemory) Create(_ context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.slugs[c.Slug]; taken {
		return fmt.Errorf("slug %q: %w", c.Slug, sentinel.ErrConflict)
	}
	if _, exists := s.categories[c.ID]; exists {
		return fmt.Errorf("category %s: %w", c.ID, sentinel.ErrConflict)
	}
	if c.ParentID != nil {
		if _, ok := s.categories[*c.ParentID]; !ok {
			return fmt.Errorf("parent %s: %w", c.ParentID, sentinel.ErrNotFound)
		}
	}
	cp := *c
	s.categories[c.ID] = &cp
	s.slugs[c.Slug] = c.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, categoryID id.CategoryID) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[categoryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindBySlug(_ context.Context, slug string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categoryID, ok := s.slugs[slug]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.categories[categoryID]
	return &cp, nil
}

func (s *InMemory) ListChildren(_ context.Context, parentID id.CategoryID) ([]*models.Category, error) {
	return s.collect(func(c *models.Category) bool {
		return c.ParentID != nil && *c.ParentID == parentID
	}), nil
}

func (s *InMemory) ListRoots(_ context.Context) ([]*models.Category, error) {
	return s.collect(func(c *models.Category) bool { return c.IsRoot() }), nil
}

func (s *InMemory) ListActive(_ context.Context) ([]*models.Category, error) {
	return s.collect(func(c *models.Category) bool { return c.Active }), nil
}

func (s *InMemory) collect(match func(*models.Category) bool) []*models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Category
	for _, c := range s.categories {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, models.CompareSiblings)
	return out
}

func (s *InMemory) Delete(_ context.Context, categoryID id.CategoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[categoryID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, other := range s.categories {
		if other.ParentID != nil && *other.ParentID == categoryID {
			return sentinel.ErrHasChildren
		}
	}
	delete(s.slugs, c.Slug)
	delete(s.categories, categoryID)
	return nil
}

func (s *InMemory) SetActive(_ context.Context, categoryID id.CategoryID, active bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[categoryID]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Active = active
	c.UpdatedAt = now
	return nil
}

// AddLinkCount adjusts the cached link count, flooring at zero.
func (s *InMemory) AddLinkCount(_ context.Context, categoryID id.CategoryID, delta int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[categoryID]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.LinkCount = max(c.LinkCount+delta, 0)
	c.UpdatedAt = now
	return nil
}
