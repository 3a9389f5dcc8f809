package store

import (
	"context"
	"fmt"
	"sync"

	"webdir/internal/site/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
)

// InMemory keeps sites in process. Read-modify-write sequences rely on the
// service's transaction runner for isolation.
type InMemory struct {
	mu    sync.RWMutex
	sites map[id.SiteID]*models.Site
	urls  map[string]id.SiteID
}

func NewInMemory() *InMemory {
	return &InMemory{
		sites: make(map[id.SiteID]*models.Site),
		urls:  make(map[string]id.SiteID),
	}
}

func (s *InMemory) Create(_ context.Context, site *models.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.urls[site.URL]; taken {
		return fmt.Errorf("site url: %w", sentinel.ErrConflict)
	}
	cp := *site
	s.sites[site.ID] = &cp
	s.urls[site.URL] = site.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, siteID id.SiteID) (*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *site
	return &cp, nil
}

// FindByIDForUpdate is FindByID; the in-memory runner already serializes the caller.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, siteID id.SiteID) (*models.Site, error) {
	return s.FindByID(ctx, siteID)
}

func (s *InMemory) FindByURL(_ context.Context, url string) (*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	siteID, ok := s.urls[url]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.sites[siteID]
	return &cp, nil
}

func (s *InMemory) Update(_ context.Context, site *models.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[site.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *site
	s.sites[site.ID] = &cp
	return nil
}

func (s *InMemory) ListByStatus(_ context.Context, status models.Status, limit int) ([]*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Site
	for _, site := range s.sites {
		if site.Status == status {
			cp := *site
			out = append(out, &cp)
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
