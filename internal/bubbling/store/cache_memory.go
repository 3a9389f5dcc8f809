package store

import (
	"context"
	"sync"
	"time"

	"webdir/internal/bubbling/models"
	id "webdir/pkg/domain"
)

type entry struct {
	view      *models.CategoryView
	expiresAt time.Time
}

// MemoryCache is a per-process TTL cache. Expired entries are dropped on read.
// Views are copied on the way in and out so a caller never shares the cached one.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[id.CategoryID]entry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[id.CategoryID]entry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, categoryID id.CategoryID) (*models.CategoryView, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[categoryID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, still := c.entries[categoryID]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, categoryID)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.view.Clone(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, view *models.CategoryView, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[view.CategoryID] = entry{view: view.Clone(), expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, categoryID id.CategoryID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, categoryID)
	return nil
}
