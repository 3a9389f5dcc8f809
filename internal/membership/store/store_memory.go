package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"webdir/internal/membership/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
)

type pairKey struct {
	site     id.SiteID
	category id.CategoryID
}

// InMemory keeps memberships in process. Every write touches only its own
// field group, mirroring the partial-column updates of the Postgres store.
type InMemory struct {
	mu          sync.RWMutex
	memberships map[id.MembershipID]*models.Membership
	pairs       map[pairKey]id.MembershipID
}

func NewInMemory() *InMemory {
	return &InMemory{
		memberships: make(map[id.MembershipID]*models.Membership),
		pairs:       make(map[pairKey]id.MembershipID),
	}
}

func (s *InMemory) Create(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{site: m.SiteID, category: m.CategoryID}
	if _, taken := s.pairs[key]; taken {
		return fmt.Errorf("membership for site and category: %w", sentinel.ErrConflict)
	}
	s.memberships[m.ID] = clone(m)
	s.pairs[key] = m.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, membershipID id.MembershipID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(m), nil
}

// FindByIDForUpdate is FindByID; the in-memory runner already serializes the caller.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error) {
	return s.FindByID(ctx, membershipID)
}

func (s *InMemory) FindBySiteAndCategory(_ context.Context, siteID id.SiteID, categoryID id.CategoryID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	membershipID, ok := s.pairs[pairKey{site: siteID, category: categoryID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.memberships[membershipID]), nil
}

// UpdateStatus writes the moderation fields only.
func (s *InMemory) UpdateStatus(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.memberships[m.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.Status = m.Status
	stored.DecidedAt = m.DecidedAt
	stored.DecidedBy = m.DecidedBy
	stored.UpdatedAt = m.UpdatedAt
	return nil
}

// UpdateTally writes the vote fields only.
func (s *InMemory) UpdateTally(_ context.Context, membershipID id.MembershipID, upvotes, downvotes int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.memberships[membershipID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.Upvotes = upvotes
	stored.Downvotes = downvotes
	stored.UpdatedAt = now
	return nil
}

// ApplyRanking writes score and rank for one category in a single critical
// section and clears ranks of memberships that are no longer approved.
func (s *InMemory) ApplyRanking(_ context.Context, categoryID id.CategoryID, updates []models.RankUpdate, rankedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		stored, ok := s.memberships[u.MembershipID]
		if !ok || stored.CategoryID != categoryID || !stored.IsApproved() {
			continue
		}
		rank := u.Rank
		stored.Score = u.Score
		stored.Rank = &rank
		stored.RankedAt = &rankedAt
	}
	for _, stored := range s.memberships {
		if stored.CategoryID == categoryID && !stored.IsApproved() {
			stored.Rank = nil
		}
	}
	return nil
}

// ListApprovedByCategory returns approved memberships in score order.
func (s *InMemory) ListApprovedByCategory(_ context.Context, categoryID id.CategoryID) ([]*models.Membership, error) {
	out := s.collect(func(m *models.Membership) bool {
		return m.CategoryID == categoryID && m.IsApproved()
	})
	slices.SortFunc(out, models.CompareByScore)
	return out, nil
}

// ListRanked pages through approved memberships in rank order.
func (s *InMemory) ListRanked(_ context.Context, categoryID id.CategoryID, offset, limit int) ([]*models.Membership, int, error) {
	all := s.collect(func(m *models.Membership) bool {
		return m.CategoryID == categoryID && m.IsApproved()
	})
	slices.SortFunc(all, models.CompareByRank)
	total := len(all)
	if offset < 0 || limit < 0 {
		return nil, 0, fmt.Errorf("list ranked: negative offset or limit: %w", sentinel.ErrInvalidState)
	}
	if offset >= total {
		return nil, total, nil
	}
	return all[offset : offset+min(limit, total-offset)], total, nil
}

// ListBubbleCandidates returns approved memberships of the given categories
// with score >= minScore and a rank no worse than maxRank, in score order.
func (s *InMemory) ListBubbleCandidates(_ context.Context, categoryIDs []id.CategoryID, minScore float64, maxRank int) ([]*models.Membership, error) {
	out := s.collect(func(m *models.Membership) bool {
		return slices.Contains(categoryIDs, m.CategoryID) &&
			m.IsApproved() &&
			m.Score >= minScore &&
			m.Rank != nil && *m.Rank <= maxRank
	})
	slices.SortFunc(out, models.CompareByScore)
	return out, nil
}

// ListPending returns the moderation queue oldest first; a nil category lists all.
func (s *InMemory) ListPending(_ context.Context, categoryID *id.CategoryID, limit int) ([]*models.Membership, error) {
	out := s.collect(func(m *models.Membership) bool {
		return m.Status == models.StatusPending && (categoryID == nil || m.CategoryID == *categoryID)
	})
	slices.SortFunc(out, func(a, b *models.Membership) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) CountByCategory(_ context.Context, categoryID id.CategoryID) (int, error) {
	return len(s.collect(func(m *models.Membership) bool { return m.CategoryID == categoryID })), nil
}

// CountLiveBySite counts pending or approved memberships of a site, excluding one.
func (s *InMemory) CountLiveBySite(_ context.Context, siteID id.SiteID, exclude id.MembershipID) (int, error) {
	return len(s.collect(func(m *models.Membership) bool {
		return m.SiteID == siteID && m.ID != exclude && m.Status != models.StatusRejected
	})), nil
}

func (s *InMemory) collect(match func(*models.Membership) bool) []*models.Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Membership
	for _, m := range s.memberships {
		if match(m) {
			out = append(out, clone(m))
		}
	}
	return out
}

func clone(m *models.Membership) *models.Membership {
	cp := *m
	if m.Rank != nil {
		r := *m.Rank
		cp.Rank = &r
	}
	return &cp
}
