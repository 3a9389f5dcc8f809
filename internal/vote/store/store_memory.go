package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"webdir/internal/vote/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
)

type activeKey struct {
	membership id.MembershipID
	voter      id.UserID
}

// InMemory is the vote ledger held in process. The active index plays the
// role of the partial unique index in Postgres.
type InMemory struct {
	mu           sync.RWMutex
	votes        map[id.VoteID]*models.Vote
	byMembership map[id.MembershipID][]id.VoteID
	active       map[activeKey]id.VoteID
}

func NewInMemory() *InMemory {
	return &InMemory{
		votes:        make(map[id.VoteID]*models.Vote),
		byMembership: make(map[id.MembershipID][]id.VoteID),
		active:       make(map[activeKey]id.VoteID),
	}
}

func (s *InMemory) Insert(_ context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := activeKey{membership: v.MembershipID, voter: v.VoterID}
	if _, taken := s.active[key]; taken {
		return fmt.Errorf("active vote for membership and voter: %w", sentinel.ErrConflict)
	}
	if _, exists := s.votes[v.ID]; exists {
		return fmt.Errorf("vote id: %w", sentinel.ErrConflict)
	}
	cp := *v
	s.votes[v.ID] = &cp
	s.byMembership[v.MembershipID] = append(s.byMembership[v.MembershipID], v.ID)
	if v.IsActive() {
		s.active[key] = v.ID
	}
	return nil
}

func (s *InMemory) FindActive(_ context.Context, membershipID id.MembershipID, voter id.UserID) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voteID, ok := s.active[activeKey{membership: membershipID, voter: voter}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.votes[voteID]
	return &cp, nil
}

// Retract stamps an active vote. Retracting twice is ErrNotFound.
func (s *InMemory) Retract(_ context.Context, voteID id.VoteID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteID]
	if !ok || !v.IsActive() {
		return sentinel.ErrNotFound
	}
	v.RetractedAt = &now
	delete(s.active, activeKey{membership: v.MembershipID, voter: v.VoterID})
	return nil
}

// Tally counts active up and down votes of a membership.
func (s *InMemory) Tally(_ context.Context, membershipID id.MembershipID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var up, down int
	for _, voteID := range s.byMembership[membershipID] {
		v := s.votes[voteID]
		if !v.IsActive() {
			continue
		}
		if v.Value == models.Up {
			up++
		} else {
			down++
		}
	}
	return up, down, nil
}

// History lists every vote row of a membership in creation order.
func (s *InMemory) History(_ context.Context, membershipID id.MembershipID) ([]*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Vote, 0, len(s.byMembership[membershipID]))
	for _, voteID := range s.byMembership[membershipID] {
		cp := *s.votes[voteID]
		out = append(out, &cp)
	}
	slices.SortStableFunc(out, func(a, b *models.Vote) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}
