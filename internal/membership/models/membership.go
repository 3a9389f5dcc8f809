package models

import (
	"time"

	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CanTransitionTo encodes the moderation state machine: pending is the only
// state with outgoing transitions, to approved or rejected.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// Membership is a site's listing in one category, with that category's
// independent tally and rank.
//
// Invariants:
//   - At most one membership per (site, category)
//   - Upvotes and Downvotes equal the active +1 and -1 votes; only the vote
//     ledger writes them
//   - Score, Rank and RankedAt are written only by rank recalculation
//   - Rank is nil until the first recalculation after approval
type Membership struct {
	ID          id.MembershipID `json:"id"`
	SiteID      id.SiteID       `json:"site_id"`
	CategoryID  id.CategoryID   `json:"category_id"`
	SubmitterID id.UserID       `json:"submitter_id"`
	Status      Status          `json:"status"`
	Upvotes     int             `json:"upvotes"`
	Downvotes   int             `json:"downvotes"`
	Score       float64         `json:"score"`
	Rank        *int            `json:"rank,omitempty"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
	DecidedBy   *id.UserID      `json:"decided_by,omitempty"`
	RankedAt    *time.Time      `json:"ranked_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewMembership(membershipID id.MembershipID, siteID id.SiteID, categoryID id.CategoryID, submitter id.UserID, status Status, now time.Time) *Membership {
	m := &Membership{
		ID:          membershipID,
		SiteID:      siteID,
		CategoryID:  categoryID,
		SubmitterID: submitter,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == StatusApproved {
		m.DecidedAt = &now
	}
	return m
}

func (m *Membership) IsApproved() bool {
	return m.Status == StatusApproved
}

// Net is the vote differential the time-decay score is built from.
func (m *Membership) Net() int {
	return m.Upvotes - m.Downvotes
}

func (m *Membership) CanDecide(next Status) error {
	if !m.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation, "membership is not pending moderation")
	}
	return nil
}

// ApplyDecision records a moderator's approve or reject. Call CanDecide first.
func (m *Membership) ApplyDecision(next Status, moderator id.UserID, now time.Time) {
	m.Status = next
	m.DecidedAt = &now
	m.DecidedBy = &moderator
	m.UpdatedAt = now
}

// RankUpdate is one row of a category's recalculated ranking.
type RankUpdate struct {
	MembershipID id.MembershipID
	Score        float64
	Rank         int
}

// RankingPage is one page of a category's ranked, approved memberships.
type RankingPage struct {
	CategoryID id.CategoryID  `json:"category_id"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int            `json:"total"`
	Items      []RankingEntry `json:"items"`
}

// RankingEntry is a membership with the site fields a listing shows.
type RankingEntry struct {
	*Membership
	URL    string `json:"url"`
	Title  string `json:"title"`
	Domain string `json:"domain"`
}
