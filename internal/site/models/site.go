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
	StatusDead     Status = "dead"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDead:
		return true
	}
	return false
}

// Site is a submitted URL, shared by every category it is listed in.
//
// Invariants:
//   - URL is normalized and unique across sites
//   - FailureCount counts consecutive failed health checks; any success resets it
//   - Dead is sticky: only Revive leaves it, never a successful check
type Site struct {
	ID            id.SiteID  `json:"id"`
	URL           string     `json:"url"`
	Domain        string     `json:"domain"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	SubmitterID   id.UserID  `json:"submitter_id"`
	Status        Status     `json:"status"`
	FailureCount  int        `json:"failure_count"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewSite(siteID id.SiteID, rawURL, title, description string, submitter id.UserID, now time.Time) (*Site, error) {
	normalized, domain, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if len(title) > 256 {
		return nil, dErrors.New(dErrors.CodeValidation, "title must be 256 characters or less")
	}
	if len(description) > 2048 {
		return nil, dErrors.New(dErrors.CodeValidation, "description must be 2048 characters or less")
	}
	return &Site{
		ID:          siteID,
		URL:         normalized,
		Domain:      domain,
		Title:       title,
		Description: description,
		SubmitterID: submitter,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *Site) IsDead() bool {
	return s.Status == StatusDead
}

// ApplyCheckResult advances the health state machine and reports whether this
// check moved the site to dead.
func (s *Site) ApplyCheckResult(success bool, deadThreshold int, now time.Time) bool {
	s.LastCheckedAt = &now
	s.UpdatedAt = now
	if success {
		s.FailureCount = 0
		return false
	}
	s.FailureCount++
	if s.FailureCount >= deadThreshold && s.Status != StatusDead {
		s.Status = StatusDead
		return true
	}
	return false
}

func (s *Site) CanRevive() error {
	if s.Status != StatusDead {
		return dErrors.New(dErrors.CodeInvariantViolation, "only dead sites can be revived")
	}
	return nil
}

// ApplyRevive returns a dead site to the directory with a clean failure history.
func (s *Site) ApplyRevive(now time.Time) {
	s.Status = StatusApproved
	s.FailureCount = 0
	s.UpdatedAt = now
}

// ApplyMembershipApproved lists a pending or previously rejected site once any
// of its memberships is approved. Dead sites stay dead.
func (s *Site) ApplyMembershipApproved(now time.Time) bool {
	if s.Status != StatusPending && s.Status != StatusRejected {
		return false
	}
	s.Status = StatusApproved
	s.UpdatedAt = now
	return true
}

// ApplyMembershipRejected rejects a pending site when no other membership keeps it alive.
func (s *Site) ApplyMembershipRejected(hasLiveMembership bool, now time.Time) bool {
	if s.Status != StatusPending || hasLiveMembership {
		return false
	}
	s.Status = StatusRejected
	s.UpdatedAt = now
	return true
}
