package models

import (
	"time"

	id "webdir/pkg/domain"
)

// Value is a vote's direction, stored as a smallint.
type Value int8

const (
	Up   Value = 1
	Down Value = -1
)

func (v Value) Valid() bool {
	return v == Up || v == Down
}

// Vote is one ledger row. Rows are never deleted: retraction stamps
// RetractedAt, and at most one row per (membership, voter) is active.
type Vote struct {
	ID           id.VoteID       `json:"id"`
	MembershipID id.MembershipID `json:"membership_id"`
	VoterID      id.UserID       `json:"voter_id"`
	Value        Value           `json:"value"`
	CreatedAt    time.Time       `json:"created_at"`
	RetractedAt  *time.Time      `json:"retracted_at,omitempty"`
}

func NewVote(voteID id.VoteID, membershipID id.MembershipID, voter id.UserID, value Value, now time.Time) *Vote {
	return &Vote{
		ID:           voteID,
		MembershipID: membershipID,
		VoterID:      voter,
		Value:        value,
		CreatedAt:    now,
	}
}

func (v *Vote) IsActive() bool {
	return v.RetractedAt == nil
}

// State is a voter's current position on a membership.
type State string

const (
	StateNone State = "none"
	StateUp   State = "up"
	StateDown State = "down"
)

// StateOf maps the active vote, or nil, to a State.
func StateOf(active *Vote) State {
	switch {
	case active == nil:
		return StateNone
	case active.Value == Up:
		return StateUp
	default:
		return StateDown
	}
}

// Outcome describes what a cast did to the ledger.
type Outcome string

const (
	OutcomeCast      Outcome = "cast"
	OutcomeRetracted Outcome = "retracted"
	OutcomeChanged   Outcome = "changed"
)

// Result is the voter's state and the membership's tally after a cast.
type Result struct {
	MembershipID id.MembershipID `json:"membership_id"`
	State        State           `json:"state"`
	Upvotes      int             `json:"upvotes"`
	Downvotes    int             `json:"downvotes"`
	Outcome      Outcome         `json:"-"`
}

// CastRequest is the body of a vote call.
type CastRequest struct {
	Value int `json:"value"`
}
