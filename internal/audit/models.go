package audit

import (
	"time"

	id "webdir/pkg/domain"
)

// Action names a directory event worth keeping an audit trail for.
type Action string

const (
	ActionSiteSubmitted        Action = "site_submitted"
	ActionMembershipApproved   Action = "membership_approved"
	ActionMembershipRejected   Action = "membership_rejected"
	ActionVoteCast             Action = "vote_cast"
	ActionVoteRetracted        Action = "vote_retracted"
	ActionSiteMarkedDead       Action = "site_marked_dead"
	ActionSiteRevived          Action = "site_revived"
	ActionCategoryCreated      Action = "category_created"
	ActionCategoryDeleted      Action = "category_deleted"
	ActionCategoryRecalculated Action = "category_recalculated"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. ActorID is nil for
// system jobs such as the rank worker.
type Event struct {
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   id.UserID `json:"actor_id"`
	Subject   string    `json:"subject"`
	Category  string    `json:"category_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}
