package models

import (
	"time"

	id "webdir/pkg/domain"
)

// Level is a submitter's standing, derived from karma and the moderator flag.
type Level string

const (
	LevelUntrusted Level = "untrusted"
	LevelTrusted   Level = "trusted"
	LevelModerator Level = "moderator"
)

// Decision is the Trust Gate outcome for a new membership.
type Decision string

const (
	DecisionQueue   Decision = "queue"
	DecisionPublish Decision = "publish"
)

// Profile is the reputation input owned by the external karma system.
type Profile struct {
	UserID      id.UserID `json:"user_id"`
	Karma       int       `json:"karma"`
	IsModerator bool      `json:"is_moderator"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LevelFor derives the trust level: the moderator flag wins, then karma at or
// above trustedKarma makes a submitter trusted.
func LevelFor(p Profile, trustedKarma int) Level {
	switch {
	case p.IsModerator:
		return LevelModerator
	case p.Karma >= trustedKarma:
		return LevelTrusted
	default:
		return LevelUntrusted
	}
}

// Gate maps a level to the initial membership outcome.
func Gate(level Level) Decision {
	if level == LevelTrusted || level == LevelModerator {
		return DecisionPublish
	}
	return DecisionQueue
}
