package models

import (
	"time"

	id "webdir/pkg/domain"
)

const voteKeyPrefix = "rl:vote:"

// Result is the outcome of one sliding-window check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// VoteKey is the window key for a voter's cast and retract calls.
func VoteKey(voter id.UserID) string {
	return voteKeyPrefix + voter.String()
}
