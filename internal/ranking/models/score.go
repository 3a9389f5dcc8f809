// Package models holds the time-decay scoring used to rank a category.
package models

import (
	"math"
	"slices"
	"time"

	mmodels "webdir/internal/membership/models"
	id "webdir/pkg/domain"
)

// Gravity is the exponent applied to age in days.
const Gravity = 1.8

// Score is (up - down) / (1 + age_days^Gravity). Age is fractional days
// since creation, floored at zero so future timestamps never inflate a score.
func Score(upvotes, downvotes int, createdAt, now time.Time) float64 {
	age := max(now.Sub(createdAt).Hours()/24, 0)
	return float64(upvotes-downvotes) / (1 + math.Pow(age, Gravity))
}

// Rank scores every membership at now and assigns dense 1-indexed ranks in
// score order. The input slice is not modified.
func Rank(memberships []*mmodels.Membership, now time.Time) []mmodels.RankUpdate {
	scored := make([]*mmodels.Membership, 0, len(memberships))
	for _, m := range memberships {
		cp := *m
		cp.Score = Score(m.Upvotes, m.Downvotes, m.CreatedAt, now)
		scored = append(scored, &cp)
	}
	slices.SortFunc(scored, mmodels.CompareByScore)

	updates := make([]mmodels.RankUpdate, len(scored))
	for i, m := range scored {
		updates[i] = mmodels.RankUpdate{MembershipID: m.ID, Score: m.Score, Rank: i + 1}
	}
	return updates
}

// RunResult summarizes one category's recalculation.
type RunResult struct {
	CategoryID id.CategoryID `json:"category_id"`
	Ranked     int           `json:"ranked"`
	RankedAt   time.Time     `json:"ranked_at"`
}

// Summary summarizes a pass over every active category.
type Summary struct {
	Categories int       `json:"categories"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	RankedAt   time.Time `json:"ranked_at"`
}
