package models

import (
	"time"

	id "webdir/pkg/domain"
)

// Listing is one approved membership as a category page shows it.
type Listing struct {
	MembershipID id.MembershipID `json:"membership_id"`
	SiteID       id.SiteID       `json:"site_id"`
	URL          string          `json:"url"`
	Title        string          `json:"title"`
	Domain       string          `json:"domain"`
	Upvotes      int             `json:"upvotes"`
	Downvotes    int             `json:"downvotes"`
	Score        float64         `json:"score"`
	Rank         *int            `json:"rank,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SourceCategory tags a bubbled listing with the child it came from.
type SourceCategory struct {
	ID   id.CategoryID `json:"id"`
	Slug string        `json:"slug"`
	Name string        `json:"name"`
}

type BubbledListing struct {
	Listing
	Source SourceCategory `json:"source_category"`
}

// CategoryView is a category's own listings followed by the top listings
// promoted from its direct children.
type CategoryView struct {
	CategoryID id.CategoryID    `json:"category_id"`
	Direct     []Listing        `json:"direct"`
	Bubbled    []BubbledListing `json:"bubbled"`
	BuiltAt    time.Time        `json:"built_at"`
}

// Clone returns a deep copy so callers can never mutate a shared or cached view.
func (v *CategoryView) Clone() *CategoryView {
	if v == nil {
		return nil
	}
	out := *v
	out.Direct = make([]Listing, len(v.Direct))
	for i, l := range v.Direct {
		out.Direct[i] = l.clone()
	}
	out.Bubbled = make([]BubbledListing, len(v.Bubbled))
	for i, b := range v.Bubbled {
		b.Listing = b.Listing.clone()
		out.Bubbled[i] = b
	}
	return &out
}

func (l Listing) clone() Listing {
	if l.Rank != nil {
		rank := *l.Rank
		l.Rank = &rank
	}
	return l
}

// Thresholds decide which child listings bubble up.
type Thresholds struct {
	MinScore float64
	MaxRank  int
}

// Qualifies reports whether a listing with the given score and rank bubbles.
// Unranked listings never do.
func (t Thresholds) Qualifies(score float64, rank *int) bool {
	return rank != nil && score >= t.MinScore && *rank <= t.MaxRank
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinScore: 10, MaxRank: 3}
}
