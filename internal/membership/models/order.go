package models

import (
	"bytes"
	"cmp"
)

// CompareByScore is the ranking order: score descending, earlier creation
// first on ties, then membership ID so the order is total.
func CompareByScore(a, b *Membership) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

// CompareByRank orders ranked memberships first by rank, unranked ones last
// in score order.
func CompareByRank(a, b *Membership) int {
	switch {
	case a.Rank != nil && b.Rank != nil:
		if c := cmp.Compare(*a.Rank, *b.Rank); c != 0 {
			return c
		}
	case a.Rank != nil:
		return -1
	case b.Rank != nil:
		return 1
	}
	return CompareByScore(a, b)
}
