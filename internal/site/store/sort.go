package store

import (
	"slices"

	"webdir/internal/site/models"
)

func sortByCreated(sites []*models.Site) {
	slices.SortFunc(sites, func(a, b *models.Site) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
