package models

import (
	"regexp"
	"strings"
	"time"

	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
)

const (
	maxNameLength = 128
	maxSlugLength = 64
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Category is a node of the directory tree.
//
// Invariants:
//   - Name is 1-128 characters, slug is 1-64 characters of [a-z0-9-]
//   - ParentID, when set, referenced an existing category at creation time,
//     so the tree cannot contain cycles
//   - LinkCount counts approved memberships and never goes negative
type Category struct {
	ID           id.CategoryID  `json:"id"`
	ParentID     *id.CategoryID `json:"parent_id,omitempty"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	DisplayOrder int            `json:"display_order"`
	Active       bool           `json:"active"`
	LinkCount    int            `json:"link_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// NewCategory validates the node fields and returns an active category.
func NewCategory(categoryID id.CategoryID, parentID *id.CategoryID, name, slug string, displayOrder int, now time.Time) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category name cannot be empty")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category name must be 128 characters or less")
	}
	if len(slug) > maxSlugLength || !slugPattern.MatchString(slug) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category slug must be 1-64 lower-case letters, digits or hyphens")
	}
	if parentID != nil && *parentID == categoryID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category cannot be its own parent")
	}
	return &Category{
		ID:           categoryID,
		ParentID:     parentID,
		Name:         name,
		Slug:         slug,
		DisplayOrder: displayOrder,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CompareSiblings orders siblings by display order, then name, for slices.SortFunc.
func CompareSiblings(a, b *Category) int {
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder - b.DisplayOrder
	}
	return strings.Compare(a.Name, b.Name)
}
