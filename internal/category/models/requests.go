package models

import (
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/strings"
)

// CreateRequest is the input for creating a category. An empty slug is derived from the name.
type CreateRequest struct {
	ParentID     *id.CategoryID `json:"parent_id,omitempty"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	DisplayOrder int            `json:"display_order"`
}

func (r *CreateRequest) Normalize() {
	if r.Slug == "" {
		r.Slug = strings.Slugify(r.Name)
	}
}

func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.ParentID != nil && r.ParentID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "parent_id must be a valid category id")
	}
	return nil
}

// SeedNode is one entry of a category seed file; children nest recursively.
type SeedNode struct {
	Name         string     `yaml:"name"`
	Slug         string     `yaml:"slug"`
	DisplayOrder int        `yaml:"order"`
	Children     []SeedNode `yaml:"children"`
}
