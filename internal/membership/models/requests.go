package models

import (
	"strings"

	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
)

// SubmitRequest is a user's submission of a URL into a category.
type SubmitRequest struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	CategoryID  id.CategoryID `json:"category_id"`
}

func (r *SubmitRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *SubmitRequest) Validate() error {
	if r.URL == "" {
		return dErrors.New(dErrors.CodeValidation, "url is required")
	}
	if r.CategoryID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "category_id is required")
	}
	return nil
}
