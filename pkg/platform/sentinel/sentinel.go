package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors:
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: a uniqueness constraint rejected the write (duplicate membership,
//     second active vote, taken slug or URL)
//   - ErrInvalidState: entity in wrong state for the requested transition
//   - ErrHasChildren: category still has child categories
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrHasChildren  = errors.New("has children")
	ErrUnavailable  = errors.New("unavailable")
)
