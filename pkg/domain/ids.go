// Package domain holds the typed identifiers shared across the directory's bounded contexts.
//
// Each entity gets a distinct named type over uuid.UUID so a MembershipID can never be passed
// where a CategoryID is expected. Construct IDs from external input via the Parse functions;
// they reject empty, malformed and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "webdir/pkg/domain-errors"
)

type (
	UserID       uuid.UUID
	CategoryID   uuid.UUID
	SiteID       uuid.UUID
	MembershipID uuid.UUID
	VoteID       uuid.UUID
)

func NewCategoryID() CategoryID     { return CategoryID(uuid.New()) }
func NewSiteID() SiteID             { return SiteID(uuid.New()) }
func NewMembershipID() MembershipID { return MembershipID(uuid.New()) }
func NewVoteID() VoteID             { return VoteID(uuid.New()) }

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id CategoryID) String() string   { return uuid.UUID(id).String() }
func (id SiteID) String() string       { return uuid.UUID(id).String() }
func (id MembershipID) String() string { return uuid.UUID(id).String() }
func (id VoteID) String() string       { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id CategoryID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SiteID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id MembershipID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id VoteID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id CategoryID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id SiteID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id MembershipID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id VoteID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CategoryID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SiteID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MembershipID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VoteID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseCategoryID(s string) (CategoryID, error) {
	u, err := parseUUID(s, "category_id")
	return CategoryID(u), err
}

func ParseSiteID(s string) (SiteID, error) {
	u, err := parseUUID(s, "site_id")
	return SiteID(u), err
}

func ParseMembershipID(s string) (MembershipID, error) {
	u, err := parseUUID(s, "membership_id")
	return MembershipID(u), err
}

func ParseVoteID(s string) (VoteID, error) {
	u, err := parseUUID(s, "vote_id")
	return VoteID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" cannot be nil")
	}
	return u, nil
}
