package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "webdir/pkg/domain-errors"
)

// TestParseUUID_Invariants validates that IDs arriving from requests are valid,
// non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseMembershipID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseMembershipID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseMembershipID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseMembershipID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, MembershipID(validUUID), id)
	})
}

func TestParseID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE votes;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCategoryID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errUser := ParseUserID(validUUID)
		_, errCategory := ParseCategoryID(validUUID)
		_, errSite := ParseSiteID(validUUID)
		_, errMembership := ParseMembershipID(validUUID)
		_, errVote := ParseVoteID(validUUID)

		require.NoError(t, errUser)
		require.NoError(t, errCategory)
		require.NoError(t, errSite)
		require.NoError(t, errMembership)
		require.NoError(t, errVote)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errUser := ParseUserID(input)
			_, errCategory := ParseCategoryID(input)
			_, errSite := ParseSiteID(input)
			_, errMembership := ParseMembershipID(input)
			_, errVote := ParseVoteID(input)

			require.Error(t, errUser)
			require.Error(t, errCategory)
			require.Error(t, errSite)
			require.Error(t, errMembership)
			require.Error(t, errVote)
		})
	}
}

func TestIDText_RoundTrip(t *testing.T) {
	original := NewSiteID()
	text, err := original.MarshalText()
	require.NoError(t, err)

	var decoded SiteID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, original, decoded)
	assert.False(t, decoded.IsNil())
	assert.True(t, SiteID{}.IsNil())
}
