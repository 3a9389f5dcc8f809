package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdir/internal/vote/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
)

type ledger interface {
	Insert(ctx context.Context, v *models.Vote) error
	FindActive(ctx context.Context, membershipID id.MembershipID, voter id.UserID) (*models.Vote, error)
	Retract(ctx context.Context, voteID id.VoteID, now time.Time) error
	Tally(ctx context.Context, membershipID id.MembershipID) (int, int, error)
	History(ctx context.Context, membershipID id.MembershipID) ([]*models.Vote, error)
}

func TestInMemory_OneActiveVotePerVoter(t *testing.T) {
	assertOneActiveVotePerVoter(t, NewInMemory(), id.NewMembershipID())
}

func assertOneActiveVotePerVoter(t *testing.T, s ledger, membership id.MembershipID) {
	t.Helper()
	ctx := context.Background()
	voter := id.UserID(uuid.New())
	t0 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	first := models.NewVote(id.NewVoteID(), membership, voter, models.Up, t0)
	require.NoError(t, s.Insert(ctx, first))

	err := s.Insert(ctx, models.NewVote(id.NewVoteID(), membership, voter, models.Down, t0))
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	require.NoError(t, s.Retract(ctx, first.ID, t0.Add(time.Minute)))
	assert.ErrorIs(t, s.Retract(ctx, first.ID, t0.Add(time.Minute)), sentinel.ErrNotFound)

	_, err = s.FindActive(ctx, membership, voter)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	second := models.NewVote(id.NewVoteID(), membership, voter, models.Down, t0.Add(2*time.Minute))
	require.NoError(t, s.Insert(ctx, second))

	active, err := s.FindActive(ctx, membership, voter)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	up, down, err := s.Tally(ctx, membership)
	require.NoError(t, err)
	assert.Equal(t, 0, up)
	assert.Equal(t, 1, down)

	history, err := s.History(ctx, membership)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.NotNil(t, history[0].RetractedAt)
	assert.Equal(t, second.ID, history[1].ID)
}
