//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catmodels "webdir/internal/category/models"
	catstore "webdir/internal/category/store"
	mmodels "webdir/internal/membership/models"
	mstore "webdir/internal/membership/store"
	sitemodels "webdir/internal/site/models"
	sitestore "webdir/internal/site/store"
	"webdir/internal/vote/models"
	id "webdir/pkg/domain"
	"webdir/pkg/testutil/containers"
)

// seedMembership inserts the category, site and approved membership a vote references.
func seedMembership(t *testing.T, pg *containers.PostgresContainer) id.MembershipID {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	slug := uuid.NewString()
	c, err := catmodels.NewCategory(id.NewCategoryID(), nil, "Votes", slug, 0, now)
	require.NoError(t, err)
	require.NoError(t, catstore.NewPostgres(pg.DB).Create(ctx, c))

	site, err := sitemodels.NewSite(id.NewSiteID(), "https://"+slug+".example", "", "", id.UserID(uuid.New()), now)
	require.NoError(t, err)
	require.NoError(t, sitestore.NewPostgres(pg.DB).Create(ctx, site))

	m := mmodels.NewMembership(id.NewMembershipID(), site.ID, c.ID, site.SubmitterID, mmodels.StatusApproved, now)
	require.NoError(t, mstore.NewPostgres(pg.DB).Create(ctx, m))
	return m.ID
}

func TestPostgres_OneActiveVotePerVoter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateAll(context.Background()))

	assertOneActiveVotePerVoter(t, NewPostgres(pg.DB), seedMembership(t, pg))
}

func TestPostgres_TallyCountsOnlyActiveVotes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateAll(context.Background()))
	ctx := context.Background()
	s := NewPostgres(pg.DB)
	membership := seedMembership(t, pg)
	now := time.Now().UTC()

	for i := range 6 {
		value := models.Up
		if i%3 == 0 {
			value = models.Down
		}
		require.NoError(t, s.Insert(ctx, models.NewVote(id.NewVoteID(), membership, id.UserID(uuid.New()), value, now)))
	}
	retracted := models.NewVote(id.NewVoteID(), membership, id.UserID(uuid.New()), models.Up, now)
	require.NoError(t, s.Insert(ctx, retracted))
	require.NoError(t, s.Retract(ctx, retracted.ID, now.Add(time.Second)))

	up, down, err := s.Tally(ctx, membership)
	require.NoError(t, err)
	assert.Equal(t, 4, up)
	assert.Equal(t, 2, down)
}
