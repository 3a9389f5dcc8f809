package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catmodels "webdir/internal/category/models"
	catservice "webdir/internal/category/service"
	catstore "webdir/internal/category/store"
	mmodels "webdir/internal/membership/models"
	mstore "webdir/internal/membership/store"
	"webdir/internal/platform/logger"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/tx"
	"webdir/pkg/testutil"
)

func TestScheduler(t *testing.T) {
	testutil.Given(t, "a category with an unranked approved membership", func(t *testing.T) {
		ctx := context.Background()
		runner := tx.NewMemoryRunner()
		memberships := mstore.NewInMemory()
		categories := catservice.New(catstore.NewInMemory(), runner)
		svc := New(memberships, categories, runner)

		c, err := categories.Create(ctx, catmodels.CreateRequest{Name: "Science"})
		require.NoError(t, err)
		m := mmodels.NewMembership(id.NewMembershipID(), id.NewSiteID(), c.ID, id.UserID(uuid.New()), mmodels.StatusApproved, time.Now())
		require.NoError(t, memberships.Create(ctx, m))

		testutil.When(t, "the scheduler starts", func(t *testing.T) {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() {
				done <- NewScheduler(svc, time.Hour, logger.Discard()).Run(runCtx)
			}()

			testutil.Then(t, "it ranks without waiting for the first tick", func(t *testing.T) {
				assert.Eventually(t, func() bool {
					got, err := memberships.FindByID(ctx, m.ID)
					return err == nil && got.Rank != nil && *got.Rank == 1
				}, 2*time.Second, 10*time.Millisecond)
			})

			testutil.And(t, "it stops cleanly on cancellation", func(t *testing.T) {
				cancel()
				select {
				case err := <-done:
					assert.NoError(t, err)
				case <-time.After(2 * time.Second):
					t.Fatal("scheduler did not stop")
				}
			})
		})
	})
}
