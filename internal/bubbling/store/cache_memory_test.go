package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdir/internal/bubbling/models"
	id "webdir/pkg/domain"
)

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return clock }

	view := &models.CategoryView{CategoryID: id.NewCategoryID()}
	require.NoError(t, c.Set(ctx, view, time.Minute))

	got, ok, err := c.Get(ctx, view.CategoryID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, view, got)

	clock = clock.Add(time.Minute)
	_, ok, err = c.Get(ctx, view.CategoryID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	view := &models.CategoryView{CategoryID: id.NewCategoryID()}
	require.NoError(t, c.Set(ctx, view, time.Minute))
	require.NoError(t, c.Delete(ctx, view.CategoryID))

	_, ok, err := c.Get(ctx, view.CategoryID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_CallersCannotMutateCachedView(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	rank := 1
	view := &models.CategoryView{
		CategoryID: id.NewCategoryID(),
		Direct:     []models.Listing{{Title: "Go", Rank: &rank}},
		Bubbled:    []models.BubbledListing{{Listing: models.Listing{Title: "Rust", Rank: &rank}}},
	}
	require.NoError(t, c.Set(ctx, view, time.Minute))
	view.Direct[0].Title = "changed after set"

	got, ok, err := c.Get(ctx, view.CategoryID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Go", got.Direct[0].Title)

	got.Direct[0].Title = "changed by reader"
	*got.Direct[0].Rank = 99
	got.Bubbled = append(got.Bubbled, models.BubbledListing{})

	again, _, err := c.Get(ctx, view.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Go", again.Direct[0].Title)
	assert.Equal(t, 1, *again.Direct[0].Rank)
	assert.Len(t, again.Bubbled, 1)
}
