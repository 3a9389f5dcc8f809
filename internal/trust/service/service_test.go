package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdir/internal/trust/models"
	"webdir/internal/trust/store"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name    string
		profile models.Profile
		want    models.Level
	}{
		{"no karma", models.Profile{}, models.LevelUntrusted},
		{"just below threshold", models.Profile{Karma: 99}, models.LevelUntrusted},
		{"at threshold", models.Profile{Karma: 100}, models.LevelTrusted},
		{"moderator flag wins over karma", models.Profile{Karma: -5, IsModerator: true}, models.LevelModerator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, models.LevelFor(tc.profile, 100))
		})
	}
}

func TestGate(t *testing.T) {
	assert.Equal(t, models.DecisionQueue, models.Gate(models.LevelUntrusted))
	assert.Equal(t, models.DecisionPublish, models.Gate(models.LevelTrusted))
	assert.Equal(t, models.DecisionPublish, models.Gate(models.LevelModerator))
}

func TestService_DecideAndModerator(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	svc := New(st, WithTrustedKarma(50))

	newcomer := id.UserID(uuid.New())
	veteran := id.UserID(uuid.New())
	mod := id.UserID(uuid.New())

	_, err := svc.AdjustKarma(ctx, veteran, 60)
	require.NoError(t, err)
	require.NoError(t, svc.SetModerator(ctx, mod, true))

	level, decision, err := svc.Decide(ctx, newcomer)
	require.NoError(t, err)
	assert.Equal(t, models.LevelUntrusted, level)
	assert.Equal(t, models.DecisionQueue, decision)

	level, decision, err = svc.Decide(ctx, veteran)
	require.NoError(t, err)
	assert.Equal(t, models.LevelTrusted, level)
	assert.Equal(t, models.DecisionPublish, decision)

	assert.NoError(t, svc.RequireModerator(ctx, mod))
	assert.True(t, dErrors.HasCode(svc.RequireModerator(ctx, veteran), dErrors.CodeForbidden))
	assert.True(t, dErrors.HasCode(svc.RequireModerator(ctx, id.UserID{}), dErrors.CodeForbidden))
}

func TestService_KarmaDropDemotes(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewInMemory())
	user := id.UserID(uuid.New())

	_, err := svc.AdjustKarma(ctx, user, 120)
	require.NoError(t, err)
	p, err := svc.AdjustKarma(ctx, user, -30)
	require.NoError(t, err)
	assert.Equal(t, 90, p.Karma)

	level, err := svc.LevelOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.LevelUntrusted, level)
}
