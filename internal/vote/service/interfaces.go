package service

import (
	"context"

	"webdir/internal/audit"
	rlmodels "webdir/internal/ratelimit/models"
	id "webdir/pkg/domain"
)

// Limiter throttles vote calls per voter.
type Limiter interface {
	AllowVote(ctx context.Context, voter id.UserID) (*rlmodels.Result, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
