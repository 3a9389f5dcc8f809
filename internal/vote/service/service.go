package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"webdir/internal/audit"
	mmodels "webdir/internal/membership/models"
	"webdir/internal/vote/metrics"
	"webdir/internal/vote/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
	"webdir/pkg/requestcontext"
)

var tracer = otel.Tracer("webdir/internal/vote")

type Store interface {
	Insert(ctx context.Context, v *models.Vote) error
	FindActive(ctx context.Context, membershipID id.MembershipID, voter id.UserID) (*models.Vote, error)
	Retract(ctx context.Context, voteID id.VoteID, now time.Time) error
	Tally(ctx context.Context, membershipID id.MembershipID) (int, int, error)
	History(ctx context.Context, membershipID id.MembershipID) ([]*models.Vote, error)
}

// MembershipStore is the slice of the membership store the ledger writes:
// the row lock and the vote tally columns.
type MembershipStore interface {
	FindByID(ctx context.Context, membershipID id.MembershipID) (*mmodels.Membership, error)
	FindByIDForUpdate(ctx context.Context, membershipID id.MembershipID) (*mmodels.Membership, error)
	UpdateTally(ctx context.Context, membershipID id.MembershipID, upvotes, downvotes int, now time.Time) error
}

// Service is the vote ledger. Every mutation and the tally it produces
// commit together, serialized per membership.
type Service struct {
	store          Store
	memberships    MembershipStore
	tx             tx.Runner
	limiter        Limiter
	metrics        *metrics.Metrics
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithLimiter enables per-voter throttling.
func WithLimiter(limiter Limiter) Option {
	return func(s *Service) {
		s.limiter = limiter
	}
}

func New(store Store, memberships MembershipStore, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:       store,
		memberships: memberships,
		tx:          runner,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CastVote toggles or flips the voter's vote on an approved membership and
// returns the voter's new state with the recomputed tally.
//
// Casting the same value as the active vote retracts it. Casting the
// opposite value retracts the old vote and records the new one.
func (s *Service) CastVote(ctx context.Context, membershipID id.MembershipID, voter id.UserID, value int) (*models.Result, error) {
	ctx, span := tracer.Start(ctx, "vote.CastVote", trace.WithAttributes(
		attribute.String("membership_id", membershipID.String()),
		attribute.Int("value", value),
	))
	defer span.End()

	result, err := s.castVote(ctx, membershipID, voter, value)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.IncrementRejection(dErrors.CodeOf(err))
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	if s.metrics != nil {
		s.metrics.IncrementVote(string(result.Outcome))
	}

	s.logger.InfoContext(ctx, "vote recorded",
		"membership_id", membershipID,
		"voter_id", voter,
		"outcome", result.Outcome,
		"upvotes", result.Upvotes,
		"downvotes", result.Downvotes,
	)
	action := audit.ActionVoteCast
	if result.Outcome == models.OutcomeRetracted {
		action = audit.ActionVoteRetracted
	}
	s.emit(ctx, audit.Event{
		Action:  action,
		ActorID: voter,
		Subject: membershipID.String(),
		Detail:  string(result.State),
	})
	return result, nil
}

func (s *Service) castVote(ctx context.Context, membershipID id.MembershipID, voter id.UserID, value int) (*models.Result, error) {
	if voter.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "voting requires authentication")
	}
	if value != int(models.Up) && value != int(models.Down) {
		return nil, dErrors.New(dErrors.CodeValidation, "vote value must be 1 or -1")
	}
	if s.limiter != nil {
		quota, err := s.limiter.AllowVote(ctx, voter)
		if err != nil {
			return nil, err
		}
		if !quota.Allowed {
			return nil, dErrors.RateLimited("too many votes, slow down", quota.RetryAfter)
		}
	}

	var result *models.Result
	err := s.tx.RunInTx(tx.WithShardKey(ctx, membershipID.String()), func(ctx context.Context) error {
		m, err := s.memberships.FindByIDForUpdate(ctx, membershipID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "membership not found")
			}
			return translate(err)
		}
		if !m.IsApproved() {
			return dErrors.New(dErrors.CodeForbidden, "only approved listings accept votes")
		}

		now := requestcontext.Now(ctx)
		state, outcome, err := s.apply(ctx, membershipID, voter, models.Value(value), now)
		if err != nil {
			return err
		}

		up, down, err := s.store.Tally(ctx, membershipID)
		if err != nil {
			return translate(err)
		}
		if err := s.memberships.UpdateTally(ctx, membershipID, up, down, now); err != nil {
			return translate(err)
		}
		result = &models.Result{
			MembershipID: membershipID,
			State:        state,
			Upvotes:      up,
			Downvotes:    down,
			Outcome:      outcome,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// apply mutates the ledger for one cast. Must run inside the membership's transaction.
func (s *Service) apply(ctx context.Context, membershipID id.MembershipID, voter id.UserID, value models.Value, now time.Time) (models.State, models.Outcome, error) {
	active, err := s.store.FindActive(ctx, membershipID, voter)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return "", "", translate(err)
	}

	outcome := models.OutcomeCast
	if active != nil {
		if err := s.store.Retract(ctx, active.ID, now); err != nil {
			return "", "", translate(err)
		}
		if active.Value == value {
			return models.StateNone, models.OutcomeRetracted, nil
		}
		outcome = models.OutcomeChanged
	}

	next := models.NewVote(id.NewVoteID(), membershipID, voter, value, now)
	if err := s.store.Insert(ctx, next); err != nil {
		return "", "", translate(err)
	}
	return models.StateOf(next), outcome, nil
}

// GetVoteState returns the voter's current state and the membership's tally.
func (s *Service) GetVoteState(ctx context.Context, membershipID id.MembershipID, voter id.UserID) (*models.Result, error) {
	m, err := s.memberships.FindByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "membership not found")
		}
		return nil, translate(err)
	}
	state := models.StateNone
	if !voter.IsNil() {
		active, err := s.store.FindActive(ctx, membershipID, voter)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, translate(err)
		}
		state = models.StateOf(active)
	}
	return &models.Result{
		MembershipID: membershipID,
		State:        state,
		Upvotes:      m.Upvotes,
		Downvotes:    m.Downvotes,
	}, nil
}

// History lists every vote row of a membership, retracted ones included, oldest first.
func (s *Service) History(ctx context.Context, membershipID id.MembershipID) ([]*models.Vote, error) {
	if _, err := s.memberships.FindByID(ctx, membershipID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "membership not found")
		}
		return nil, translate(err)
	}
	votes, err := s.store.History(ctx, membershipID)
	if err != nil {
		return nil, translate(err)
	}
	return votes, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "concurrent vote on this listing, retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeConflict, "vote changed concurrently, retry")
	default:
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "vote ledger failure")
	}
}
