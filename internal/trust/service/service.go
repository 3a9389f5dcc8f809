package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"webdir/internal/trust/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/requestcontext"
)

const defaultTrustedKarma = 100

type Store interface {
	Get(ctx context.Context, userID id.UserID) (*models.Profile, error)
	AdjustKarma(ctx context.Context, userID id.UserID, delta int, now time.Time) (*models.Profile, error)
	SetModerator(ctx context.Context, userID id.UserID, moderator bool, now time.Time) error
}

// Service is the Trust Gate: it resolves a submitter's level from the
// reputation store and decides whether new memberships publish or queue.
type Service struct {
	store        Store
	trustedKarma int
	logger       *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTrustedKarma sets the karma at which a submitter becomes trusted.
func WithTrustedKarma(karma int) Option {
	return func(s *Service) {
		s.trustedKarma = karma
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, trustedKarma: defaultTrustedKarma, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LevelOf returns the current level. Unknown users have zero karma and are untrusted.
func (s *Service) LevelOf(ctx context.Context, userID id.UserID) (models.Level, error) {
	if userID.IsNil() {
		return models.LevelUntrusted, nil
	}
	p, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.LevelUntrusted, nil
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load submitter trust")
	}
	return models.LevelFor(*p, s.trustedKarma), nil
}

// Decide evaluates the gate for a submitter at submission time.
func (s *Service) Decide(ctx context.Context, submitter id.UserID) (models.Level, models.Decision, error) {
	level, err := s.LevelOf(ctx, submitter)
	if err != nil {
		return "", "", err
	}
	return level, models.Gate(level), nil
}

// RequireModerator fails with forbidden unless userID is a moderator.
func (s *Service) RequireModerator(ctx context.Context, userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeForbidden, "moderator action requires authentication")
	}
	level, err := s.LevelOf(ctx, userID)
	if err != nil {
		return err
	}
	if level != models.LevelModerator {
		s.logger.WarnContext(ctx, "moderator action denied",
			"user_id", userID,
			"level", level,
		)
		return dErrors.New(dErrors.CodeForbidden, "moderator privileges required")
	}
	return nil
}

// AdjustKarma applies an external reputation event.
func (s *Service) AdjustKarma(ctx context.Context, userID id.UserID, delta int) (*models.Profile, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	p, err := s.store.AdjustKarma(ctx, userID, delta, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust karma")
	}
	return p, nil
}

func (s *Service) SetModerator(ctx context.Context, userID id.UserID, moderator bool) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if err := s.store.SetModerator(ctx, userID, moderator, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update moderator flag")
	}
	return nil
}
