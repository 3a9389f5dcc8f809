// Package service throttles vote casts per voter with a sliding window.
package service

import (
	"context"
	"log/slog"
	"time"

	"webdir/internal/ratelimit/metrics"
	"webdir/internal/ratelimit/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/circuit"
)

type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// Service answers from the primary store. With a fallback configured, primary
// errors are answered by the fallback and the breaker keeps traffic there
// until the primary has recovered.
type Service struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
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

func WithFallback(fallback Store, breaker *circuit.Breaker) Option {
	return func(s *Service) {
		s.fallback = fallback
		s.breaker = breaker
	}
}

func New(primary Store, limit int, window time.Duration, opts ...Option) *Service {
	s := &Service{
		primary: primary,
		limit:   limit,
		window:  window,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllowVote consumes one slot of the voter's window.
func (s *Service) AllowVote(ctx context.Context, voter id.UserID) (*models.Result, error) {
	result, err := s.check(ctx, models.VoteKey(voter))
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementDecision(result.Allowed)
	}
	if !result.Allowed {
		s.logger.InfoContext(ctx, "vote rate limited",
			"voter_id", voter,
			"retry_after", result.RetryAfter,
		)
	}
	return result, nil
}

func (s *Service) check(ctx context.Context, key string) (*models.Result, error) {
	result, err := s.primary.Allow(ctx, key, s.limit, s.window)
	if s.fallback == nil || s.breaker == nil {
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
		}
		return result, nil
	}

	if err != nil {
		_, change := s.breaker.RecordFailure()
		s.observe(ctx, change)
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors()
		}
		s.logger.WarnContext(ctx, "rate limit store failed, using fallback", "error", err)
		return s.fromFallback(ctx, key)
	}
	usePrimary, change := s.breaker.RecordSuccess()
	s.observe(ctx, change)
	if !usePrimary {
		return s.fromFallback(ctx, key)
	}
	return result, nil
}

func (s *Service) fromFallback(ctx context.Context, key string) (*models.Result, error) {
	if s.metrics != nil {
		s.metrics.IncrementFallback()
	}
	result, err := s.fallback.Allow(ctx, key, s.limit, s.window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rate limit fallback failed")
	}
	return result, nil
}

func (s *Service) observe(ctx context.Context, change circuit.StateChange) {
	switch {
	case change.Opened:
		s.logger.WarnContext(ctx, "rate limit circuit opened", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetCircuitOpen(true)
		}
	case change.Closed:
		s.logger.InfoContext(ctx, "rate limit circuit closed", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetCircuitOpen(false)
		}
	}
}
