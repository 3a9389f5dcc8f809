// Package service recalculates category rankings, one transaction per category.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"webdir/internal/audit"
	catmodels "webdir/internal/category/models"
	mmodels "webdir/internal/membership/models"
	"webdir/internal/ranking/metrics"
	"webdir/internal/ranking/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/tx"
	"webdir/pkg/requestcontext"
)

const (
	defaultPoolSize   = 4
	defaultRunTimeout = 2 * time.Minute
)

var tracer = otel.Tracer("webdir/internal/ranking")

// MembershipStore is the ranking write set: approved memberships in, score
// and rank out.
type MembershipStore interface {
	ListApprovedByCategory(ctx context.Context, categoryID id.CategoryID) ([]*mmodels.Membership, error)
	ApplyRanking(ctx context.Context, categoryID id.CategoryID, updates []mmodels.RankUpdate, rankedAt time.Time) error
}

type CategoryDirectory interface {
	Get(ctx context.Context, categoryID id.CategoryID) (*catmodels.Category, error)
	ListActive(ctx context.Context) ([]*catmodels.Category, error)
}

// Invalidator drops cached bubbled views built from stale ranks.
type Invalidator interface {
	Invalidate(ctx context.Context, categoryID id.CategoryID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	memberships    MembershipStore
	categories     CategoryDirectory
	tx             tx.Runner
	poolSize       int
	runTimeout     time.Duration
	invalidator    Invalidator
	metrics        *metrics.Metrics
	logger         *slog.Logger
	auditPublisher AuditPublisher

	mu       sync.Mutex
	inFlight map[id.CategoryID]struct{}
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

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

func WithPoolSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

func New(memberships MembershipStore, categories CategoryDirectory, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		memberships: memberships,
		categories:  categories,
		tx:          runner,
		poolSize:    defaultPoolSize,
		runTimeout:  defaultRunTimeout,
		logger:      slog.Default(),
		inFlight:    make(map[id.CategoryID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecalculateCategory re-scores one category at the request time. A run
// already in flight for the category makes this call fail with conflict.
func (s *Service) RecalculateCategory(ctx context.Context, categoryID id.CategoryID) (*models.RunResult, error) {
	category, err := s.categories.Get(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	result, err := s.run(ctx, category, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "recalculation already running for this category")
	}
	return result, nil
}

// RecalculateAll re-scores every active category over a bounded pool. All
// categories share one evaluation instant. A failing category is logged and
// counted; the others still run.
func (s *Service) RecalculateAll(ctx context.Context) (*models.Summary, error) {
	ctx, span := tracer.Start(ctx, "ranking.RecalculateAll")
	defer span.End()

	categories, err := s.categories.ListActive(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)

	var succeeded, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.poolSize)
	for _, category := range categories {
		g.Go(func() error {
			result, err := s.run(ctx, category, now)
			switch {
			case err != nil:
				failed.Add(1)
			case result == nil:
				skipped.Add(1)
			default:
				succeeded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &models.Summary{
		Categories: len(categories),
		Succeeded:  int(succeeded.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
		RankedAt:   now,
	}
	if s.metrics != nil {
		s.metrics.SetLastPassFailures(summary.Failed)
	}
	span.SetAttributes(
		attribute.Int("categories", summary.Categories),
		attribute.Int("failed", summary.Failed),
	)
	s.logger.InfoContext(ctx, "rank recalculation pass complete",
		"categories", summary.Categories,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// run recalculates one category under its in-flight guard. It returns
// (nil, nil) when another run holds the guard.
func (s *Service) run(ctx context.Context, category *catmodels.Category, now time.Time) (*models.RunResult, error) {
	if !s.acquire(category.ID) {
		s.logger.InfoContext(ctx, "rank recalculation skipped, already running", "category_id", category.ID)
		if s.metrics != nil {
			s.metrics.ObserveRun("skipped", 0, time.Now())
		}
		return nil, nil
	}
	defer s.release(category.ID)

	ctx, span := tracer.Start(ctx, "ranking.RecalculateCategory", trace.WithAttributes(
		attribute.String("category_id", category.ID.String()),
	))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	var ranked int
	err := s.tx.RunInTx(tx.WithShardKey(ctx, category.ID.String()), func(ctx context.Context) error {
		approved, err := s.memberships.ListApprovedByCategory(ctx, category.ID)
		if err != nil {
			return err
		}
		updates := models.Rank(approved, now)
		if err := s.memberships.ApplyRanking(ctx, category.ID, updates, now); err != nil {
			return err
		}
		ranked = len(updates)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.ObserveRun("failure", 0, start)
		}
		s.logger.ErrorContext(ctx, "rank recalculation failed",
			"category_id", category.ID,
			"error", err,
		)
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rank recalculation failed")
	}

	if s.metrics != nil {
		s.metrics.ObserveRun("success", ranked, start)
	}
	s.invalidate(ctx, category)
	s.logger.InfoContext(ctx, "category ranked",
		"category_id", category.ID,
		"ranked", ranked,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.emit(ctx, audit.Event{
		Action:   audit.ActionCategoryRecalculated,
		Subject:  category.ID.String(),
		Category: category.ID.String(),
	})
	return &models.RunResult{CategoryID: category.ID, Ranked: ranked, RankedAt: now}, nil
}

// invalidate drops the category's own view and its parent's, which bubbles from it.
func (s *Service) invalidate(ctx context.Context, category *catmodels.Category) {
	if s.invalidator == nil {
		return
	}
	keys := []id.CategoryID{category.ID}
	if category.ParentID != nil {
		keys = append(keys, *category.ParentID)
	}
	for _, key := range keys {
		if err := s.invalidator.Invalidate(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate bubbled view",
				"category_id", key,
				"error", err,
			)
		}
	}
}

func (s *Service) acquire(categoryID id.CategoryID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[categoryID]; busy {
		return false
	}
	s.inFlight[categoryID] = struct{}{}
	return true
}

func (s *Service) release(categoryID id.CategoryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, categoryID)
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
