// Package service composes a category's view from its own ranked listings
// and the top listings of its direct children.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"webdir/internal/bubbling/metrics"
	"webdir/internal/bubbling/models"
	catmodels "webdir/internal/category/models"
	mmodels "webdir/internal/membership/models"
	sitemodels "webdir/internal/site/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/requestcontext"
)

const (
	defaultTTL          = 5 * time.Minute
	defaultBuildTimeout = 30 * time.Second
)

var tracer = otel.Tracer("webdir/internal/bubbling")

type MembershipReader interface {
	ListApprovedByCategory(ctx context.Context, categoryID id.CategoryID) ([]*mmodels.Membership, error)
	ListBubbleCandidates(ctx context.Context, categoryIDs []id.CategoryID, minScore float64, maxRank int) ([]*mmodels.Membership, error)
}

type CategoryDirectory interface {
	Get(ctx context.Context, categoryID id.CategoryID) (*catmodels.Category, error)
	ListChildren(ctx context.Context, parentID id.CategoryID) ([]*catmodels.Category, error)
}

type SiteReader interface {
	Get(ctx context.Context, siteID id.SiteID) (*sitemodels.Site, error)
}

type Cache interface {
	Get(ctx context.Context, categoryID id.CategoryID) (*models.CategoryView, bool, error)
	Set(ctx context.Context, view *models.CategoryView, ttl time.Duration) error
	Delete(ctx context.Context, categoryID id.CategoryID) error
}

type Service struct {
	memberships  MembershipReader
	categories   CategoryDirectory
	sites        SiteReader
	cache        Cache
	ttl          time.Duration
	buildTimeout time.Duration
	thresholds   models.Thresholds
	group        singleflight.Group
	metrics      *metrics.Metrics
	logger       *slog.Logger
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

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBuildTimeout bounds a shared view build, which runs detached from its callers.
func WithBuildTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.buildTimeout = d
		}
	}
}

func WithThresholds(t models.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

func New(memberships MembershipReader, categories CategoryDirectory, sites SiteReader, cache Cache, opts ...Option) *Service {
	s := &Service{
		memberships:  memberships,
		categories:   categories,
		sites:        sites,
		cache:        cache,
		ttl:          defaultTTL,
		buildTimeout: defaultBuildTimeout,
		thresholds:   models.DefaultThresholds(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBubbledSites returns the category's view, from cache when fresh.
// Concurrent misses for one category share a single build.
func (s *Service) GetBubbledSites(ctx context.Context, categoryID id.CategoryID) (*models.CategoryView, error) {
	ctx, span := tracer.Start(ctx, "bubbling.GetBubbledSites", trace.WithAttributes(
		attribute.String("category_id", categoryID.String()),
	))
	defer span.End()

	if view, ok := s.cached(ctx, categoryID); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return view, nil
	}

	ch := s.group.DoChan(categoryID.String(), func() (any, error) {
		// The build outlives any single caller so one disconnect cannot fail the others.
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		view, err := s.build(buildCtx, categoryID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(buildCtx, view, s.ttl); err != nil {
			s.cacheError(buildCtx, "set", categoryID, err)
		}
		return view, nil
	})
	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "bubbled view request cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		view := res.Val.(*models.CategoryView)
		if res.Shared {
			return view.Clone(), nil
		}
		return view, nil
	}
}

// Invalidate drops the cached view of one category.
func (s *Service) Invalidate(ctx context.Context, categoryID id.CategoryID) error {
	if err := s.cache.Delete(ctx, categoryID); err != nil {
		s.cacheError(ctx, "delete", categoryID, err)
		return err
	}
	return nil
}

func (s *Service) cached(ctx context.Context, categoryID id.CategoryID) (*models.CategoryView, bool) {
	view, ok, err := s.cache.Get(ctx, categoryID)
	if err != nil {
		s.cacheError(ctx, "get", categoryID, err)
		return nil, false
	}
	if s.metrics != nil {
		if ok {
			s.metrics.IncrementHit()
		} else {
			s.metrics.IncrementMiss()
		}
	}
	return view, ok
}

func (s *Service) build(ctx context.Context, categoryID id.CategoryID) (*models.CategoryView, error) {
	start := time.Now()
	if _, err := s.categories.Get(ctx, categoryID); err != nil {
		return nil, err
	}

	approved, err := s.memberships.ListApprovedByCategory(ctx, categoryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list category listings")
	}
	view := &models.CategoryView{
		CategoryID: categoryID,
		Direct:     make([]models.Listing, 0, len(approved)),
		Bubbled:    []models.BubbledListing{},
		BuiltAt:    requestcontext.Now(ctx),
	}
	for _, m := range approved {
		listing, err := s.listing(ctx, m)
		if err != nil {
			return nil, err
		}
		view.Direct = append(view.Direct, listing)
	}

	children, err := s.categories.ListChildren(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	sources := make(map[id.CategoryID]models.SourceCategory, len(children))
	childIDs := make([]id.CategoryID, 0, len(children))
	for _, child := range children {
		if !child.Active {
			continue
		}
		sources[child.ID] = models.SourceCategory{ID: child.ID, Slug: child.Slug, Name: child.Name}
		childIDs = append(childIDs, child.ID)
	}
	if len(childIDs) > 0 {
		candidates, err := s.memberships.ListBubbleCandidates(ctx, childIDs, s.thresholds.MinScore, s.thresholds.MaxRank)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bubble candidates")
		}
		for _, m := range candidates {
			if !s.thresholds.Qualifies(m.Score, m.Rank) {
				continue
			}
			listing, err := s.listing(ctx, m)
			if err != nil {
				return nil, err
			}
			view.Bubbled = append(view.Bubbled, models.BubbledListing{Listing: listing, Source: sources[m.CategoryID]})
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveBuild(start)
	}
	s.logger.DebugContext(ctx, "bubbled view built",
		"category_id", categoryID,
		"direct", len(view.Direct),
		"bubbled", len(view.Bubbled),
	)
	return view, nil
}

func (s *Service) listing(ctx context.Context, m *mmodels.Membership) (models.Listing, error) {
	site, err := s.sites.Get(ctx, m.SiteID)
	if err != nil {
		return models.Listing{}, err
	}
	return models.Listing{
		MembershipID: m.ID,
		SiteID:       m.SiteID,
		URL:          site.URL,
		Title:        site.Title,
		Domain:       site.Domain,
		Upvotes:      m.Upvotes,
		Downvotes:    m.Downvotes,
		Score:        m.Score,
		Rank:         m.Rank,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func (s *Service) cacheError(ctx context.Context, op string, categoryID id.CategoryID, err error) {
	if s.metrics != nil {
		s.metrics.IncrementError()
	}
	s.logger.WarnContext(ctx, "bubbling cache error",
		"op", op,
		"category_id", categoryID,
		"error", err,
	)
}
