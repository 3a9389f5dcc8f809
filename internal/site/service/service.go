package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"webdir/internal/audit"
	"webdir/internal/site/metrics"
	"webdir/internal/site/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
	"webdir/pkg/requestcontext"
)

const defaultDeadThreshold = 3

var tracer = otel.Tracer("webdir/internal/site")

type Store interface {
	Create(ctx context.Context, site *models.Site) error
	FindByID(ctx context.Context, siteID id.SiteID) (*models.Site, error)
	FindByIDForUpdate(ctx context.Context, siteID id.SiteID) (*models.Site, error)
	FindByURL(ctx context.Context, url string) (*models.Site, error)
	Update(ctx context.Context, site *models.Site) error
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Site, error)
}

type ModeratorChecker interface {
	RequireModerator(ctx context.Context, userID id.UserID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CheckResult is the health state after recording one probe result.
type CheckResult struct {
	SiteID       id.SiteID     `json:"site_id"`
	FailureCount int           `json:"failure_count"`
	Status       models.Status `json:"status"`
}

// Service is the site registry: URL dedup on submission, the health state
// machine, and site status changes that follow moderation.
type Service struct {
	store          Store
	tx             tx.Runner
	moderators     ModeratorChecker
	deadThreshold  int
	logger         *slog.Logger
	metrics        *metrics.Metrics
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

// WithDeadThreshold sets how many consecutive failed checks mark a site dead.
func WithDeadThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.deadThreshold = n
		}
	}
}

func New(store Store, runner tx.Runner, moderators ModeratorChecker, opts ...Option) *Service {
	s := &Service{
		store:         store,
		tx:            runner,
		moderators:    moderators,
		deadThreshold: defaultDeadThreshold,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, siteID id.SiteID) (*models.Site, error) {
	site, err := s.store.FindByID(ctx, siteID)
	if err != nil {
		return nil, translate(err)
	}
	return site, nil
}

// ListDead returns dead sites oldest first, for moderator review.
func (s *Service) ListDead(ctx context.Context, limit int) ([]*models.Site, error) {
	sites, err := s.store.ListByStatus(ctx, models.StatusDead, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list dead sites")
	}
	return sites, nil
}

// FindOrCreate returns the site for rawURL, creating a pending one when the
// normalized URL is new. Callers run it inside their transaction.
func (s *Service) FindOrCreate(ctx context.Context, rawURL, title, description string, submitter id.UserID) (*models.Site, bool, error) {
	candidate, err := models.NewSite(id.NewSiteID(), rawURL, title, description, submitter, requestcontext.Now(ctx))
	if err != nil {
		return nil, false, err
	}
	existing, err := s.store.FindByURL(ctx, candidate.URL)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, translate(err)
	}
	if err := s.store.Create(ctx, candidate); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, false, dErrors.New(dErrors.CodeConflict, "site was submitted concurrently, retry")
		}
		return nil, false, translate(err)
	}
	return candidate, true, nil
}

// RecordCheckResult feeds one probe result into the health state machine and
// returns the new failure count and status. The update is atomic per site.
func (s *Service) RecordCheckResult(ctx context.Context, siteID id.SiteID, success bool) (*CheckResult, error) {
	ctx, span := tracer.Start(ctx, "site.RecordCheckResult", trace.WithAttributes(
		attribute.String("site_id", siteID.String()),
		attribute.Bool("success", success),
	))
	defer span.End()

	var (
		result     CheckResult
		becameDead bool
	)
	err := s.tx.RunInTx(tx.WithShardKey(ctx, siteID.String()), func(ctx context.Context) error {
		site, err := s.store.FindByIDForUpdate(ctx, siteID)
		if err != nil {
			return translate(err)
		}
		becameDead = site.ApplyCheckResult(success, s.deadThreshold, requestcontext.Now(ctx))
		if err := s.store.Update(ctx, site); err != nil {
			return translate(err)
		}
		result = CheckResult{SiteID: site.ID, FailureCount: site.FailureCount, Status: site.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCheck(success)
	}
	if becameDead {
		s.logger.WarnContext(ctx, "site marked dead",
			"site_id", siteID,
			"failure_count", result.FailureCount,
		)
		if s.metrics != nil {
			s.metrics.IncrementMarkedDead()
		}
		s.emit(ctx, audit.Event{Action: audit.ActionSiteMarkedDead, Subject: siteID.String()})
	}
	return &result, nil
}

// Revive is the explicit moderator action that takes a site out of dead.
func (s *Service) Revive(ctx context.Context, siteID id.SiteID) (*models.Site, error) {
	if err := s.moderators.RequireModerator(ctx, requestcontext.UserID(ctx)); err != nil {
		return nil, err
	}
	var revived *models.Site
	err := s.tx.RunInTx(tx.WithShardKey(ctx, siteID.String()), func(ctx context.Context) error {
		site, err := s.store.FindByIDForUpdate(ctx, siteID)
		if err != nil {
			return translate(err)
		}
		if err := site.CanRevive(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConflict, "only dead sites can be revived")
		}
		site.ApplyRevive(requestcontext.Now(ctx))
		if err := s.store.Update(ctx, site); err != nil {
			return translate(err)
		}
		revived = site
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "site revived",
		"site_id", siteID,
		"moderator_id", requestcontext.UserID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementRevived()
	}
	s.emit(ctx, audit.Event{Action: audit.ActionSiteRevived, Subject: siteID.String()})
	return revived, nil
}

// ApplyModeration moves the site's status after one of its memberships was
// approved or rejected. hasLiveMembership reports whether another membership of
// the site is still pending or approved. Callers run it inside their transaction.
func (s *Service) ApplyModeration(ctx context.Context, siteID id.SiteID, approved, hasLiveMembership bool) error {
	site, err := s.store.FindByIDForUpdate(ctx, siteID)
	if err != nil {
		return translate(err)
	}
	now := requestcontext.Now(ctx)
	var changed bool
	if approved {
		changed = site.ApplyMembershipApproved(now)
	} else {
		changed = site.ApplyMembershipRejected(hasLiveMembership, now)
	}
	if !changed {
		return nil
	}
	if err := s.store.Update(ctx, site); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.ActorID = requestcontext.UserID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "site not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "site url already registered")
	default:
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "site store failure")
	}
}
