package service

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"webdir/internal/audit"
	catmodels "webdir/internal/category/models"
	"webdir/internal/membership/models"
	sitemodels "webdir/internal/site/models"
	trustmodels "webdir/internal/trust/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
	"webdir/pkg/requestcontext"
)

const (
	defaultPageSize     = 20
	defaultPendingLimit = 50
)

var tracer = otel.Tracer("webdir/internal/membership")

type Store interface {
	Create(ctx context.Context, m *models.Membership) error
	FindByID(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error)
	FindByIDForUpdate(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error)
	FindBySiteAndCategory(ctx context.Context, siteID id.SiteID, categoryID id.CategoryID) (*models.Membership, error)
	UpdateStatus(ctx context.Context, m *models.Membership) error
	ListRanked(ctx context.Context, categoryID id.CategoryID, offset, limit int) ([]*models.Membership, int, error)
	ListPending(ctx context.Context, categoryID *id.CategoryID, limit int) ([]*models.Membership, error)
	CountLiveBySite(ctx context.Context, siteID id.SiteID, exclude id.MembershipID) (int, error)
}

// CategoryDirectory is the category tree as seen by submissions.
type CategoryDirectory interface {
	Get(ctx context.Context, categoryID id.CategoryID) (*catmodels.Category, error)
	IncrementLinkCount(ctx context.Context, categoryID id.CategoryID, delta int) error
}

// SiteRegistry resolves submitted URLs to sites and keeps site status in step with moderation.
type SiteRegistry interface {
	Get(ctx context.Context, siteID id.SiteID) (*sitemodels.Site, error)
	FindOrCreate(ctx context.Context, rawURL, title, description string, submitter id.UserID) (*sitemodels.Site, bool, error)
	ApplyModeration(ctx context.Context, siteID id.SiteID, approved, hasLiveMembership bool) error
}

// TrustGate decides the initial status of new memberships and guards moderator actions.
type TrustGate interface {
	Decide(ctx context.Context, submitter id.UserID) (trustmodels.Level, trustmodels.Decision, error)
	RequireModerator(ctx context.Context, userID id.UserID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns membership lifecycle: submission through the Trust Gate,
// moderation, and ranked listing.
type Service struct {
	store          Store
	tx             tx.Runner
	categories     CategoryDirectory
	sites          SiteRegistry
	trust          TrustGate
	pageSize       int
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func New(store Store, runner tx.Runner, categories CategoryDirectory, sites SiteRegistry, trust TrustGate, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tx:         runner,
		categories: categories,
		sites:      sites,
		trust:      trust,
		pageSize:   defaultPageSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit lists a URL in a category. The submitter's trust level decides
// whether the membership publishes immediately or waits for moderation.
func (s *Service) Submit(ctx context.Context, req models.SubmitRequest) (*models.Membership, error) {
	ctx, span := tracer.Start(ctx, "membership.Submit", trace.WithAttributes(
		attribute.String("category_id", req.CategoryID.String()),
	))
	defer span.End()

	submitter := requestcontext.UserID(ctx)
	if submitter.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "submission requires authentication")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		created *models.Membership
		level   trustmodels.Level
	)
	err := s.tx.RunInTx(tx.WithShardKey(ctx, req.CategoryID.String()), func(ctx context.Context) error {
		category, err := s.categories.Get(ctx, req.CategoryID)
		if err != nil {
			return err
		}
		if !category.Active {
			return dErrors.New(dErrors.CodeConflict, "category is not accepting submissions")
		}

		site, _, err := s.sites.FindOrCreate(ctx, req.URL, req.Title, req.Description, submitter)
		if err != nil {
			return err
		}
		if _, err := s.store.FindBySiteAndCategory(ctx, site.ID, category.ID); err == nil {
			return dErrors.New(dErrors.CodeConflict, "site is already submitted to this category")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return translate(err)
		}

		var decision trustmodels.Decision
		level, decision, err = s.trust.Decide(ctx, submitter)
		if err != nil {
			return err
		}
		status := models.StatusPending
		if decision == trustmodels.DecisionPublish {
			status = models.StatusApproved
		}

		m := models.NewMembership(id.NewMembershipID(), site.ID, category.ID, submitter, status, requestcontext.Now(ctx))
		if err := s.store.Create(ctx, m); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "site is already submitted to this category")
			}
			return translate(err)
		}
		if m.IsApproved() {
			if err := s.publish(ctx, m); err != nil {
				return err
			}
		}
		created = m
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.InfoContext(ctx, "site submitted",
		"membership_id", created.ID,
		"site_id", created.SiteID,
		"category_id", created.CategoryID,
		"status", created.Status,
		"trust_level", level,
	)
	s.emit(ctx, audit.Event{
		Action:   audit.ActionSiteSubmitted,
		Subject:  created.ID.String(),
		Category: created.CategoryID.String(),
		Detail:   string(created.Status),
	})
	return created, nil
}

// Approve moves a pending membership to approved and counts it in the category.
func (s *Service) Approve(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error) {
	return s.decide(ctx, membershipID, models.StatusApproved)
}

// Reject moves a pending membership to the terminal rejected state.
func (s *Service) Reject(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error) {
	return s.decide(ctx, membershipID, models.StatusRejected)
}

func (s *Service) decide(ctx context.Context, membershipID id.MembershipID, next models.Status) (*models.Membership, error) {
	ctx, span := tracer.Start(ctx, "membership.Decide", trace.WithAttributes(
		attribute.String("membership_id", membershipID.String()),
		attribute.String("decision", string(next)),
	))
	defer span.End()

	moderator := requestcontext.UserID(ctx)
	if err := s.trust.RequireModerator(ctx, moderator); err != nil {
		return nil, err
	}

	var decided *models.Membership
	err := s.tx.RunInTx(tx.WithShardKey(ctx, membershipID.String()), func(ctx context.Context) error {
		m, err := s.store.FindByIDForUpdate(ctx, membershipID)
		if err != nil {
			return translate(err)
		}
		if err := m.CanDecide(next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConflict, "membership is not pending moderation")
		}
		m.ApplyDecision(next, moderator, requestcontext.Now(ctx))
		if err := s.store.UpdateStatus(ctx, m); err != nil {
			return translate(err)
		}

		if next == models.StatusApproved {
			if err := s.publish(ctx, m); err != nil {
				return err
			}
		} else {
			live, err := s.store.CountLiveBySite(ctx, m.SiteID, m.ID)
			if err != nil {
				return translate(err)
			}
			if err := s.sites.ApplyModeration(ctx, m.SiteID, false, live > 0); err != nil {
				return err
			}
		}
		decided = m
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	action := audit.ActionMembershipApproved
	if next == models.StatusRejected {
		action = audit.ActionMembershipRejected
	}
	s.logger.InfoContext(ctx, "membership moderated",
		"membership_id", membershipID,
		"status", next,
		"moderator_id", moderator,
	)
	s.emit(ctx, audit.Event{Action: action, Subject: membershipID.String(), Category: decided.CategoryID.String()})
	return decided, nil
}

// publish applies the side effects of a membership becoming approved.
func (s *Service) publish(ctx context.Context, m *models.Membership) error {
	if err := s.categories.IncrementLinkCount(ctx, m.CategoryID, 1); err != nil {
		return err
	}
	return s.sites.ApplyModeration(ctx, m.SiteID, true, true)
}

func (s *Service) Get(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error) {
	m, err := s.store.FindByID(ctx, membershipID)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// Ranking returns one page (1-indexed) of a category's approved memberships in rank order.
func (s *Service) Ranking(ctx context.Context, categoryID id.CategoryID, page int) (*models.RankingPage, error) {
	if page < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "page must be 1 or greater")
	}
	if page > math.MaxInt/s.pageSize {
		return nil, dErrors.New(dErrors.CodeValidation, "page is out of range")
	}
	if _, err := s.categories.Get(ctx, categoryID); err != nil {
		return nil, err
	}
	items, total, err := s.store.ListRanked(ctx, categoryID, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return nil, translate(err)
	}
	entries := make([]models.RankingEntry, 0, len(items))
	for _, m := range items {
		site, err := s.sites.Get(ctx, m.SiteID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.RankingEntry{Membership: m, URL: site.URL, Title: site.Title, Domain: site.Domain})
	}
	return &models.RankingPage{
		CategoryID: categoryID,
		Page:       page,
		PageSize:   s.pageSize,
		Total:      total,
		Items:      entries,
	}, nil
}

// ListPending returns the moderation queue oldest first. A nil category lists every category.
func (s *Service) ListPending(ctx context.Context, categoryID *id.CategoryID, limit int) ([]*models.Membership, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	pending, err := s.store.ListPending(ctx, categoryID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return pending, nil
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
		return dErrors.New(dErrors.CodeNotFound, "membership not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "membership conflicts with an existing one")
	default:
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "membership store failure")
	}
}
