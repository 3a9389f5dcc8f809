package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"webdir/internal/audit"
	"webdir/internal/category/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
	"webdir/pkg/requestcontext"
)

// maxDepth bounds Path walks; deeper trees indicate corrupted parent links.
const maxDepth = 64

type Store interface {
	Create(ctx context.Context, c *models.Category) error
	FindByID(ctx context.Context, categoryID id.CategoryID) (*models.Category, error)
	FindBySlug(ctx context.Context, slug string) (*models.Category, error)
	ListChildren(ctx context.Context, parentID id.CategoryID) ([]*models.Category, error)
	ListRoots(ctx context.Context) ([]*models.Category, error)
	ListActive(ctx context.Context) ([]*models.Category, error)
	Delete(ctx context.Context, categoryID id.CategoryID) error
	SetActive(ctx context.Context, categoryID id.CategoryID, active bool, now time.Time) error
	AddLinkCount(ctx context.Context, categoryID id.CategoryID, delta int, now time.Time) error
}

// MembershipCounter reports how many memberships reference a category.
type MembershipCounter interface {
	CountByCategory(ctx context.Context, categoryID id.CategoryID) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the category tree: creation under existing parents, traversal
// and guarded deletion.
type Service struct {
	store          Store
	tx             tx.Runner
	memberships    MembershipCounter
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

// WithMembershipCounter makes Delete refuse categories that still hold memberships.
func WithMembershipCounter(counter MembershipCounter) Option {
	return func(s *Service) {
		s.memberships = counter
	}
}

func New(store Store, runner tx.Runner, opts ...Option) *Service {
	s := &Service{store: store, tx: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Category, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := models.NewCategory(id.NewCategoryID(), req.ParentID, req.Name, req.Slug, req.DisplayOrder, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if c.ParentID != nil {
			if _, err := s.store.FindByID(ctx, *c.ParentID); err != nil {
				return translate(err, "parent category not found")
			}
		}
		if err := s.store.Create(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "category slug already exists")
			}
			return translate(err, "parent category not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "category created",
		"category_id", c.ID,
		"slug", c.Slug,
	)
	s.emit(ctx, audit.Event{Action: audit.ActionCategoryCreated, Subject: c.ID.String(), Category: c.ID.String(), Detail: c.Slug})
	return c, nil
}

func (s *Service) Get(ctx context.Context, categoryID id.CategoryID) (*models.Category, error) {
	c, err := s.store.FindByID(ctx, categoryID)
	if err != nil {
		return nil, translate(err, "category not found")
	}
	return c, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	c, err := s.store.FindBySlug(ctx, slug)
	if err != nil {
		return nil, translate(err, "category not found")
	}
	return c, nil
}

// ListChildren returns the direct children of parentID, ordered by display order then name.
func (s *Service) ListChildren(ctx context.Context, parentID id.CategoryID) ([]*models.Category, error) {
	if _, err := s.Get(ctx, parentID); err != nil {
		return nil, err
	}
	children, err := s.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list child categories")
	}
	return children, nil
}

func (s *Service) ListRoots(ctx context.Context) ([]*models.Category, error) {
	roots, err := s.store.ListRoots(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list root categories")
	}
	return roots, nil
}

// ListActive returns every active category; the rank worker iterates this set.
func (s *Service) ListActive(ctx context.Context) ([]*models.Category, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active categories")
	}
	return active, nil
}

// Path returns the breadcrumb from the root down to categoryID, inclusive.
func (s *Service) Path(ctx context.Context, categoryID id.CategoryID) ([]*models.Category, error) {
	var reversed []*models.Category
	current := &categoryID
	for depth := 0; current != nil; depth++ {
		if depth >= maxDepth {
			return nil, dErrors.New(dErrors.CodeInternal, "category path exceeds maximum depth")
		}
		c, err := s.Get(ctx, *current)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, c)
		current = c.ParentID
	}
	path := make([]*models.Category, len(reversed))
	for i, c := range reversed {
		path[len(reversed)-1-i] = c
	}
	return path, nil
}

// Descendants returns every category below categoryID in breadth-first order.
func (s *Service) Descendants(ctx context.Context, categoryID id.CategoryID) ([]*models.Category, error) {
	if _, err := s.Get(ctx, categoryID); err != nil {
		return nil, err
	}
	var out []*models.Category
	queue := []id.CategoryID{categoryID}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		children, err := s.store.ListChildren(ctx, next)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list child categories")
		}
		for _, child := range children {
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// Delete removes a leaf category that holds no memberships.
func (s *Service) Delete(ctx context.Context, categoryID id.CategoryID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if s.memberships != nil {
			n, err := s.memberships.CountByCategory(ctx, categoryID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count memberships")
			}
			if n > 0 {
				return dErrors.New(dErrors.CodeConflict, "category still has memberships")
			}
		}
		if err := s.store.Delete(ctx, categoryID); err != nil {
			if errors.Is(err, sentinel.ErrHasChildren) {
				return dErrors.New(dErrors.CodeConflict, "category has child categories")
			}
			return translate(err, "category not found")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "category deleted", "category_id", categoryID)
	s.emit(ctx, audit.Event{Action: audit.ActionCategoryDeleted, Subject: categoryID.String(), Category: categoryID.String()})
	return nil
}

func (s *Service) SetActive(ctx context.Context, categoryID id.CategoryID, active bool) error {
	if err := s.store.SetActive(ctx, categoryID, active, requestcontext.Now(ctx)); err != nil {
		return translate(err, "category not found")
	}
	return nil
}

// IncrementLinkCount adjusts the cached count of approved memberships.
func (s *Service) IncrementLinkCount(ctx context.Context, categoryID id.CategoryID, delta int) error {
	if err := s.store.AddLinkCount(ctx, categoryID, delta, requestcontext.Now(ctx)); err != nil {
		return translate(err, "category not found")
	}
	return nil
}

// LoadSeed parses a YAML category tree.
func LoadSeed(r io.Reader) ([]models.SeedNode, error) {
	var doc struct {
		Categories []models.SeedNode `yaml:"categories"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid seed file")
	}
	return doc.Categories, nil
}

// Seed creates the given tree. Nodes whose slug already exists are reused, so
// seeding the same file twice creates nothing the second time.
func (s *Service) Seed(ctx context.Context, nodes []models.SeedNode) (int, error) {
	return s.seed(ctx, nil, nodes)
}

func (s *Service) seed(ctx context.Context, parentID *id.CategoryID, nodes []models.SeedNode) (int, error) {
	created := 0
	for _, node := range nodes {
		req := models.CreateRequest{ParentID: parentID, Name: node.Name, Slug: node.Slug, DisplayOrder: node.DisplayOrder}
		req.Normalize()

		c, err := s.GetBySlug(ctx, req.Slug)
		switch {
		case err == nil:
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			c, err = s.Create(ctx, req)
			if err != nil {
				return created, fmt.Errorf("seed %q: %w", req.Slug, err)
			}
			created++
		default:
			return created, err
		}

		n, err := s.seed(ctx, &c.ID, node.Children)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
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

func translate(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "category conflicts with an existing one")
	default:
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "category store failure")
	}
}
