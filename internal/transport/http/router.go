package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"webdir/internal/platform/metrics"
	"webdir/pkg/platform/middleware/admin"
	"webdir/pkg/platform/middleware/auth"
	"webdir/pkg/platform/middleware/request"
	"webdir/pkg/platform/middleware/requesttime"
)

// RouterConfig carries the cross-cutting pieces the router wires around handlers.
type RouterConfig struct {
	JWTValidator auth.JWTValidator
	AdminToken   string
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
}

// NewRouter wires every public and admin endpoint. Handlers stay thin and
// delegate to the domain services.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.Recover(logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger, cfg.Metrics))

	r.Get("/healthz", h.handleHealth)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(cfg.JWTValidator, logger))
		r.Get("/categories", h.handleListRoots)
		r.Get("/categories/{categoryID}", h.handleGetCategory)
		r.Get("/categories/{categoryID}/children", h.handleListChildren)
		r.Get("/categories/{categoryID}/path", h.handleCategoryPath)
		r.Get("/categories/{categoryID}/ranking", h.handleRanking)
		r.Get("/categories/{categoryID}/bubbled", h.handleBubbled)
		r.Get("/memberships/{membershipID}", h.handleGetMembership)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.JWTValidator, logger))
		r.Post("/submissions", h.handleSubmit)
		r.Post("/memberships/{membershipID}/vote", h.handleVote)
	})

	// Health probes come from the link checker, not a person.
	r.With(admin.RequireAdminToken(cfg.AdminToken, logger)).
		Post("/admin/sites/{siteID}/health", h.handleHealthCheckResult)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.JWTValidator, logger))
		r.Use(RequireModerator(h.moderators, logger))
		r.Get("/admin/memberships/pending", h.handleListPending)
		r.Post("/admin/memberships/{membershipID}/approve", h.handleApprove)
		r.Post("/admin/memberships/{membershipID}/reject", h.handleReject)
		r.Get("/admin/memberships/{membershipID}/votes", h.handleVoteHistory)
		r.Get("/admin/sites/dead", h.handleListDead)
		r.Post("/admin/sites/{siteID}/revive", h.handleRevive)
		r.Post("/admin/categories", h.handleCreateCategory)
		r.Delete("/admin/categories/{categoryID}", h.handleDeleteCategory)
		r.Post("/admin/categories/{categoryID}/recalculate", h.handleRecalculateCategory)
		r.Post("/admin/recalculate", h.handleRecalculateAll)
	})

	return r
}
