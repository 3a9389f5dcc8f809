package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	bubblingmodels "webdir/internal/bubbling/models"
	catmodels "webdir/internal/category/models"
	mmodels "webdir/internal/membership/models"
	rankmodels "webdir/internal/ranking/models"
	sitemodels "webdir/internal/site/models"
	siteservice "webdir/internal/site/service"
	votemodels "webdir/internal/vote/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/httputil"
)

type CategoryService interface {
	Create(ctx context.Context, req catmodels.CreateRequest) (*catmodels.Category, error)
	Get(ctx context.Context, categoryID id.CategoryID) (*catmodels.Category, error)
	ListChildren(ctx context.Context, parentID id.CategoryID) ([]*catmodels.Category, error)
	ListRoots(ctx context.Context) ([]*catmodels.Category, error)
	Path(ctx context.Context, categoryID id.CategoryID) ([]*catmodels.Category, error)
	Delete(ctx context.Context, categoryID id.CategoryID) error
}

type SiteService interface {
	RecordCheckResult(ctx context.Context, siteID id.SiteID, success bool) (*siteservice.CheckResult, error)
	Revive(ctx context.Context, siteID id.SiteID) (*sitemodels.Site, error)
	ListDead(ctx context.Context, limit int) ([]*sitemodels.Site, error)
}

type MembershipService interface {
	Submit(ctx context.Context, req mmodels.SubmitRequest) (*mmodels.Membership, error)
	Approve(ctx context.Context, membershipID id.MembershipID) (*mmodels.Membership, error)
	Reject(ctx context.Context, membershipID id.MembershipID) (*mmodels.Membership, error)
	Get(ctx context.Context, membershipID id.MembershipID) (*mmodels.Membership, error)
	Ranking(ctx context.Context, categoryID id.CategoryID, page int) (*mmodels.RankingPage, error)
	ListPending(ctx context.Context, categoryID *id.CategoryID, limit int) ([]*mmodels.Membership, error)
}

type VoteService interface {
	CastVote(ctx context.Context, membershipID id.MembershipID, voter id.UserID, value int) (*votemodels.Result, error)
	GetVoteState(ctx context.Context, membershipID id.MembershipID, voter id.UserID) (*votemodels.Result, error)
	History(ctx context.Context, membershipID id.MembershipID) ([]*votemodels.Vote, error)
}

type RankingService interface {
	RecalculateCategory(ctx context.Context, categoryID id.CategoryID) (*rankmodels.RunResult, error)
	RecalculateAll(ctx context.Context) (*rankmodels.Summary, error)
}

type BubblingService interface {
	GetBubbledSites(ctx context.Context, categoryID id.CategoryID) (*bubblingmodels.CategoryView, error)
}

// Services groups the domain services the transport delegates to.
type Services struct {
	Categories  CategoryService
	Sites       SiteService
	Memberships MembershipService
	Votes       VoteService
	Ranking     RankingService
	Bubbling    BubblingService
	Moderators  ModeratorChecker
}

// Handler is the thin HTTP layer over the domain services.
type Handler struct {
	categories  CategoryService
	sites       SiteService
	memberships MembershipService
	votes       VoteService
	ranking     RankingService
	bubbling    BubblingService
	moderators  ModeratorChecker
	logger      *slog.Logger
}

func NewHandler(services Services, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		categories:  services.Categories,
		sites:       services.Sites,
		memberships: services.Memberships,
		votes:       services.Votes,
		ranking:     services.Ranking,
		bubbling:    services.Bubbling,
		moderators:  services.Moderators,
		logger:      logger,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail logs server-side failures and writes the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), msg, "error", err)
	}
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func categoryParam(r *http.Request) (id.CategoryID, error) {
	return id.ParseCategoryID(chi.URLParam(r, "categoryID"))
}

func membershipParam(r *http.Request) (id.MembershipID, error) {
	return id.ParseMembershipID(chi.URLParam(r, "membershipID"))
}

func siteParam(r *http.Request) (id.SiteID, error) {
	return id.ParseSiteID(chi.URLParam(r, "siteID"))
}
