package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	bubblingservice "webdir/internal/bubbling/service"
	bubblingstore "webdir/internal/bubbling/store"
	catmodels "webdir/internal/category/models"
	catservice "webdir/internal/category/service"
	catstore "webdir/internal/category/store"
	mmodels "webdir/internal/membership/models"
	mservice "webdir/internal/membership/service"
	mstore "webdir/internal/membership/store"
	"webdir/internal/platform/metrics"
	rankmodels "webdir/internal/ranking/models"
	rankservice "webdir/internal/ranking/service"
	siteservice "webdir/internal/site/service"
	sitestore "webdir/internal/site/store"
	trustservice "webdir/internal/trust/service"
	truststore "webdir/internal/trust/store"
	votemodels "webdir/internal/vote/models"
	voteservice "webdir/internal/vote/service"
	votestore "webdir/internal/vote/store"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/middleware/auth"
	"webdir/pkg/platform/tx"
	"webdir/pkg/testutil"
)

const adminToken = "probe-token"

// subjectValidator accepts any token and treats it as the user ID.
type subjectValidator struct{}

func (subjectValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	if token == "expired" {
		return nil, errors.New("token expired")
	}
	return &auth.JWTClaims{UserID: token}, nil
}

type RouterSuite struct {
	suite.Suite
	router http.Handler

	category  *catmodels.Category
	moderator id.UserID
	veteran   id.UserID
	newcomer  id.UserID
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	runner := tx.NewMemoryRunner()
	memberships := mstore.NewInMemory()

	trust := trustservice.New(truststore.NewInMemory(), trustservice.WithLogger(logger))
	categories := catservice.New(catstore.NewInMemory(), runner,
		catservice.WithLogger(logger),
		catservice.WithMembershipCounter(memberships),
	)
	sites := siteservice.New(sitestore.NewInMemory(), runner, trust, siteservice.WithLogger(logger))
	bubbling := bubblingservice.New(memberships, categories, sites, bubblingstore.NewMemoryCache(),
		bubblingservice.WithLogger(logger),
	)
	services := Services{
		Categories:  categories,
		Sites:       sites,
		Memberships: mservice.New(memberships, runner, categories, sites, trust, mservice.WithLogger(logger)),
		Votes:       voteservice.New(votestore.NewInMemory(), memberships, runner, voteservice.WithLogger(logger)),
		Ranking: rankservice.New(memberships, categories, runner,
			rankservice.WithLogger(logger),
			rankservice.WithInvalidator(bubbling),
		),
		Bubbling:   bubbling,
		Moderators: trust,
	}

	reg := prometheus.NewRegistry()
	s.router = NewRouter(NewHandler(services, logger), RouterConfig{
		JWTValidator: subjectValidator{},
		AdminToken:   adminToken,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		Logger:       logger,
	})

	s.moderator = id.UserID(uuid.New())
	s.veteran = id.UserID(uuid.New())
	s.newcomer = id.UserID(uuid.New())
	ctx := context.Background()
	s.Require().NoError(trust.SetModerator(ctx, s.moderator, true))
	_, err := trust.AdjustKarma(ctx, s.veteran, 500)
	s.Require().NoError(err)

	rr := s.do(s.moderator, http.MethodPost, "/admin/categories", catmodels.CreateRequest{Name: "Programming"})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	s.category = testutil.UnmarshalResponse[catmodels.Category](s.T(), rr)
}

func (s *RouterSuite) do(user id.UserID, method, path string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(s.T(), method, path, body)
	} else {
		req = testutil.NewRequest(s.T(), method, path)
	}
	if !user.IsNil() {
		req.Header.Set("Authorization", "Bearer "+user.String())
	}
	return testutil.DoRequest(s.router, req)
}

func (s *RouterSuite) anonymous(method, path string, body any) *httptest.ResponseRecorder {
	return s.do(id.UserID{}, method, path, body)
}

func (s *RouterSuite) submit(user id.UserID, url string) *mmodels.Membership {
	rr := s.do(user, http.MethodPost, "/submissions", mmodels.SubmitRequest{
		URL:        url,
		Title:      "Example",
		CategoryID: s.category.ID,
	})
	s.Require().Contains([]int{http.StatusCreated, http.StatusAccepted}, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[mmodels.Membership](s.T(), rr)
}

func (s *RouterSuite) TestHealthAndMetrics() {
	testutil.AssertStatus(s.T(), s.anonymous(http.MethodGet, "/healthz", nil), http.StatusOK)
	testutil.AssertStatus(s.T(), s.anonymous(http.MethodGet, "/metrics", nil), http.StatusOK)
}

func (s *RouterSuite) TestCategoryBrowsing() {
	rr := s.anonymous(http.MethodGet, "/categories/"+s.category.ID.String(), nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = s.anonymous(http.MethodGet, "/categories/"+id.NewCategoryID().String(), nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = s.anonymous(http.MethodGet, "/categories/not-a-uuid", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *RouterSuite) TestAdminRoutesRequireModerator() {
	rr := s.anonymous(http.MethodPost, "/admin/categories", catmodels.CreateRequest{Name: "Go"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	rr = s.do(s.veteran, http.MethodPost, "/admin/categories", catmodels.CreateRequest{Name: "Go"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	rr = s.do(s.moderator, http.MethodGet, "/admin/memberships/pending", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *RouterSuite) TestSubmissionRoutesThroughTrustGate() {
	s.Run("anonymous callers are rejected by auth", func() {
		rr := s.anonymous(http.MethodPost, "/submissions", mmodels.SubmitRequest{URL: "https://a.example", CategoryID: s.category.ID})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("trusted submitter publishes immediately", func() {
		rr := s.do(s.veteran, http.MethodPost, "/submissions", mmodels.SubmitRequest{URL: "https://a.example", CategoryID: s.category.ID})
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		m := testutil.UnmarshalResponse[mmodels.Membership](s.T(), rr)
		s.Equal(mmodels.StatusApproved, m.Status)
	})

	s.Run("newcomer is queued then approved by a moderator", func() {
		rr := s.do(s.newcomer, http.MethodPost, "/submissions", mmodels.SubmitRequest{URL: "https://b.example", CategoryID: s.category.ID})
		testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
		m := testutil.UnmarshalResponse[mmodels.Membership](s.T(), rr)
		s.Equal(mmodels.StatusPending, m.Status)

		rr = s.do(s.moderator, http.MethodGet, "/admin/memberships/pending?category_id="+s.category.ID.String(), nil)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		pending := testutil.UnmarshalResponse[map[string][]*mmodels.Membership](s.T(), rr)
		s.Require().Len((*pending)["memberships"], 1)

		rr = s.do(s.moderator, http.MethodPost, "/admin/memberships/"+m.ID.String()+"/approve", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		rr = s.do(s.moderator, http.MethodPost, "/admin/memberships/"+m.ID.String()+"/reject", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("unknown body fields are rejected", func() {
		rr := s.do(s.veteran, http.MethodPost, "/submissions", map[string]any{"url": "https://c.example", "bogus": 1})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *RouterSuite) TestVoting() {
	m := s.submit(s.veteran, "https://voted.example")
	path := "/memberships/" + m.ID.String() + "/vote"

	rr := s.anonymous(http.MethodPost, path, votemodels.CastRequest{Value: 1})
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	rr = s.do(s.newcomer, http.MethodPost, path, votemodels.CastRequest{Value: 2})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")

	rr = s.do(s.newcomer, http.MethodPost, path, votemodels.CastRequest{Value: 1})
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	result := testutil.UnmarshalResponse[votemodels.Result](s.T(), rr)
	s.Equal(votemodels.StateUp, result.State)
	s.Equal(1, result.Upvotes)

	rr = s.do(s.newcomer, http.MethodGet, "/memberships/"+m.ID.String(), nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	view := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal("up", (*view)["my_vote"])

	rr = s.anonymous(http.MethodGet, "/memberships/"+m.ID.String(), nil)
	view = testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.NotContains(*view, "my_vote")

	rr = s.do(s.moderator, http.MethodGet, "/admin/memberships/"+m.ID.String()+"/votes", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	history := testutil.UnmarshalResponse[map[string][]*votemodels.Vote](s.T(), rr)
	s.Len((*history)["votes"], 1)
}

func (s *RouterSuite) TestVotingOnPendingMembershipIsForbidden() {
	m := s.submit(s.newcomer, "https://queued.example")
	rr := s.do(s.veteran, http.MethodPost, "/memberships/"+m.ID.String()+"/vote", votemodels.CastRequest{Value: 1})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *RouterSuite) TestRecalculateThenRank() {
	first := s.submit(s.veteran, "https://first.example")
	second := s.submit(s.veteran, "https://second.example")
	rr := s.do(s.newcomer, http.MethodPost, "/memberships/"+second.ID.String()+"/vote", votemodels.CastRequest{Value: 1})
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = s.do(s.moderator, http.MethodPost, "/admin/categories/"+s.category.ID.String()+"/recalculate", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	run := testutil.UnmarshalResponse[rankmodels.RunResult](s.T(), rr)
	s.Equal(2, run.Ranked)

	rr = s.anonymous(http.MethodGet, "/categories/"+s.category.ID.String()+"/ranking", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	page := testutil.UnmarshalResponse[mmodels.RankingPage](s.T(), rr)
	s.Require().Len(page.Items, 2)
	s.Equal(second.ID, page.Items[0].ID)
	s.Equal(first.ID, page.Items[1].ID)
	s.Equal(1, *page.Items[0].Rank)

	rr = s.anonymous(http.MethodGet, "/categories/"+s.category.ID.String()+"/ranking?page=zero", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	rr = s.anonymous(http.MethodGet, "/categories/"+s.category.ID.String()+"/ranking?page=4611686018427387904", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")

	rr = s.do(s.moderator, http.MethodPost, "/admin/recalculate", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	summary := testutil.UnmarshalResponse[rankmodels.Summary](s.T(), rr)
	s.Equal(1, summary.Succeeded)

	rr = s.anonymous(http.MethodGet, "/categories/"+s.category.ID.String()+"/bubbled", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *RouterSuite) TestHealthReportsNeedAdminToken() {
	m := s.submit(s.veteran, "https://flaky.example")
	path := "/admin/sites/" + m.SiteID.String() + "/health"

	rr := s.anonymous(http.MethodPost, path, map[string]bool{"success": false})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]bool{"success": false})
	req.Header.Set("X-Admin-Token", adminToken)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	result := testutil.UnmarshalResponse[siteservice.CheckResult](s.T(), rr)
	s.Equal(1, result.FailureCount)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{})
	req.Header.Set("X-Admin-Token", adminToken)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *RouterSuite) TestExpiredTokenOnOptionalRoute() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/categories")
	req.Header.Set("Authorization", "Bearer expired")
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusUnauthorized)
}
