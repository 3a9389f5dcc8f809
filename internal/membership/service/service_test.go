package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"webdir/internal/audit"
	catmodels "webdir/internal/category/models"
	catservice "webdir/internal/category/service"
	catstore "webdir/internal/category/store"
	"webdir/internal/membership/models"
	"webdir/internal/membership/store"
	sitemodels "webdir/internal/site/models"
	siteservice "webdir/internal/site/service"
	sitestore "webdir/internal/site/store"
	trustservice "webdir/internal/trust/service"
	truststore "webdir/internal/trust/store"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/tx"
	"webdir/pkg/requestcontext"
)

type MembershipServiceSuite struct {
	suite.Suite
	now        time.Time
	store      *store.InMemory
	audit      *audit.InMemoryStore
	categories *catservice.Service
	sites      *siteservice.Service
	trust      *trustservice.Service
	service    *Service

	category  *catmodels.Category
	newcomer  id.UserID
	veteran   id.UserID
	moderator id.UserID
}

func TestMembershipServiceSuite(t *testing.T) {
	suite.Run(t, new(MembershipServiceSuite))
}

func (s *MembershipServiceSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := tx.NewMemoryRunner()
	s.store = store.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	publisher := audit.NewPublisher(s.audit)

	s.trust = trustservice.New(truststore.NewInMemory(), trustservice.WithTrustedKarma(100))
	s.categories = catservice.New(catstore.NewInMemory(), runner, catservice.WithMembershipCounter(s.store))
	s.sites = siteservice.New(sitestore.NewInMemory(), runner, s.trust)
	s.service = New(s.store, runner, s.categories, s.sites, s.trust,
		WithAuditPublisher(publisher),
		WithPageSize(2),
	)

	s.newcomer = id.UserID(uuid.New())
	s.veteran = id.UserID(uuid.New())
	s.moderator = id.UserID(uuid.New())
	ctx := s.as(s.moderator)
	_, err := s.trust.AdjustKarma(ctx, s.veteran, 150)
	s.Require().NoError(err)
	s.Require().NoError(s.trust.SetModerator(ctx, s.moderator, true))

	s.category, err = s.categories.Create(ctx, catmodels.CreateRequest{Name: "Programming"})
	s.Require().NoError(err)
}

func (s *MembershipServiceSuite) as(userID id.UserID) context.Context {
	return requestcontext.WithTime(requestcontext.WithUserID(context.Background(), userID), s.now)
}

func (s *MembershipServiceSuite) submit(userID id.UserID, url string) (*models.Membership, error) {
	return s.service.Submit(s.as(userID), models.SubmitRequest{URL: url, Title: "Example", CategoryID: s.category.ID})
}

func (s *MembershipServiceSuite) linkCount() int {
	c, err := s.categories.Get(context.Background(), s.category.ID)
	s.Require().NoError(err)
	return c.LinkCount
}

func (s *MembershipServiceSuite) siteStatus(siteID id.SiteID) sitemodels.Status {
	site, err := s.sites.Get(context.Background(), siteID)
	s.Require().NoError(err)
	return site.Status
}

func (s *MembershipServiceSuite) TestSubmitGate() {
	s.Run("untrusted submitter is queued for moderation", func() {
		m, err := s.submit(s.newcomer, "https://queued.example.com")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, m.Status)
		s.Nil(m.DecidedAt)
		s.Equal(0, s.linkCount())
		s.Equal(sitemodels.StatusPending, s.siteStatus(m.SiteID))
	})

	s.Run("trusted submitter publishes immediately and counts once", func() {
		before := s.linkCount()
		m, err := s.submit(s.veteran, "https://published.example.com")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, m.Status)
		s.NotNil(m.DecidedAt)
		s.Nil(m.Rank)
		s.Equal(before+1, s.linkCount())
		s.Equal(sitemodels.StatusApproved, s.siteStatus(m.SiteID))
	})

	s.Run("moderator submissions publish", func() {
		m, err := s.submit(s.moderator, "https://moderated.example.com")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, m.Status)
	})

	s.Run("submission is audited", func() {
		events, err := s.audit.ListRecent(context.Background(), 10)
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal(audit.ActionSiteSubmitted, events[0].Action)
	})
}

func (s *MembershipServiceSuite) TestSubmitRejections() {
	s.Run("anonymous caller", func() {
		_, err := s.service.Submit(requestcontext.WithTime(context.Background(), s.now),
			models.SubmitRequest{URL: "https://anon.example.com", CategoryID: s.category.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("missing url", func() {
		_, err := s.submit(s.newcomer, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown category", func() {
		_, err := s.service.Submit(s.as(s.newcomer),
			models.SubmitRequest{URL: "https://lost.example.com", CategoryID: id.NewCategoryID()})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("inactive category", func() {
		inactive, err := s.categories.Create(s.as(s.moderator), catmodels.CreateRequest{Name: "Archive"})
		s.Require().NoError(err)
		s.Require().NoError(s.categories.SetActive(s.as(s.moderator), inactive.ID, false))
		_, err = s.service.Submit(s.as(s.newcomer),
			models.SubmitRequest{URL: "https://old.example.com", CategoryID: inactive.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("duplicate submission of the same normalized url", func() {
		_, err := s.submit(s.newcomer, "https://dup.example.com/")
		s.Require().NoError(err)
		_, err = s.submit(s.veteran, "http://www.dup.example.com")
		s.Require().NoError(err, "a different host is a different site")
		_, err = s.submit(s.veteran, "dup.example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *MembershipServiceSuite) TestModeration() {
	s.Run("approve moves pending to approved and publishes", func() {
		m, err := s.submit(s.newcomer, "https://approve.example.com")
		s.Require().NoError(err)
		before := s.linkCount()

		approved, err := s.service.Approve(s.as(s.moderator), m.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
		s.Require().NotNil(approved.DecidedBy)
		s.Equal(s.moderator, *approved.DecidedBy)
		s.Equal(before+1, s.linkCount())
		s.Equal(sitemodels.StatusApproved, s.siteStatus(m.SiteID))

		_, err = s.service.Approve(s.as(s.moderator), m.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.service.Reject(s.as(s.moderator), m.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(before+1, s.linkCount())
	})

	s.Run("reject is terminal and blocks resubmission", func() {
		m, err := s.submit(s.newcomer, "https://reject.example.com")
		s.Require().NoError(err)

		rejected, err := s.service.Reject(s.as(s.moderator), m.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
		s.Equal(sitemodels.StatusRejected, s.siteStatus(m.SiteID))

		_, err = s.service.Approve(s.as(s.moderator), m.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.submit(s.veteran, "https://reject.example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("reject keeps the site pending while another listing is live", func() {
		m, err := s.submit(s.newcomer, "https://shared.example.com")
		s.Require().NoError(err)
		other, err := s.categories.Create(s.as(s.moderator), catmodels.CreateRequest{Name: "Tools"})
		s.Require().NoError(err)
		_, err = s.service.Submit(s.as(s.newcomer),
			models.SubmitRequest{URL: "https://shared.example.com", CategoryID: other.ID})
		s.Require().NoError(err)

		_, err = s.service.Reject(s.as(s.moderator), m.ID)
		s.Require().NoError(err)
		s.Equal(sitemodels.StatusPending, s.siteStatus(m.SiteID))
	})

	s.Run("non-moderators cannot decide", func() {
		m, err := s.submit(s.newcomer, "https://denied.example.com")
		s.Require().NoError(err)
		_, err = s.service.Approve(s.as(s.veteran), m.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.service.Reject(s.as(s.newcomer), m.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown membership", func() {
		_, err := s.service.Approve(s.as(s.moderator), id.NewMembershipID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MembershipServiceSuite) TestListPending() {
	first, err := s.submit(s.newcomer, "https://one.example.com")
	s.Require().NoError(err)
	_, err = s.submit(s.veteran, "https://two.example.com")
	s.Require().NoError(err)

	pending, err := s.service.ListPending(context.Background(), &s.category.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(first.ID, pending[0].ID)
}

func (s *MembershipServiceSuite) TestRanking() {
	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	var ids []id.MembershipID
	for _, u := range urls {
		m, err := s.submit(s.veteran, u)
		s.Require().NoError(err)
		ids = append(ids, m.ID)
	}
	_, err := s.submit(s.newcomer, "https://pending.example.com")
	s.Require().NoError(err)

	// c ranks first, then a, then b
	s.Require().NoError(s.store.ApplyRanking(context.Background(), s.category.ID, []models.RankUpdate{
		{MembershipID: ids[2], Score: 9, Rank: 1},
		{MembershipID: ids[0], Score: 5, Rank: 2},
		{MembershipID: ids[1], Score: 1, Rank: 3},
	}, s.now))

	page, err := s.service.Ranking(context.Background(), s.category.ID, 1)
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Equal(2, page.PageSize)
	s.Require().Len(page.Items, 2)
	s.Equal(ids[2], page.Items[0].ID)
	s.Equal("https://c.example.com", page.Items[0].URL)
	s.Equal("c.example.com", page.Items[0].Domain)
	s.Equal(ids[0], page.Items[1].ID)

	page, err = s.service.Ranking(context.Background(), s.category.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	s.Equal(ids[1], page.Items[0].ID)

	page, err = s.service.Ranking(context.Background(), s.category.ID, 3)
	s.Require().NoError(err)
	s.Empty(page.Items)

	_, err = s.service.Ranking(context.Background(), s.category.ID, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	// (page-1)*pageSize would wrap to a negative offset
	_, err = s.service.Ranking(context.Background(), s.category.ID, math.MaxInt/2+1)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.Ranking(context.Background(), s.category.ID, math.MaxInt)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.Ranking(context.Background(), id.NewCategoryID(), 1)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
