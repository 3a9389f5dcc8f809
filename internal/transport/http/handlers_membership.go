package httptransport

import (
	"context"
	"net/http"
	"strconv"

	mmodels "webdir/internal/membership/models"
	votemodels "webdir/internal/vote/models"
	id "webdir/pkg/domain"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/httputil"
	"webdir/pkg/requestcontext"
)

type membershipResponse struct {
	*mmodels.Membership
	MyVote votemodels.State `json:"my_vote,omitempty"`
}

func (h *Handler) handleGetMembership(w http.ResponseWriter, r *http.Request) {
	membershipID, err := membershipParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ctx := r.Context()
	m, err := h.memberships.Get(ctx, membershipID)
	if err != nil {
		h.fail(w, r, "failed to get membership", err)
		return
	}
	resp := membershipResponse{Membership: m}
	if voter := requestcontext.UserID(ctx); !voter.IsNil() {
		state, err := h.votes.GetVoteState(ctx, membershipID, voter)
		if err != nil {
			h.fail(w, r, "failed to load vote state", err)
			return
		}
		resp.MyVote = state.State
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	categoryID, err := categoryParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ranking, err := h.memberships.Ranking(r.Context(), categoryID, page)
	if err != nil {
		h.fail(w, r, "failed to load ranking", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ranking)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req mmodels.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := h.memberships.Submit(r.Context(), req)
	if err != nil {
		h.fail(w, r, "failed to submit site", err)
		return
	}
	status := http.StatusCreated
	if !m.IsApproved() {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, m)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	membershipID, err := membershipParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req votemodels.CastRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ctx := r.Context()
	result, err := h.votes.CastVote(ctx, membershipID, requestcontext.UserID(ctx), req.Value)
	if err != nil {
		h.fail(w, r, "failed to cast vote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.memberships.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.memberships.Reject)
}

func (h *Handler) moderate(w http.ResponseWriter, r *http.Request, decide func(context.Context, id.MembershipID) (*mmodels.Membership, error)) {
	membershipID, err := membershipParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := decide(r.Context(), membershipID)
	if err != nil {
		h.fail(w, r, "failed to moderate membership", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	var categoryID *id.CategoryID
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		parsed, err := id.ParseCategoryID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		categoryID = &parsed
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pending, err := h.memberships.ListPending(r.Context(), categoryID, limit)
	if err != nil {
		h.fail(w, r, "failed to list pending memberships", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]*mmodels.Membership{"memberships": pending})
}

func (h *Handler) handleVoteHistory(w http.ResponseWriter, r *http.Request) {
	membershipID, err := membershipParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	votes, err := h.votes.History(r.Context(), membershipID)
	if err != nil {
		h.fail(w, r, "failed to list vote history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]*votemodels.Vote{"votes": votes})
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer")
	}
	return n, nil
}
