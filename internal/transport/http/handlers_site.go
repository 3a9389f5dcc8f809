package httptransport

import (
	"net/http"

	sitemodels "webdir/internal/site/models"
	dErrors "webdir/pkg/domain-errors"
	"webdir/pkg/platform/httputil"
)

type healthCheckRequest struct {
	Success *bool `json:"success"`
}

func (h *Handler) handleHealthCheckResult(w http.ResponseWriter, r *http.Request) {
	siteID, err := siteParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req healthCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Success == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "success is required"))
		return
	}
	result, err := h.sites.RecordCheckResult(r.Context(), siteID, *req.Success)
	if err != nil {
		h.fail(w, r, "failed to record health check", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRevive(w http.ResponseWriter, r *http.Request) {
	siteID, err := siteParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	site, err := h.sites.Revive(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, "failed to revive site", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, site)
}

func (h *Handler) handleListDead(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sites, err := h.sites.ListDead(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "failed to list dead sites", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]*sitemodels.Site{"sites": sites})
}
