package httptransport

import (
	"net/http"

	catmodels "webdir/internal/category/models"
	"webdir/pkg/platform/httputil"
)

func (h *Handler) handleListRoots(w http.ResponseWriter, r *http.Request) {
	roots, err := h.categories.ListRoots(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list root categories", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]*catmodels.Category{"categories": roots})
}

func (h *Handler) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := categoryParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.categories.Get(r.Context(), categoryID)
	if err != nil {
		h.fail(w, r, "failed to get category", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleListChildren(w http.ResponseWriter, r *http.Request) {
	categoryID, err := categoryParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.categories.Get(r.Context(), categoryID); err != nil {
		h.fail(w, r, "failed to get category", err)
		return
	}
	children, err := h.categories.ListChildren(r.Context(), categoryID)
	if err != nil {
		h.fail(w, r, "failed to list child categories", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]*catmodels.Category{"categories": children})
}

func (h *Handler) handleCategoryPath(w http.ResponseWriter, r *http.Request) {
	categoryID, err := categoryParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	path, err := h.categories.Path(r.Context(), categoryID)
	if err != nil {
		h.fail(w, r, "failed to resolve category path", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]*catmodels.Category{"path": path})
}

func (h *Handler) handleBubbled(w http.ResponseWriter, r *http.Request) {
	categoryID, err := categoryParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.bubbling.GetBubbledSites(r.Context(), categoryID)
	if err != nil {
		h.fail(w, r, "failed to build bubbled view", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req catmodels.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.categories.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, "failed to create category", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := categoryParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.categories.Delete(r.Context(), categoryID); err != nil {
		h.fail(w, r, "failed to delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecalculateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := categoryParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.ranking.RecalculateCategory(r.Context(), categoryID)
	if err != nil {
		h.fail(w, r, "failed to recalculate category", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ranking.RecalculateAll(r.Context())
	if err != nil {
		h.fail(w, r, "failed to recalculate rankings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}
