package customer

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-proposal/internal/common"
)

// Handler exposes REST endpoints for the agent's customer records.
type Handler struct {
	Service *Service
}

// List handles GET /api/v1/customers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, defaultPerPage)
	q := r.URL.Query()
	items, total, err := h.Service.List(r.Context(), ListFilter{
		AgentID: agentID,
		Status:  Status(strings.TrimSpace(q.Get("status"))),
		Query:   q.Get("q"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Create handles POST /api/v1/customers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}
	var in Input
	if err := decode(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid request payload", nil)
		return
	}
	c, err := h.Service.Create(r.Context(), agentID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, c)
}

// Get handles GET /api/v1/customers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Get(r.Context(), agentID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, c)
}

// Update handles PATCH /api/v1/customers/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}
	var p Patch
	if err := decode(r, &p); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid request payload", nil)
		return
	}
	c, err := h.Service.Update(r.Context(), agentID, chi.URLParam(r, "id"), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, c)
}

// Delete handles DELETE /api/v1/customers/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), agentID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Proposals handles GET /api/v1/customers/{id}/proposals.
func (h *Handler) Proposals(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, defaultPerPage)
	items, total, err := h.Service.Proposals(r.Context(), agentID, chi.URLParam(r, "id"), page, perPage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

func (h *Handler) agent(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "customer service not configured", nil)
		return "", false
	}
	agentID, ok := common.AgentID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return "", false
	}
	return agentID, true
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err, http.StatusInternalServerError) {
		return
	}
	common.WriteInternal(w)
}
