package auth

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/backend-proposal/internal/common"
)

// Handler exposes HTTP handlers for agent sign-in.
type Handler struct {
	Service *Service
}

type loginRequest struct {
	AgentID  string `json:"agent_id"`
	Passcode string `json:"passcode"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid request payload", nil)
		return
	}
	result, err := h.Service.Login(r.Context(), req.AgentID, req.Passcode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, result)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
		return
	}
	agentID, ok := common.AgentID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	a, err := h.Service.Me(r.Context(), agentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, a)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err, http.StatusInternalServerError) {
		return
	}
	common.WriteInternal(w)
}
