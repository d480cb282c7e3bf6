package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-proposal/internal/common"
)

// Middleware guards routes that need a signed-in agent.
type Middleware struct {
	Service *Service
}

// RequireAuth rejects requests without a valid bearer token for an active agent and
// stores the agent on the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Service == nil {
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="proposal"`)
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		claims, err := m.Service.Authorize(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="proposal", error="invalid_token"`)
			if common.WriteAppError(w, err, http.StatusUnauthorized) {
				return
			}
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAgent(r.Context(), claims.AgentID, claims.Name)))
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
