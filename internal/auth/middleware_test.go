package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposal/internal/agent"
	"github.com/noah-isme/backend-proposal/internal/common"
)

func guarded(mw Middleware) http.Handler {
	return mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := common.AgentID(r.Context())
		_, _ = w.Write([]byte(id + "|" + common.AgentName(r.Context())))
	}))
}

func TestRequireAuthRejectsRevokedAgent(t *testing.T) {
	issuer := newTestService(t)
	token, _, err := issuer.signAccessToken(agent.Agent{ID: "A001", Name: "張大明", Status: agent.StatusActive})
	require.NoError(t, err)

	renamed := agent.NewRoster(agent.Agent{ID: "A001", Name: "張大明(資深)", Status: agent.StatusActive})
	svc, err := NewService(Config{Directory: renamed, Secret: "super-secret-key", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	guarded(Middleware{Service: svc}).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "A001|張大明(資深)", rec.Body.String())

	revoked := agent.NewRoster(agent.Agent{ID: "A001", Name: "張大明", Status: "inactive"})
	svc, err = NewService(Config{Directory: revoked, Secret: "super-secret-key", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	guarded(Middleware{Service: svc}).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_AUTHORIZED")
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestRequireAuthNeedsBearerScheme(t *testing.T) {
	svc := newTestService(t)
	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		guarded(Middleware{Service: svc}).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
		require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"), header)
	}
}
