package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestLoginAndMeOverHTTP(t *testing.T) {
	svc := newTestService(t)
	h := &Handler{Service: svc}
	mw := Middleware{Service: svc}

	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.With(mw.RequireAuth).Get("/me", h.Me)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"agent_id":"A001"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var login struct {
		Data struct {
			AccessToken string `json:"access_token"`
			Agent       struct {
				ID   string `json:"agent_id"`
				Name string `json:"agent_name"`
			} `json:"agent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.Equal(t, "A001", login.Data.Agent.ID)
	require.NotEmpty(t, login.Data.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.AccessToken)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "張大明")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginDeniedAgent(t *testing.T) {
	h := &Handler{Service: newTestService(t)}
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"agent_id":"A009"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_AUTHORIZED")

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
