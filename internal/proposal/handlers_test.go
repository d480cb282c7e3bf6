package proposal

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/export"
)

func testRouter(t *testing.T, rec Recorder) http.Handler {
	t.Helper()
	h := &Handler{
		Service:  newTestService(t, nil, rec),
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) },
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithAgent(r.Context(), "A001", "張大明")))
		})
	})
	r.Get("/catalog", h.Catalog)
	r.Post("/proposals/quote", h.Quote)
	r.Post("/proposals/export", h.Export)
	r.Post("/customers/{id}/proposals", h.Save)
	return r
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func post(router http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const quoteBody = `{"lines":[{"category":"永念","variant":"2人","mode":"installment","quantity":1}]}`

func TestCatalogEndpoint(t *testing.T) {
	router := testRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data CatalogView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Version)
	require.NotEmpty(t, body.Data.Categories)
	for _, c := range body.Data.Categories {
		for _, v := range c.Variants {
			require.NotEmpty(t, v.Modes, "%s/%s", c.Name, v.Name)
		}
	}
}

func TestQuoteEndpoint(t *testing.T) {
	router := testRouter(t, nil)
	rec := post(router, "/proposals/quote", quoteBody, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Terms   int            `json:"terms"`
			Display SummaryDisplay `json:"display"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 18, body.Data.Terms)
	require.Len(t, body.Data.Display.Schedule, 1)
	require.Equal(t, "第1-18期", body.Data.Display.Schedule[0].Label)
	require.Equal(t, 18, body.Data.Display.Schedule[0].Periods)
	require.Equal(t, "分期價-18期", body.Data.Display.Lines[0].Label)
}

func TestQuoteEndpointErrors(t *testing.T) {
	router := testRouter(t, nil)
	cases := []struct {
		name   string
		body   string
		status int
		code   string
		line   float64
	}{
		{"malformed", `{"lines":`, http.StatusBadRequest, "BAD_REQUEST", 0},
		{"unknown field", `{"lines":[],"discount":5}`, http.StatusBadRequest, "BAD_REQUEST", 0},
		{"missing variant", `{"lines":[{"category":"永念","mode":"cash","quantity":1}]}`, http.StatusBadRequest, "VALIDATION_ERROR", 0},
		{"zero quantity", `{"lines":[{"category":"永念","variant":"2人","mode":"installment","quantity":0}]}`, http.StatusBadRequest, "VALIDATION_ERROR", 1},
		{"unknown mode", `{"lines":[{"category":"永念","variant":"2人","mode":"layaway","quantity":1}]}`, http.StatusBadRequest, "VALIDATION_ERROR", 1},
		{"unknown variant", `{"lines":[{"category":"永念","variant":"2人","mode":"installment","quantity":1},{"category":"永念","variant":"99人","mode":"installment","quantity":1}]}`, http.StatusUnprocessableEntity, "UNKNOWN_VARIANT", 2},
		{"missing price point", `{"lines":[{"category":"普羅廳","variant":"8、9","mode":"single_installment","quantity":1}]}`, http.StatusUnprocessableEntity, "MISSING_PRICE_POINT", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(router, "/proposals/quote", tc.body, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error.Code)
			if tc.line > 0 {
				require.Equal(t, tc.line, body.Error.Details["line"])
			}
		})
	}
}

func TestEmptySelectionQuotesZero(t *testing.T) {
	router := testRouter(t, nil)
	rec := post(router, "/proposals/quote", `{"lines":[]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"terms":0`)
}

func TestExportEndpoint(t *testing.T) {
	router := testRouter(t, nil)
	rec := post(router, "/proposals/export", quoteBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "proposal-20240501-103000.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	agent, err := f.GetCellValue(export.SheetSummary, "B1")
	require.NoError(t, err)
	require.Equal(t, "A001 張大明", agent)
}

func TestSaveEndpoint(t *testing.T) {
	rec := &fakeRecorder{}
	router := testRouter(t, rec)

	resp := post(router, "/customers/c-9/proposals", quoteBody, map[string]string{"Idempotency-Key": "save-1"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Equal(t, "save-1", rec.input.RequestID)
	require.Equal(t, "c-9", rec.target)
	require.Contains(t, resp.Body.String(), `"request_id":"save-1"`)

	resp = post(router, "/customers/c-9/proposals", quoteBody, nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotEmpty(t, rec.input.RequestID)
	require.NotEqual(t, "save-1", rec.input.RequestID)
}

func TestSaveEndpointQueued(t *testing.T) {
	router := testRouter(t, &fakeRecorder{queue: true})
	resp := post(router, "/customers/c-9/proposals", quoteBody, map[string]string{"Idempotency-Key": "save-2"})
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Contains(t, resp.Body.String(), `"task_id":"save-2"`)
}

func TestSaveEndpointMapsCustomerErrors(t *testing.T) {
	rec := &fakeRecorder{err: common.NewAppError("NOT_FOUND", "customer not found", http.StatusNotFound, nil)}
	router := testRouter(t, rec)
	resp := post(router, "/customers/missing/proposals", quoteBody, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Contains(t, resp.Body.String(), `"NOT_FOUND"`)
}
