package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/export"
	"github.com/noah-isme/backend-proposal/internal/pricing"
)

// QuoteRequest is the body of the quote, export and save endpoints.
type QuoteRequest struct {
	Lines []LineRequest `json:"lines" validate:"max=50,dive"`
}

// LineRequest is one selected catalog line.
type LineRequest struct {
	Category string `json:"category" validate:"required"`
	Variant  string `json:"variant" validate:"required"`
	Mode     string `json:"mode" validate:"required"`
	Quantity int    `json:"quantity"`
}

// Selection converts the request into engine input.
func (q QuoteRequest) Selection() pricing.Selection {
	sel := make(pricing.Selection, len(q.Lines))
	for i, l := range q.Lines {
		sel[i] = pricing.LineItem{
			Category: l.Category,
			Variant:  l.Variant,
			Mode:     catalog.PurchaseMode(l.Mode),
			Quantity: l.Quantity,
		}
	}
	return sel
}

// Handler exposes catalog, quote, export and save endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
	// Now is used for the export timestamp; defaults to time.Now.
	Now func() time.Time
}

// Catalog handles GET /api/v1/catalog.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Service.Catalog()
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewCatalogView(cat))
}

// Quote handles POST /api/v1/proposals/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	summary, err := h.Service.Quote(r.Context(), req.Selection())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewQuoteView(summary))
}

// Export handles POST /api/v1/proposals/export and streams the proposal as xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	summary, err := h.Service.Quote(r.Context(), req.Selection())
	if err != nil {
		h.writeError(w, err)
		return
	}
	agentID, _ := common.AgentID(r.Context())
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	generated := now()
	f, err := export.Workbook(summary, export.Meta{
		AgentID:     agentID,
		AgentName:   common.AgentName(r.Context()),
		GeneratedAt: generated,
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("build proposal workbook")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to build workbook", nil)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"proposal-%s.xlsx\"", generated.Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		h.Logger.Warn().Err(err).Msg("stream proposal workbook")
	}
}

// Save handles POST /api/v1/customers/{id}/proposals. The Idempotency-Key header, when
// present, doubles as the request id so a retried save records one proposal.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	agentID, ok := common.AgentID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	requestID := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	summary, receipt, err := h.Service.Save(r.Context(), agentID, chi.URLParam(r, "id"), requestID, req.Selection())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if receipt.Queued() {
		common.Data(w, http.StatusAccepted, map[string]any{
			"task_id": receipt.TaskID, "request_id": requestID, "quote": NewQuoteView(summary),
		})
		return
	}
	common.Data(w, http.StatusCreated, map[string]any{"proposal": receipt.Proposal, "quote": NewQuoteView(summary)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (QuoteRequest, bool) {
	var req QuoteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid request payload", nil)
		return req, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid selection", validationDetails(err))
			return req, false
		}
	}
	return req, true
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"lines": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[fe.Namespace()] = rule
	}
	return out
}

// lineStatus maps engine failures to HTTP semantics: malformed input is the caller's
// fault, a catalog gap is a request the catalog cannot serve.
func lineStatus(err error) (string, int) {
	switch {
	case errors.Is(err, pricing.ErrInvalidQuantity), errors.Is(err, pricing.ErrUnknownPurchaseMode):
		return common.CodeValidation, http.StatusBadRequest
	case errors.Is(err, pricing.ErrUnknownVariant):
		return "UNKNOWN_VARIANT", http.StatusUnprocessableEntity
	case errors.Is(err, pricing.ErrMissingPricePoint):
		return "MISSING_PRICE_POINT", http.StatusUnprocessableEntity
	case errors.Is(err, pricing.ErrMissingDownPayment):
		return "MISSING_DOWN_PAYMENT", http.StatusUnprocessableEntity
	default:
		return common.CodeInternal, http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var lineErr *pricing.LineError
	if errors.As(err, &lineErr) {
		code, status := lineStatus(lineErr.Err)
		common.JSONError(w, status, code, lineErr.Err.Error(), map[string]any{
			"line":     lineErr.Index + 1,
			"category": lineErr.Category,
			"variant":  lineErr.Variant,
			"mode":     string(lineErr.Mode),
		})
		return
	}
	if common.WriteAppError(w, err, http.StatusInternalServerError) {
		return
	}
	h.Logger.Error().Err(err).Msg("proposal request failed")
	common.WriteInternal(w)
}
