// Package proposal serves quotes, exports and saved proposals on top of the pricing engine.
package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/customer"
	"github.com/noah-isme/backend-proposal/internal/obs"
	"github.com/noah-isme/backend-proposal/internal/pricing"
)

// Receipt describes where a saved proposal went. Proposal is set when it was written
// immediately; TaskID is set when recording was queued.
type Receipt struct {
	Proposal *customer.Proposal `json:"proposal,omitempty"`
	TaskID   string             `json:"task_id,omitempty"`
}

// Queued reports whether the proposal will be recorded asynchronously.
func (r Receipt) Queued() bool { return r.Proposal == nil }

// Recorder attaches a computed proposal to a customer.
type Recorder interface {
	Record(ctx context.Context, agentID, customerID string, in customer.ProposalInput) (Receipt, error)
}

// CustomerRecorder writes proposals synchronously through the customer service.
type CustomerRecorder struct {
	Customers *customer.Service
}

// Record implements Recorder.
func (r CustomerRecorder) Record(ctx context.Context, agentID, customerID string, in customer.ProposalInput) (Receipt, error) {
	p, err := r.Customers.RecordProposal(ctx, agentID, customerID, in)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Proposal: &p}, nil
}

// Service prices selections against the active catalog snapshot.
type Service struct {
	catalogs *catalog.Store
	cache    *QuoteCache
	recorder Recorder
	mode     string
	logger   zerolog.Logger
}

// Config wires a Service.
type Config struct {
	Catalogs *catalog.Store
	Cache    *QuoteCache
	Recorder Recorder
	// RecordingMode labels proposal record metrics (sync or async).
	RecordingMode string
	Logger        zerolog.Logger
}

// NewService constructs the proposal service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("catalog store is required")
	}
	mode := cfg.RecordingMode
	if mode == "" {
		mode = "sync"
	}
	return &Service{
		catalogs: cfg.Catalogs,
		cache:    cfg.Cache,
		recorder: cfg.Recorder,
		mode:     mode,
		logger:   cfg.Logger,
	}, nil
}

// Catalog returns the active catalog snapshot.
func (s *Service) Catalog() (*catalog.Catalog, error) {
	cat, err := s.catalogs.Current()
	if err != nil {
		return nil, common.NewAppError("CATALOG_UNAVAILABLE", "price catalog is not loaded", http.StatusServiceUnavailable, err)
	}
	return cat, nil
}

// Quote computes the proposal for sel, serving repeated selections from the cache.
// Cache failures are logged and never fail the quote.
func (s *Service) Quote(ctx context.Context, sel pricing.Selection) (pricing.Summary, error) {
	cat, err := s.Catalog()
	if err != nil {
		return pricing.Summary{}, err
	}

	sel = Normalize(sel)
	ctx, span := otel.Tracer("proposal").Start(ctx, "proposal.compute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("proposal.lines", len(sel)),
		attribute.String("catalog.version", cat.Version()),
	)

	key := QuoteKey(cat, sel)
	var cached pricing.Summary
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		obs.ObserveQuoteCache("error")
		s.logger.Warn().Err(err).Msg("quote cache read failed")
	case hit:
		obs.ObserveQuoteCache("hit")
		span.SetAttributes(attribute.Bool("proposal.cached", true))
		return cached, nil
	case s.cache.enabled():
		obs.ObserveQuoteCache("miss")
	}

	start := time.Now()
	summary, err := pricing.Compute(sel, cat)
	if err != nil {
		obs.ObserveProposalCompute("error", len(sel), time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pricing.Summary{}, err
	}
	obs.ObserveProposalCompute("ok", len(sel), time.Since(start))

	if err := s.cache.SetJSON(ctx, key, summary); err != nil {
		s.logger.Warn().Err(err).Msg("quote cache write failed")
	}
	return summary, nil
}

// Save quotes sel and records the result against the customer. requestID deduplicates
// retries of the same save.
func (s *Service) Save(ctx context.Context, agentID, customerID, requestID string, sel pricing.Selection) (pricing.Summary, Receipt, error) {
	if s.recorder == nil {
		return pricing.Summary{}, Receipt{}, common.NewAppError(common.CodeInternal, "proposal recording not configured", http.StatusInternalServerError, nil)
	}
	summary, err := s.Quote(ctx, sel)
	if err != nil {
		return pricing.Summary{}, Receipt{}, err
	}
	in, err := RecordInput(requestID, summary)
	if err != nil {
		return pricing.Summary{}, Receipt{}, err
	}
	receipt, err := s.recorder.Record(ctx, agentID, customerID, in)
	if err != nil {
		obs.ObserveProposalRecord(s.mode, "error")
		return pricing.Summary{}, Receipt{}, err
	}
	obs.ObserveProposalRecord(s.mode, "ok")
	return summary, receipt, nil
}

// RecordInput snapshots the parts of a summary kept with a customer.
func RecordInput(requestID string, s pricing.Summary) (customer.ProposalInput, error) {
	lines, err := json.Marshal(s.Lines)
	if err != nil {
		return customer.ProposalInput{}, err
	}
	return customer.ProposalInput{
		RequestID:      requestID,
		CatalogVersion: s.CatalogVersion,
		FinalTotal:     s.FinalTotal,
		DueAtSigning:   s.DueAtSigning,
		Terms:          s.Terms,
		Lines:          lines,
	}, nil
}
