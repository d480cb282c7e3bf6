package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/customer"
	"github.com/noah-isme/backend-proposal/internal/obs"
)

// ProposalWriter persists a proposal against a customer.
type ProposalWriter interface {
	RecordProposal(ctx context.Context, agentID, customerID string, in customer.ProposalInput) (customer.Proposal, error)
}

// Handler processes proposal record tasks on the worker.
type Handler struct {
	Proposals ProposalWriter
	Logger    zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p RecordPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.ObserveProposalRecord("worker", "invalid")
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	log := h.Logger.With().
		Str("task_type", t.Type()).
		Str("agent_id", p.AgentID).
		Str("customer_id", p.CustomerID).
		Str("request_id", p.Input.RequestID).
		Logger()

	rec, err := h.Proposals.RecordProposal(ctx, p.AgentID, p.CustomerID, p.Input)
	if err != nil {
		if permanent(err) {
			obs.ObserveProposalRecord("worker", "dropped")
			log.Warn().Err(err).Msg("dropping proposal record task")
			return fmt.Errorf("record proposal: %v: %w", err, asynq.SkipRetry)
		}
		obs.ObserveProposalRecord("worker", "error")
		log.Error().Err(err).Msg("proposal record task failed")
		return err
	}
	obs.ObserveProposalRecord("worker", "ok")
	log.Info().Str("proposal_id", rec.ID).Msg("proposal record task done")
	return nil
}

// permanent reports failures a retry cannot fix, such as a customer deleted after the
// task was queued.
func permanent(err error) bool {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus >= http.StatusBadRequest && appErr.HTTPStatus < http.StatusInternalServerError
	}
	return errors.Is(err, customer.ErrNotFound)
}

// NewServeMux routes proposal tasks to h.
func NewServeMux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeRecordProposal, h)
	return mux
}
