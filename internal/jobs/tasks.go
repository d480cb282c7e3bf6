// Package jobs records saved proposals asynchronously through asynq.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/customer"
	"github.com/noah-isme/backend-proposal/internal/proposal"
)

// TypeRecordProposal is the asynq task type for proposal persistence.
const TypeRecordProposal = "proposal:record"

// DefaultQueue is the asynq queue proposal tasks go to.
const DefaultQueue = "proposals"

// RecordPayload is the task body.
type RecordPayload struct {
	AgentID    string                 `json:"agent_id"`
	CustomerID string                 `json:"customer_id"`
	Input      customer.ProposalInput `json:"input"`
}

// NewRecordTask encodes a proposal record task.
func NewRecordTask(p RecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode record payload: %w", err)
	}
	return asynq.NewTask(TypeRecordProposal, data), nil
}

// TaskClient is the subset of *asynq.Client used to enqueue.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CustomerChecker confirms the agent owns a customer before a task is queued.
type CustomerChecker interface {
	Exists(ctx context.Context, agentID, customerID string) error
}

// Enqueuer queues proposal records instead of writing them inline. It implements
// proposal.Recorder.
type Enqueuer struct {
	Client    TaskClient
	Customers CustomerChecker
	Queue     string
	MaxRetry  int
	// Retention keeps completed tasks so a retried save with the same request id
	// is recognised as a duplicate.
	Retention time.Duration
}

var _ proposal.Recorder = Enqueuer{}

// Record implements proposal.Recorder. The asynq task id is derived from the agent, the
// customer and the request id, matching the scope of the stored proposal's request key.
func (e Enqueuer) Record(ctx context.Context, agentID, customerID string, in customer.ProposalInput) (proposal.Receipt, error) {
	if e.Client == nil {
		return proposal.Receipt{}, common.NewAppError(common.CodeInternal, "task queue not configured", http.StatusInternalServerError, nil)
	}
	if e.Customers != nil {
		if err := e.Customers.Exists(ctx, agentID, customerID); err != nil {
			return proposal.Receipt{}, err
		}
	}
	task, err := NewRecordTask(RecordPayload{AgentID: agentID, CustomerID: customerID, Input: in})
	if err != nil {
		return proposal.Receipt{}, err
	}

	queue := e.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}
	retention := e.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	taskID := TaskID(agentID, customerID, in.RequestID)
	_, err = e.Client.EnqueueContext(ctx, task,
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(taskID),
		asynq.Retention(retention),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return proposal.Receipt{}, common.NewAppError("QUEUE_UNAVAILABLE", "could not queue proposal", http.StatusServiceUnavailable, err)
	}
	return proposal.Receipt{TaskID: taskID}, nil
}

// TaskID derives the asynq task id for a save request. Request ids are client supplied, so
// the same id from another agent or for another customer yields a different task.
func TaskID(agentID, customerID, requestID string) string {
	return TypeRecordProposal + ":" + common.Sha256Hex(agentID+"|"+customerID+"|"+requestID)
}
