package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposal/internal/common"
	"github.com/noah-isme/backend-proposal/internal/customer"
)

type fakeClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fakeCustomers struct {
	err      error
	recorded []RecordPayload
}

func (f *fakeCustomers) Exists(context.Context, string, string) error { return f.err }

func (f *fakeCustomers) RecordProposal(_ context.Context, agentID, customerID string, in customer.ProposalInput) (customer.Proposal, error) {
	if f.err != nil {
		return customer.Proposal{}, f.err
	}
	f.recorded = append(f.recorded, RecordPayload{AgentID: agentID, CustomerID: customerID, Input: in})
	return customer.Proposal{ID: "p-1", CustomerID: customerID, RequestID: in.RequestID}, nil
}

func sampleInput() customer.ProposalInput {
	return customer.ProposalInput{
		RequestID:      "req-1",
		CatalogVersion: "2024.05",
		FinalTotal:     decimal.NewFromInt(149900),
		DueAtSigning:   decimal.NewFromInt(44600),
		Terms:          18,
		Lines:          json.RawMessage(`[]`),
	}
}

func TestEnqueuerQueuesTaskByRequestID(t *testing.T) {
	client := &fakeClient{}
	e := Enqueuer{Client: client, Customers: &fakeCustomers{}}

	receipt, err := e.Record(context.Background(), "A001", "c-1", sampleInput())
	require.NoError(t, err)
	require.True(t, receipt.Queued())
	require.Equal(t, TaskID("A001", "c-1", "req-1"), receipt.TaskID)

	require.Len(t, client.tasks, 1)
	require.Equal(t, TypeRecordProposal, client.tasks[0].Type())
	var p RecordPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &p))
	require.Equal(t, "A001", p.AgentID)
	require.Equal(t, "c-1", p.CustomerID)
	require.True(t, p.Input.FinalTotal.Equal(decimal.NewFromInt(149900)))
	require.Len(t, client.opts[0], 4)
}

func TestEnqueuerTreatsDuplicateTaskAsQueued(t *testing.T) {
	e := Enqueuer{Client: &fakeClient{err: asynq.ErrTaskIDConflict}}
	receipt, err := e.Record(context.Background(), "A001", "c-1", sampleInput())
	require.NoError(t, err)
	require.Equal(t, TaskID("A001", "c-1", "req-1"), receipt.TaskID)
}

func TestTaskIDIsScopedToAgentAndCustomer(t *testing.T) {
	base := TaskID("A001", "c-1", "1")
	require.Equal(t, base, TaskID("A001", "c-1", "1"))
	require.NotEqual(t, base, TaskID("A002", "c-1", "1"))
	require.NotEqual(t, base, TaskID("A001", "c-2", "1"))
	require.NotEqual(t, TaskID("A001", "c-1|x", "1"), TaskID("A001", "c-1", "x|1"))
}

func TestEnqueuerKeepsReusedRequestIDsApart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	e := Enqueuer{Client: client, Customers: &fakeCustomers{}}

	in := sampleInput()
	in.RequestID = "1"
	first, err := e.Record(context.Background(), "A001", "cust-a", in)
	require.NoError(t, err)
	second, err := e.Record(context.Background(), "A002", "cust-b", in)
	require.NoError(t, err)
	require.NotEqual(t, first.TaskID, second.TaskID)

	// A retried save from the same agent for the same customer is still a duplicate.
	again, err := e.Record(context.Background(), "A001", "cust-a", in)
	require.NoError(t, err)
	require.Equal(t, first.TaskID, again.TaskID)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })
	pending, err := inspector.ListPendingTasks(DefaultQueue)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	agents := map[string]string{}
	for _, info := range pending {
		var p RecordPayload
		require.NoError(t, json.Unmarshal(info.Payload, &p))
		agents[p.AgentID] = p.CustomerID
	}
	require.Equal(t, map[string]string{"A001": "cust-a", "A002": "cust-b"}, agents)
}

func TestEnqueuerErrors(t *testing.T) {
	notFound := common.NewAppError("NOT_FOUND", "customer not found", http.StatusNotFound, customer.ErrNotFound)
	client := &fakeClient{}
	_, err := Enqueuer{Client: client, Customers: &fakeCustomers{err: notFound}}.Record(context.Background(), "A001", "c-1", sampleInput())
	require.ErrorIs(t, err, customer.ErrNotFound)
	require.Empty(t, client.tasks)

	_, err = Enqueuer{Client: &fakeClient{err: errors.New("redis down")}}.Record(context.Background(), "A001", "c-1", sampleInput())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)

	_, err = Enqueuer{}.Record(context.Background(), "A001", "c-1", sampleInput())
	require.Error(t, err)
}

func TestHandlerRecordsProposal(t *testing.T) {
	store := &fakeCustomers{}
	task, err := NewRecordTask(RecordPayload{AgentID: "A001", CustomerID: "c-1", Input: sampleInput()})
	require.NoError(t, err)

	h := Handler{Proposals: store, Logger: zerolog.Nop()}
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, store.recorded, 1)
	require.Equal(t, "req-1", store.recorded[0].Input.RequestID)
}

func TestHandlerRetryPolicy(t *testing.T) {
	task, err := NewRecordTask(RecordPayload{AgentID: "A001", CustomerID: "c-1", Input: sampleInput()})
	require.NoError(t, err)

	gone := Handler{Proposals: &fakeCustomers{err: common.NewAppError("NOT_FOUND", "customer not found", http.StatusNotFound, customer.ErrNotFound)}, Logger: zerolog.Nop()}
	require.ErrorIs(t, gone.ProcessTask(context.Background(), task), asynq.SkipRetry)

	flaky := Handler{Proposals: &fakeCustomers{err: errors.New("connection reset")}, Logger: zerolog.Nop()}
	err = flaky.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	bad := asynq.NewTask(TypeRecordProposal, []byte("{"))
	require.ErrorIs(t, flaky.ProcessTask(context.Background(), bad), asynq.SkipRetry)
}

func TestServeMuxRoutesRecordTask(t *testing.T) {
	store := &fakeCustomers{}
	mux := NewServeMux(Handler{Proposals: store, Logger: zerolog.Nop()})
	task, err := NewRecordTask(RecordPayload{AgentID: "A001", CustomerID: "c-1", Input: sampleInput()})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	require.Len(t, store.recorded, 1)
}
