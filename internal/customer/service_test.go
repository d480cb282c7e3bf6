package customer

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposal/internal/common"
)

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, zerolog.Nop()), store
}

func requireAppError(t *testing.T, err error, status int, code string) *common.AppError {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	require.Equal(t, status, appErr.HTTPStatus)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func TestCreateDefaultsStatusAndTrims(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "A001", Input{ClientName: "  林先生 ", Gender: "男", Birthday: "1960-03-15"})
	require.NoError(t, err)
	require.Equal(t, "林先生", c.ClientName)
	require.Equal(t, StatusNotContacted, c.Status)
	require.Equal(t, "A001", c.AgentID)
	require.False(t, c.LatestProposalAmount.Valid)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), "A001", Input{
		Gender:   "x",
		Birthday: "15/03/1960",
		Email:    "not-an-email",
		Status:   "unknown",
	})
	appErr := requireAppError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	fields, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, "required", fields["client_name"])
	require.Contains(t, fields, "gender")
	require.Contains(t, fields, "birthday")
	require.Equal(t, "email", fields["email"])
	require.Equal(t, "customer_status", fields["current_status"])
}

func TestCustomersAreScopedToAgent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Create(ctx, "A001", Input{ClientName: "林先生"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "A002", c.ID)
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")
	err = svc.Delete(ctx, "A002", c.ID)
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")

	items, total, err := svc.List(ctx, ListFilter{AgentID: "A002"})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Zero(t, total)
}

func TestUpdateAppliesPatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Create(ctx, "A001", Input{ClientName: "林先生", Phone: "0912"})
	require.NoError(t, err)

	status := StatusContacted
	phone := "0988"
	updated, err := svc.Update(ctx, "A001", c.ID, Patch{Status: &status, Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, StatusContacted, updated.Status)
	require.Equal(t, "0988", updated.Phone)
	require.Equal(t, "林先生", updated.ClientName)

	blank := "  "
	_, err = svc.Update(ctx, "A001", c.ID, Patch{ClientName: &blank})
	requireAppError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")

	bad := Status("lost")
	_, err = svc.Update(ctx, "A001", c.ID, Patch{Status: &bad})
	requireAppError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestListFiltersAndPages(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, name := range []string{"王一", "王二", "陳三"} {
		_, err := svc.Create(ctx, "A001", Input{ClientName: name})
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, ListFilter{AgentID: "A001", Query: "王", PerPage: 1})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, items, 1)
	require.Equal(t, "王二", items[0].ClientName)

	_, _, err = svc.List(ctx, ListFilter{AgentID: "A001", Status: "lost"})
	requireAppError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestRecordProposalUpdatesLatestFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Create(ctx, "A001", Input{ClientName: "林先生"})
	require.NoError(t, err)

	in := ProposalInput{
		RequestID:      "req-1",
		CatalogVersion: "greengarden-2024.1",
		FinalTotal:     decimal.NewFromInt(215400),
		DueAtSigning:   decimal.NewFromInt(44600),
		Terms:          18,
	}
	p, err := svc.RecordProposal(ctx, "A001", c.ID, in)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(p.Lines))

	again, err := svc.RecordProposal(ctx, "A001", c.ID, in)
	require.NoError(t, err)
	require.Equal(t, p.ID, again.ID)

	got, err := svc.Get(ctx, "A001", c.ID)
	require.NoError(t, err)
	require.True(t, got.LatestProposalAmount.Valid)
	require.True(t, got.LatestProposalAmount.Decimal.Equal(decimal.NewFromInt(215400)))
	require.NotNil(t, got.LatestProposalDate)

	list, total, err := svc.Proposals(ctx, "A001", c.ID, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, list, 1)

	_, err = svc.RecordProposal(ctx, "A002", c.ID, in)
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestStatusLabels(t *testing.T) {
	require.Equal(t, "已成交", StatusClosed.Label())
	require.Equal(t, "尚未聯絡", StatusNotContacted.Label())
	require.False(t, Status("").Valid())
}
