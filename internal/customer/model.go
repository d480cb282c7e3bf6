// Package customer stores the agent's customer records and the proposals quoted to them.
package customer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a customer or proposal does not exist for the agent.
var ErrNotFound = errors.New("customer not found")

// Status tracks where the customer is in the sales conversation.
type Status string

const (
	StatusNotContacted Status = "not_contacted"
	StatusContacted    Status = "contacted"
	StatusClosed       Status = "closed"
	StatusDeclined     Status = "declined"
)

var statusLabels = map[Status]string{
	StatusNotContacted: "尚未聯絡",
	StatusContacted:    "已聯絡",
	StatusClosed:       "已成交",
	StatusDeclined:     "拒絕",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label is the display name shown to agents.
func (s Status) Label() string { return statusLabels[s] }

// Customer is one record owned by an agent.
type Customer struct {
	ID                   string              `json:"id"`
	AgentID              string              `json:"agent_id"`
	ClientName           string              `json:"client_name"`
	Gender               string              `json:"gender,omitempty"`
	Relation             string              `json:"relation,omitempty"`
	Birthday             string              `json:"birthday,omitempty"`
	Address              string              `json:"address,omitempty"`
	Phone                string              `json:"phone,omitempty"`
	Email                string              `json:"email,omitempty"`
	Status               Status              `json:"current_status"`
	LatestProposalDate   *time.Time          `json:"latest_proposal_date,omitempty"`
	LatestProposalAmount decimal.NullDecimal `json:"latest_proposal_amount"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// Input is the editable part of a customer. Birthday is a calendar date (YYYY-MM-DD).
type Input struct {
	ClientName string `json:"client_name" validate:"required,max=100"`
	Gender     string `json:"gender" validate:"omitempty,oneof=男 女"`
	Relation   string `json:"relation" validate:"omitempty,max=50"`
	Birthday   string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Address    string `json:"address" validate:"omitempty,max=255"`
	Phone      string `json:"phone" validate:"omitempty,max=32"`
	Email      string `json:"email" validate:"omitempty,email"`
	Status     Status `json:"current_status" validate:"omitempty,customer_status"`
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	ClientName *string `json:"client_name" validate:"omitempty,min=1,max=100"`
	Gender     *string `json:"gender" validate:"omitempty,oneof=男 女"`
	Relation   *string `json:"relation" validate:"omitempty,max=50"`
	Birthday   *string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Address    *string `json:"address" validate:"omitempty,max=255"`
	Phone      *string `json:"phone" validate:"omitempty,max=32"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Status     *Status `json:"current_status" validate:"omitempty,customer_status"`
}

func (p Patch) apply(c *Customer) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.ClientName, p.ClientName)
	set(&c.Gender, p.Gender)
	set(&c.Relation, p.Relation)
	set(&c.Birthday, p.Birthday)
	set(&c.Address, p.Address)
	set(&c.Phone, p.Phone)
	set(&c.Email, p.Email)
	if p.Status != nil {
		c.Status = *p.Status
	}
}

// ListFilter narrows a customer listing.
type ListFilter struct {
	AgentID string
	Status  Status
	Query   string
	Page    int
	PerPage int
}

func (f ListFilter) offset() int { return (f.Page - 1) * f.PerPage }

// ProposalInput is a computed proposal to attach to a customer. RequestID, scoped to the
// agent and customer, makes recording idempotent across retries.
type ProposalInput struct {
	RequestID      string          `json:"request_id"`
	CatalogVersion string          `json:"catalog_version"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	DueAtSigning   decimal.Decimal `json:"due_at_signing"`
	Terms          int             `json:"terms"`
	Lines          json.RawMessage `json:"lines"`
}

// Proposal is a recorded proposal.
type Proposal struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id"`
	AgentID        string          `json:"agent_id"`
	RequestID      string          `json:"request_id"`
	CatalogVersion string          `json:"catalog_version"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	DueAtSigning   decimal.Decimal `json:"due_at_signing"`
	Terms          int             `json:"terms"`
	Lines          json.RawMessage `json:"lines"`
	CreatedAt      time.Time       `json:"created_at"`
}
