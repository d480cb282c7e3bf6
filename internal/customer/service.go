package customer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-proposal/internal/common"
)

const defaultPerPage = 20

// NewValidator returns a validator that knows the customer_status tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("customer_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Service applies validation and ownership rules on top of a Store.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewService constructs a customer service.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, validate: NewValidator(), logger: logger}
}

// Create stores a new customer owned by agentID.
func (s *Service) Create(ctx context.Context, agentID string, in Input) (Customer, error) {
	in = trimInput(in)
	if err := s.check(in); err != nil {
		return Customer{}, err
	}
	if in.Status == "" {
		in.Status = StatusNotContacted
	}
	c, err := s.store.Create(ctx, Customer{
		AgentID:    agentID,
		ClientName: in.ClientName,
		Gender:     in.Gender,
		Relation:   in.Relation,
		Birthday:   in.Birthday,
		Address:    in.Address,
		Phone:      in.Phone,
		Email:      in.Email,
		Status:     in.Status,
	})
	if err != nil {
		return Customer{}, s.storeError(err, "create customer")
	}
	return c, nil
}

// Get returns one of the agent's customers.
func (s *Service) Get(ctx context.Context, agentID, id string) (Customer, error) {
	c, err := s.store.Get(ctx, agentID, id)
	if err != nil {
		return Customer{}, s.storeError(err, "get customer")
	}
	return c, nil
}

// List pages through the agent's customers, most recently updated first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Customer, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, validationError(map[string]string{"status": "must be one of not_contacted contacted closed declined"})
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, s.storeError(err, "list customers")
	}
	return items, total, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, agentID, id string, p Patch) (Customer, error) {
	if err := s.check(p); err != nil {
		return Customer{}, err
	}
	current, err := s.store.Get(ctx, agentID, id)
	if err != nil {
		return Customer{}, s.storeError(err, "get customer")
	}
	p.apply(&current)
	current.ClientName = strings.TrimSpace(current.ClientName)
	if current.ClientName == "" {
		return Customer{}, validationError(map[string]string{"client_name": "required"})
	}
	updated, err := s.store.Update(ctx, current)
	if err != nil {
		return Customer{}, s.storeError(err, "update customer")
	}
	return updated, nil
}

// Delete removes a customer and its recorded proposals.
func (s *Service) Delete(ctx context.Context, agentID, id string) error {
	if err := s.store.Delete(ctx, agentID, id); err != nil {
		return s.storeError(err, "delete customer")
	}
	return nil
}

// RecordProposal attaches a computed proposal to the customer.
func (s *Service) RecordProposal(ctx context.Context, agentID, customerID string, in ProposalInput) (Proposal, error) {
	if len(in.Lines) == 0 {
		in.Lines = json.RawMessage("[]")
	}
	p, err := s.store.RecordProposal(ctx, agentID, customerID, in)
	if err != nil {
		return Proposal{}, s.storeError(err, "record proposal")
	}
	s.logger.Info().
		Str("agent_id", agentID).
		Str("customer_id", customerID).
		Str("proposal_id", p.ID).
		Str("final_total", p.FinalTotal.String()).
		Msg("proposal recorded")
	return p, nil
}

// Exists checks that the agent owns the customer without loading proposals.
func (s *Service) Exists(ctx context.Context, agentID, customerID string) error {
	_, err := s.Get(ctx, agentID, customerID)
	return err
}

// Proposals lists recorded proposals for a customer, newest first.
func (s *Service) Proposals(ctx context.Context, agentID, customerID string, page, perPage int) ([]Proposal, int64, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	items, total, err := s.store.ListProposals(ctx, agentID, customerID, page, perPage)
	if err != nil {
		return nil, 0, s.storeError(err, "list proposals")
	}
	return items, total, nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.NewAppError(common.CodeValidation, err.Error(), http.StatusBadRequest, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return validationError(fields)
}

func (s *Service) storeError(err error, op string) error {
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError(common.CodeNotFound, "customer not found", http.StatusNotFound, err)
	}
	if common.IsAppError(err) {
		return err
	}
	s.logger.Error().Err(err).Str("op", op).Msg("customer store failure")
	return common.NewAppError(common.CodeInternal, "internal error", http.StatusInternalServerError, err)
}

func validationError(fields map[string]string) error {
	return common.NewAppError(common.CodeValidation, "invalid customer", http.StatusBadRequest, nil).WithDetails(fields)
}

func trimInput(in Input) Input {
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.Gender = strings.TrimSpace(in.Gender)
	in.Relation = strings.TrimSpace(in.Relation)
	in.Birthday = strings.TrimSpace(in.Birthday)
	in.Address = strings.TrimSpace(in.Address)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	return in
}
