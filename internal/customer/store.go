package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store persists customers. Every method is scoped to the owning agent.
type Store interface {
	Create(ctx context.Context, c Customer) (Customer, error)
	Get(ctx context.Context, agentID, id string) (Customer, error)
	List(ctx context.Context, f ListFilter) ([]Customer, int64, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	Delete(ctx context.Context, agentID, id string) error
	// RecordProposal inserts the proposal and refreshes the customer's latest proposal
	// fields. A repeated RequestID returns the earlier record unchanged.
	RecordProposal(ctx context.Context, agentID, customerID string, in ProposalInput) (Proposal, error)
	ListProposals(ctx context.Context, agentID, customerID string, page, perPage int) ([]Proposal, int64, error)
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPGStore constructs a store over pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, now: time.Now}
}

const customerColumns = `id::text, agent_id, client_name, coalesce(gender, ''), coalesce(relation, ''),
	coalesce(birthday::text, ''), coalesce(address, ''), coalesce(phone, ''), coalesce(email, ''),
	current_status, latest_proposal_date, latest_proposal_amount::text, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		c      Customer
		amount *string
	)
	err := row.Scan(&c.ID, &c.AgentID, &c.ClientName, &c.Gender, &c.Relation, &c.Birthday,
		&c.Address, &c.Phone, &c.Email, &c.Status, &c.LatestProposalDate, &amount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return Customer{}, fmt.Errorf("parse latest_proposal_amount: %w", err)
		}
		c.LatestProposalAmount = decimal.NewNullDecimal(d)
	}
	return c, nil
}

func nullable(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func (s *PGStore) Create(ctx context.Context, c Customer) (Customer, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now().UTC()
	row := s.pool.QueryRow(ctx, `
INSERT INTO customers (id, agent_id, client_name, gender, relation, birthday, address, phone, email,
	current_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11, $11)
RETURNING `+customerColumns,
		c.ID, c.AgentID, c.ClientName, nullable(c.Gender), nullable(c.Relation), nullable(c.Birthday),
		nullable(c.Address), nullable(c.Phone), nullable(c.Email), string(c.Status), now)
	return scanCustomer(row)
}

func (s *PGStore) Get(ctx context.Context, agentID, id string) (Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Customer{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 AND agent_id = $2`, id, agentID)
	return scanCustomer(row)
}

func (s *PGStore) List(ctx context.Context, f ListFilter) ([]Customer, int64, error) {
	where := []string{"agent_id = $1"}
	args := []any{f.AgentID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("current_status = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(client_name ILIKE $%d OR phone ILIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM customers WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PerPage, f.offset())
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM customers WHERE %s
ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`, customerColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Customer, 0, f.PerPage)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, c Customer) (Customer, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE customers SET client_name = $3, gender = $4, relation = $5, birthday = $6::date, address = $7,
	phone = $8, email = $9, current_status = $10, updated_at = $11
WHERE id = $1 AND agent_id = $2
RETURNING `+customerColumns,
		c.ID, c.AgentID, c.ClientName, nullable(c.Gender), nullable(c.Relation), nullable(c.Birthday),
		nullable(c.Address), nullable(c.Phone), nullable(c.Email), string(c.Status), s.now().UTC())
	return scanCustomer(row)
}

func (s *PGStore) Delete(ctx context.Context, agentID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1 AND agent_id = $2`, id, agentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const proposalColumns = `id::text, customer_id::text, agent_id, request_id, catalog_version,
	final_total::text, due_at_signing::text, terms, lines, created_at`

func scanProposal(row pgx.Row) (Proposal, error) {
	var (
		p          Proposal
		total, due string
		lines      []byte
	)
	if err := row.Scan(&p.ID, &p.CustomerID, &p.AgentID, &p.RequestID, &p.CatalogVersion,
		&total, &due, &p.Terms, &lines, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, err
	}
	var err error
	if p.FinalTotal, err = decimal.NewFromString(total); err != nil {
		return Proposal{}, fmt.Errorf("parse final_total: %w", err)
	}
	if p.DueAtSigning, err = decimal.NewFromString(due); err != nil {
		return Proposal{}, fmt.Errorf("parse due_at_signing: %w", err)
	}
	p.Lines = lines
	return p, nil
}

func (s *PGStore) RecordProposal(ctx context.Context, agentID, customerID string, in ProposalInput) (Proposal, error) {
	if _, err := uuid.Parse(customerID); err != nil {
		return Proposal{}, ErrNotFound
	}
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Proposal{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM customers WHERE id = $1 AND agent_id = $2 FOR UPDATE`,
		customerID, agentID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, err
	}

	now := s.now().UTC()
	p, err := scanProposal(tx.QueryRow(ctx, `
INSERT INTO customer_proposals (id, customer_id, agent_id, request_id, catalog_version, final_total,
	due_at_signing, terms, lines, created_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)
ON CONFLICT (agent_id, customer_id, request_id) DO NOTHING
RETURNING `+proposalColumns,
		uuid.NewString(), customerID, agentID, in.RequestID, in.CatalogVersion, in.FinalTotal.String(),
		in.DueAtSigning.String(), in.Terms, []byte(in.Lines), now))
	if errors.Is(err, ErrNotFound) {
		// Conflict on the request key: this proposal was recorded by an earlier attempt.
		return scanProposal(tx.QueryRow(ctx, `SELECT `+proposalColumns+` FROM customer_proposals
WHERE agent_id = $1 AND customer_id = $2 AND request_id = $3`, agentID, customerID, in.RequestID))
	}
	if err != nil {
		return Proposal{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE customers SET latest_proposal_date = $3, latest_proposal_amount = $4::numeric,
	updated_at = $3 WHERE id = $1 AND agent_id = $2`, customerID, agentID, now, in.FinalTotal.String()); err != nil {
		return Proposal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

func (s *PGStore) ListProposals(ctx context.Context, agentID, customerID string, page, perPage int) ([]Proposal, int64, error) {
	if _, err := s.Get(ctx, agentID, customerID); err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM customer_proposals WHERE customer_id = $1`,
		customerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+proposalColumns+` FROM customer_proposals
WHERE customer_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, customerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Proposal, 0, perPage)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
