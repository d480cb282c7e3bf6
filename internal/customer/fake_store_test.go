package customer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memStore struct {
	mu        sync.Mutex
	customers map[string]Customer
	proposals map[string][]Proposal
	byRequest map[string]Proposal
	clock     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		customers: map[string]Customer{},
		proposals: map[string][]Proposal{},
		byRequest: map[string]Proposal{},
		clock:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) Create(_ context.Context, c Customer) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.NewString()
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.customers[c.ID] = c
	return c, nil
}

func (m *memStore) Get(_ context.Context, agentID, id string) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.AgentID != agentID {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]Customer, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Customer
	for _, c := range m.customers {
		if c.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Query != "" && !strings.Contains(c.ClientName, f.Query) {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	start := f.offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *memStore) Update(_ context.Context, c Customer) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.customers[c.ID]
	if !ok || cur.AgentID != c.AgentID {
		return Customer{}, ErrNotFound
	}
	c.UpdatedAt = m.tick()
	m.customers[c.ID] = c
	return c, nil
}

func (m *memStore) Delete(_ context.Context, agentID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.AgentID != agentID {
		return ErrNotFound
	}
	delete(m.customers, id)
	delete(m.proposals, id)
	return nil
}

func (m *memStore) RecordProposal(_ context.Context, agentID, customerID string, in ProposalInput) (Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok || c.AgentID != agentID {
		return Proposal{}, ErrNotFound
	}
	if p, ok := m.byRequest[in.RequestID]; ok && in.RequestID != "" {
		return p, nil
	}
	now := m.tick()
	p := Proposal{
		ID:             uuid.NewString(),
		CustomerID:     customerID,
		AgentID:        agentID,
		RequestID:      in.RequestID,
		CatalogVersion: in.CatalogVersion,
		FinalTotal:     in.FinalTotal,
		DueAtSigning:   in.DueAtSigning,
		Terms:          in.Terms,
		Lines:          in.Lines,
		CreatedAt:      now,
	}
	m.proposals[customerID] = append([]Proposal{p}, m.proposals[customerID]...)
	m.byRequest[in.RequestID] = p
	c.LatestProposalDate = &now
	c.LatestProposalAmount = decimal.NewNullDecimal(in.FinalTotal)
	c.UpdatedAt = now
	m.customers[customerID] = c
	return p, nil
}

func (m *memStore) ListProposals(_ context.Context, agentID, customerID string, page, perPage int) ([]Proposal, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok || c.AgentID != agentID {
		return nil, 0, ErrNotFound
	}
	all := m.proposals[customerID]
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}
