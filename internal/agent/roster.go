// Package agent loads the roster of sales agents allowed to prepare proposals.
package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrNotAuthorized is returned for unknown, inactive or wrongly authenticated agents.
	ErrNotAuthorized = errors.New("agent not authorized")
	// ErrInvalidRoster is returned when the workbook lacks the required columns.
	ErrInvalidRoster = errors.New("invalid agent roster")
)

const (
	colID           = "agent_id"
	colName         = "agent_name"
	colDepartment   = "department"
	colStatus       = "status"
	colPasscodeHash = "passcode_hash"

	// StatusActive is the only status allowed to sign in.
	StatusActive = "active"
)

// Agent is one roster entry.
type Agent struct {
	ID         string `json:"agent_id"`
	Name       string `json:"agent_name"`
	Department string `json:"department,omitempty"`
	Status     string `json:"status"`

	passcodeHash string
}

// Active reports whether the agent may sign in.
func (a Agent) Active() bool { return a.Status == StatusActive }

// RequiresPasscode reports whether a passcode hash is on file for the agent.
func (a Agent) RequiresPasscode() bool { return a.passcodeHash != "" }

// Roster is an immutable lookup of agents by identifier.
type Roster struct {
	agents map[string]Agent
}

// NewRoster builds a roster from agents. Later duplicates replace earlier ones.
func NewRoster(agents ...Agent) *Roster {
	r := &Roster{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			continue
		}
		if a.Status == "" {
			a.Status = StatusActive
		}
		r.agents[a.ID] = a
	}
	return r
}

// WithPasscodeHash returns a copy of a with the argon2id hash attached.
func (a Agent) WithPasscodeHash(hash string) Agent {
	a.passcodeHash = strings.TrimSpace(hash)
	return a
}

// Lookup returns the agent with the given identifier.
func (r *Roster) Lookup(id string) (Agent, bool) {
	if r == nil {
		return Agent{}, false
	}
	a, ok := r.agents[strings.TrimSpace(id)]
	return a, ok
}

// Verify is the allow/deny check used at login. The passcode is only checked when the
// agent has a hash on file.
func (r *Roster) Verify(id, passcode string) (Agent, error) {
	a, ok := r.Lookup(id)
	if !ok || !a.Active() {
		return Agent{}, ErrNotAuthorized
	}
	if a.passcodeHash == "" {
		return a, nil
	}
	match, err := argon2id.ComparePasswordAndHash(passcode, a.passcodeHash)
	if err != nil {
		return Agent{}, fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}
	if !match {
		return Agent{}, ErrNotAuthorized
	}
	return a, nil
}

// Agents lists roster entries ordered by identifier.
func (r *Roster) Agents() []Agent {
	if r == nil {
		return nil
	}
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of agents on the roster.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.agents)
}

// HashPasscode produces an argon2id hash suitable for the passcode_hash column.
func HashPasscode(passcode string) (string, error) {
	if strings.TrimSpace(passcode) == "" {
		return "", errors.New("passcode is required")
	}
	return argon2id.CreateHash(passcode, argon2id.DefaultParams)
}

// Read parses a roster workbook. The first sheet must carry agent_id and agent_name headers.
func Read(r io.Reader) (*Roster, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open roster workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidRoster)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read roster sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrInvalidRoster, sheets[0])
	}

	index := map[string]int{}
	for i, cell := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(cell))] = i
	}
	if _, ok := index[colID]; !ok {
		return nil, fmt.Errorf("%w: missing %s column", ErrInvalidRoster, colID)
	}
	if _, ok := index[colName]; !ok {
		return nil, fmt.Errorf("%w: missing %s column", ErrInvalidRoster, colName)
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	agents := make([]Agent, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := cell(row, colID)
		if id == "" {
			continue
		}
		status := strings.ToLower(cell(row, colStatus))
		if status == "" {
			status = StatusActive
		}
		a := Agent{
			ID:         id,
			Name:       cell(row, colName),
			Department: cell(row, colDepartment),
			Status:     status,
		}
		agents = append(agents, a.WithPasscodeHash(cell(row, colPasscodeHash)))
	}
	return NewRoster(agents...), nil
}

// Load reads the roster workbook at path.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Read(bytes.NewReader(data))
}

// LoadOrCreate loads the roster at path, writing the sample workbook first when the file
// does not exist. The second result reports whether the sample was created.
func LoadOrCreate(path string) (*Roster, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteSample(path); err != nil {
			return nil, false, err
		}
		r, err := Load(path)
		return r, true, err
	}
	r, err := Load(path)
	return r, false, err
}
