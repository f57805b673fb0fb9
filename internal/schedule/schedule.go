// Package schedule holds the persisted calendar model and the boundary of the
// schedule store. There is at most one Entry per (agent, date); every write is
// an upsert keyed on that pair.
package schedule

import (
	"context"
	"sort"
	"sync"
)

type Metadata struct {
	Comment             string   `json:"comment,omitempty"`
	SupplementaryPostes []string `json:"supplementary_postes,omitempty"`
	FreeText            string   `json:"free_text,omitempty"`
	LeaveStatus         string   `json:"leave_status,omitempty"`
}

type Entry struct {
	AgentID     string    `json:"agent_id"`
	Date        Date      `json:"date"`
	ServiceCode string    `json:"service_code"`
	PosteCode   *string   `json:"poste_code,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Poste returns the poste code or "" when none is set.
func (e Entry) Poste() string {
	if e.PosteCode == nil {
		return ""
	}
	return *e.PosteCode
}

// Filter narrows a range query. Empty fields do not filter.
type Filter struct {
	ServiceCodes []string
}

func (f Filter) matches(e Entry) bool {
	if len(f.ServiceCodes) == 0 {
		return true
	}
	for _, c := range f.ServiceCodes {
		if c == e.ServiceCode {
			return true
		}
	}
	return false
}

type Store interface {
	// Upsert writes e keyed on (AgentID, Date). A nil Metadata keeps any
	// metadata already stored for that day.
	Upsert(ctx context.Context, e Entry) error
	// Query returns the agent's entries inside r, ordered by date.
	Query(ctx context.Context, agentID string, r Range, f Filter) ([]Entry, error)
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MemoryStore is an in-process Store used by tests and local tooling.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[Date]Entry
	Writes  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]map[Date]Entry)}
}

func (m *MemoryStore) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDate, ok := m.entries[e.AgentID]
	if !ok {
		byDate = make(map[Date]Entry)
		m.entries[e.AgentID] = byDate
	}
	if prev, exists := byDate[e.Date]; exists && e.Metadata == nil {
		e.Metadata = prev.Metadata
	}
	byDate[e.Date] = e
	m.Writes++
	return nil
}

func (m *MemoryStore) Query(_ context.Context, agentID string, r Range, f Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for d, e := range m.entries[agentID] {
		if r.Contains(d) && f.matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Count returns the number of stored entries for an agent.
func (m *MemoryStore) Count(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[agentID])
}
