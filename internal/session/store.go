package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
)

// Store persists sessions. Save is conditional on the version the caller
// loaded; a mismatch returns a ConflictState error and writes nothing.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, expectedVersion int64) error
}

func errStale(id string, expected, actual int64) error {
	return apperr.ConflictState(fmt.Sprintf("session %s was modified concurrently (expected version %d, found %d)", id, expected, actual))
}

// MemoryStore keeps sessions as JSON snapshots so callers never share memory
// with the stored copy.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	versions map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte), versions: make(map[string]int64)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return apperr.ConflictState(fmt.Sprintf("session %s already exists", s.ID))
	}
	s.Version = 1
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	m.sessions[s.ID] = b
	m.versions[s.ID] = s.Version
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	b, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("session %s not found", id))
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.versions[s.ID]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("session %s not found", s.ID))
	}
	if current != expectedVersion {
		return errStale(s.ID, expectedVersion, current)
	}
	next := *s
	next.Version = expectedVersion + 1
	b, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	m.sessions[s.ID] = b
	m.versions[s.ID] = next.Version
	s.Version = next.Version
	return nil
}
