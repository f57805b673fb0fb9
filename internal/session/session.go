// Package session models one conversational bulletin import: its status
// machine, its turn history and the candidate set being refined.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/conflict"
	"github.com/MikeSquared-Agency/shiftbook/internal/reconcile"
	"github.com/MikeSquared-Agency/shiftbook/internal/resolver"
)

type Session struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	// AgentID is the calendar the import targets. Empty until resolved.
	AgentID       string                    `json:"agent_id,omitempty"`
	Status        Status                    `json:"status"`
	Version       int64                     `json:"version"`
	History       History                   `json:"history"`
	Candidates    []bulletin.CandidateEntry `json:"candidates,omitempty"`
	Questions     []bulletin.Question       `json:"questions,omitempty"`
	Conflicts     []conflict.Conflict       `json:"conflicts,omitempty"`
	DetectedAgent *resolver.Resolution      `json:"detected_agent,omitempty"`
	Metadata      bulletin.AgentMetadata    `json:"metadata"`
	// SourceKey is the archive key of the uploaded bulletin and SourceText
	// the text read from it. The text is kept to rerun structuring.
	SourceKey    string            `json:"source_key,omitempty"`
	SourceText   string            `json:"source_text,omitempty"`
	ImportResult *reconcile.Result `json:"import_result,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// New returns a NEW session for ownerID.
func New(ownerID string, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) IsTerminal() bool { return s.Status.IsTerminal() }

// Transition moves the session to next or returns a ConflictState error.
func (s *Session) Transition(next Status) error {
	if !CanTransition(s.Status, next) {
		return errTransition(s.Status, next)
	}
	s.Status = next
	return nil
}

// Append adds a turn. Terminal sessions accept no further turns.
func (s *Session) Append(t Turn) error {
	if s.IsTerminal() {
		return errTransition(s.Status, s.Status)
	}
	s.History = append(s.History, t)
	if at := t.Time(); at.After(s.UpdatedAt) {
		s.UpdatedAt = at
	}
	return nil
}

// SetCandidates replaces the candidate set. Terminal sessions keep theirs.
func (s *Session) SetCandidates(c []bulletin.CandidateEntry) error {
	if s.IsTerminal() {
		return errTransition(s.Status, s.Status)
	}
	s.Candidates = c
	return nil
}

// HasQuestions reports whether clarification is still pending.
func (s *Session) HasQuestions() bool { return len(s.Questions) > 0 }

// Clone returns a deep copy suitable for handing out of a store.
func (s *Session) Clone() *Session {
	c := *s
	c.History = append(History(nil), s.History...)
	c.Candidates = append([]bulletin.CandidateEntry(nil), s.Candidates...)
	c.Questions = append([]bulletin.Question(nil), s.Questions...)
	c.Conflicts = append([]conflict.Conflict(nil), s.Conflicts...)
	if s.DetectedAgent != nil {
		d := *s.DetectedAgent
		c.DetectedAgent = &d
	}
	if s.ImportResult != nil {
		r := *s.ImportResult
		c.ImportResult = &r
	}
	return &c
}
