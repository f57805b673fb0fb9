package session

import (
	"fmt"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
)

type Status string

const (
	StatusNew           Status = "NEW"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusReadyToImport Status = "READY_TO_IMPORT"
	StatusImported      Status = "IMPORTED"
	StatusCancelled     Status = "CANCELLED"
)

// transitions lists every allowed move. Anything absent is rejected.
var transitions = map[Status][]Status{
	StatusNew:        {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusInProgress, StatusReadyToImport, StatusCancelled},
	// READY_TO_IMPORT loops on itself while conflicts await a strategy, and
	// falls back to IN_PROGRESS when a later correction reopens questions.
	StatusReadyToImport: {StatusReadyToImport, StatusImported, StatusInProgress, StatusCancelled},
}

func (s Status) IsTerminal() bool {
	return s == StatusImported || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusReadyToImport, StatusImported, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown session status %q", s)
	}
	return st, nil
}

func errTransition(from, to Status) error {
	return apperr.ConflictState(fmt.Sprintf("cannot move import session from %s to %s", from, to))
}
