package hermes

import (
	"log/slog"
	"time"
)

// Import lifecycle subjects.
const (
	SubjectImportCommitted = "shiftbook.import.committed"
	SubjectImportCancelled = "shiftbook.import.cancelled"
	SubjectImportConflicts = "shiftbook.import.conflicts"
)

type ImportCommitted struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Strategy  string    `json:"strategy"`
	At        time.Time `json:"at"`
}

type ImportCancelled struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	At        time.Time `json:"at"`
}

type ImportConflicts struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Dates     []string  `json:"dates"`
	At        time.Time `json:"at"`
}

// Publisher is the subset of Client used by the importer.
type Publisher interface {
	Publish(subject string, data any) error
}

// Emitter publishes lifecycle events. A nil Publisher disables events, and a
// failed publish is logged, never returned: the import itself already
// succeeded.
type Emitter struct {
	pub    Publisher
	logger *slog.Logger
}

func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{pub: pub, logger: logger}
}

func (e *Emitter) Committed(ev ImportCommitted) { e.emit(SubjectImportCommitted, ev) }

func (e *Emitter) Cancelled(ev ImportCancelled) { e.emit(SubjectImportCancelled, ev) }

func (e *Emitter) Conflicts(ev ImportConflicts) { e.emit(SubjectImportConflicts, ev) }

func (e *Emitter) emit(subject string, data any) {
	if e == nil || e.pub == nil {
		return
	}
	if err := e.pub.Publish(subject, data); err != nil {
		e.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}
