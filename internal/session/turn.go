package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/conflict"
	"github.com/MikeSquared-Agency/shiftbook/internal/reconcile"
)

// Turn is either a UserTurn or an AssistantTurn. The unexported method closes
// the set so that a type switch over both cases is exhaustive.
type Turn interface {
	isTurn()
	Time() time.Time
}

// Attachment references an uploaded bulletin. Key is the archive object key.
type Attachment struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type UserTurn struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	At         time.Time   `json:"at"`
}

func (UserTurn) isTurn()           {}
func (u UserTurn) Time() time.Time { return u.At }

// Payload is the structured part of an assistant turn.
type Payload struct {
	Services      []bulletin.CandidateEntry `json:"services,omitempty"`
	Questions     []bulletin.Question       `json:"questions,omitempty"`
	ReadyToImport bool                      `json:"ready_to_import"`
	Conflicts     []conflict.Conflict       `json:"conflicts,omitempty"`
	ImportResult  *reconcile.Result         `json:"import_result,omitempty"`
	ErrorKind     string                    `json:"error_kind,omitempty"`
}

type AssistantTurn struct {
	Text    string    `json:"text"`
	Payload *Payload  `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

func (AssistantTurn) isTurn()           {}
func (a AssistantTurn) Time() time.Time { return a.At }

// History is the append-only turn log of a session.
type History []Turn

type turnEnvelope struct {
	Kind string          `json:"kind"`
	Turn json.RawMessage `json:"turn"`
}

const (
	kindUser      = "user"
	kindAssistant = "assistant"
)

func (h History) MarshalJSON() ([]byte, error) {
	out := make([]turnEnvelope, 0, len(h))
	for _, t := range h {
		var kind string
		switch t.(type) {
		case UserTurn:
			kind = kindUser
		case AssistantTurn:
			kind = kindAssistant
		default:
			return nil, fmt.Errorf("marshal history: unexpected turn type %T", t)
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal %s turn: %w", kind, err)
		}
		out = append(out, turnEnvelope{Kind: kind, Turn: raw})
	}
	return json.Marshal(out)
}

func (h *History) UnmarshalJSON(b []byte) error {
	var envs []turnEnvelope
	if err := json.Unmarshal(b, &envs); err != nil {
		return fmt.Errorf("unmarshal history: %w", err)
	}
	out := make(History, 0, len(envs))
	for i, env := range envs {
		switch env.Kind {
		case kindUser:
			var u UserTurn
			if err := json.Unmarshal(env.Turn, &u); err != nil {
				return fmt.Errorf("unmarshal turn %d: %w", i, err)
			}
			out = append(out, u)
		case kindAssistant:
			var a AssistantTurn
			if err := json.Unmarshal(env.Turn, &a); err != nil {
				return fmt.Errorf("unmarshal turn %d: %w", i, err)
			}
			out = append(out, a)
		default:
			return fmt.Errorf("unmarshal turn %d: unknown kind %q", i, env.Kind)
		}
	}
	*h = out
	return nil
}
