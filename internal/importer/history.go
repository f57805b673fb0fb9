package importer

import (
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/llm"
	"github.com/MikeSquared-Agency/shiftbook/internal/session"
)

// maxHistoryMessages bounds the context sent with each structuring call.
const maxHistoryMessages = 20

const attachmentPlaceholder = "[Bulletin PDF transmis]"

// llmHistory converts the recorded turns into model messages. Consecutive
// messages of the same role are merged and the result always starts with a
// user message.
func llmHistory(h session.History) []llm.Message {
	var out []llm.Message
	for _, turn := range h {
		var m llm.Message
		switch t := turn.(type) {
		case session.UserTurn:
			m = llm.Message{Role: llm.RoleUser, Content: t.Text}
			if t.Attachment != nil {
				m.Content = joinText(attachmentPlaceholder, t.Text)
			}
		case session.AssistantTurn:
			m = llm.Message{Role: llm.RoleAssistant, Content: t.Text}
		}
		if m.Content == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = joinText(out[n-1].Content, m.Content)
			continue
		}
		out = append(out, m)
	}

	if len(out) > maxHistoryMessages {
		out = out[len(out)-maxHistoryMessages:]
	}
	for len(out) > 0 && out[0].Role != llm.RoleUser {
		out = out[1:]
	}
	// The next prompt is a user message, so the history must end on the assistant.
	if n := len(out); n > 0 && out[n-1].Role == llm.RoleUser {
		out = out[:n-1]
	}
	return out
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}

func quickReplyText(qr QuickReply) string {
	switch qr.Type {
	case ReplySelectCode:
		if qr.ServiceIndex != nil {
			return fmt.Sprintf("Service %d : %s", *qr.ServiceIndex, qr.Value)
		}
		return qr.Value
	case ReplyConfirmImport:
		return "Confirmer l'import"
	case ReplyResolveConflicts:
		if qr.ConflictStrategy != "" {
			return "Stratégie : " + qr.ConflictStrategy
		}
		return "Stratégie : " + qr.Value
	case ReplyCancel:
		return "Annuler"
	}
	return qr.Value
}

// errorTurn is the assistant message recorded for a failed turn.
func errorTurn(err error, at time.Time) session.AssistantTurn {
	kind := apperr.GetKind(err)
	var text string
	switch kind {
	case apperr.KindExternalService:
		text = "Le service d'analyse est momentanément indisponible. Réessayez dans quelques instants : l'import en cours est conservé."
	case apperr.KindAgentNotFound:
		text = "Le calendrier cible est introuvable dans l'annuaire des agents. L'import ne peut pas être enregistré."
	case apperr.KindConflictState:
		text = "Cette action n'est pas possible à ce stade de l'import."
	default:
		text = "Une erreur inattendue est survenue. L'import en cours est conservé."
	}
	return session.AssistantTurn{
		Text:    text,
		Payload: &session.Payload{ErrorKind: kind.String()},
		At:      at,
	}
}
