package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/conflict"
	"github.com/MikeSquared-Agency/shiftbook/internal/qa"
	"github.com/MikeSquared-Agency/shiftbook/internal/resolver"
	"github.com/MikeSquared-Agency/shiftbook/internal/session"
)

// Quick reply types.
const (
	ReplySelectCode       = "select_code"
	ReplyConfirmImport    = "confirm_import"
	ReplyCancel           = "cancel"
	ReplyResolveConflicts = "resolve_conflicts"
)

// Values accepted by select_code without a service index. They answer the
// question raised when a structuring response could not be read.
const (
	ValueRetry  = "retry"
	ValueCancel = "cancel"
)

// Values accepted by select_code on a date collision question. Drop removes
// the entry at service_index; replace keeps it and removes the entries it
// collides with.
const (
	ValueDrop    = "drop"
	ValueReplace = "replace"
)

type QuickReply struct {
	Type             string `json:"type" validate:"required,oneof=select_code confirm_import cancel resolve_conflicts"`
	Value            string `json:"value" validate:"max=64"`
	ServiceIndex     *int   `json:"service_index,omitempty" validate:"omitempty,min=0"`
	ConflictStrategy string `json:"conflict_strategy,omitempty" validate:"omitempty,oneof=overwrite_all skip_existing"`
}

// TurnRequest is one inbound turn. Exactly one of Message, PDFBytes and
// QuickReply drives it.
type TurnRequest struct {
	AgentID        string      `json:"agent_id" validate:"required,max=128"`
	Message        string      `json:"message,omitempty" validate:"max=4000"`
	PDFBytes       []byte      `json:"pdf_bytes,omitempty" validate:"max=20971520"`
	ConversationID string      `json:"conversation_id,omitempty" validate:"omitempty,uuid"`
	QuickReply     *QuickReply `json:"quick_reply,omitempty"`
}

type ImportSummary struct {
	Count    int    `json:"count"`
	Success  bool   `json:"success"`
	Skipped  int    `json:"skipped"`
	Strategy string `json:"strategy"`
}

type TurnResponse struct {
	Success        bool                      `json:"success"`
	ConversationID string                    `json:"conversation_id,omitempty"`
	Status         session.Status            `json:"status,omitempty"`
	Message        string                    `json:"message"`
	Services       []bulletin.CandidateEntry `json:"services,omitempty"`
	Questions      []bulletin.Question       `json:"questions,omitempty"`
	ReadyToImport  bool                      `json:"ready_to_import"`
	Conflicts      []conflict.Conflict       `json:"conflicts,omitempty"`
	DetectedAgent  *resolver.Resolution      `json:"detected_agent,omitempty"`
	AgentMismatch  bool                      `json:"agent_mismatch,omitempty"`
	ImportResult   *ImportSummary            `json:"import_result,omitempty"`
	QAResponse     *qa.Response              `json:"qa_response,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

var validate = validator.New()

// Validate checks the request shape. It never looks at stored state.
func Validate(req TurnRequest) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return apperr.Validation("invalid turn request: " + strings.Join(fields, ", "))
		}
		return apperr.Validation("invalid turn request: " + err.Error())
	}

	drivers := 0
	if strings.TrimSpace(req.Message) != "" {
		drivers++
	}
	if len(req.PDFBytes) > 0 {
		drivers++
	}
	if req.QuickReply != nil {
		drivers++
	}
	if drivers != 1 {
		return apperr.Validation("exactly one of message, pdf_bytes or quick_reply is required")
	}
	return nil
}
