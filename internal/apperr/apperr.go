// Package apperr defines the error taxonomy shared by the import and Q&A flows.
// The HTTP layer maps each Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a malformed turn request. The session is never touched.
	KindValidation
	// KindExternalService is an OCR or LLM failure after retries were exhausted.
	KindExternalService
	// KindParse is a structuring response that did not match the expected schema.
	KindParse
	// KindAgentNotFound means no calendar owner could be resolved for the session.
	KindAgentNotFound
	// KindConflictState is a rejected state transition or a stale session version.
	KindConflictState
	KindNotFound
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExternalService:
		return "external_service"
	case KindParse:
		return "parse"
	case KindAgentNotFound:
		return "agent_not_found"
	case KindConflictState:
		return "conflict_state"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code the API answers with for this error.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindExternalService:
		return http.StatusBadGateway
	case KindParse:
		return http.StatusUnprocessableEntity
	case KindAgentNotFound, KindNotFound:
		return http.StatusNotFound
	case KindConflictState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func ExternalService(message string, err error) *Error {
	return Wrap(KindExternalService, message, err)
}

func Parse(message string, err error) *Error { return Wrap(KindParse, message, err) }

func AgentNotFound(message string) *Error { return New(KindAgentNotFound, message) }

func ConflictState(message string) *Error { return New(KindConflictState, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// GetKind returns the Kind of the first *Error in err's chain, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Status returns the HTTP status for err, defaulting to 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
