// Package llm defines the provider-neutral boundary for the structuring model
// and the document reader, plus the guard that adds per-call timeout, rate
// limiting and retries around any provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer returns the model's text answer to a system prompt and a chat history.
type Completer interface {
	Complete(ctx context.Context, system string, messages []Message, maxTokens int) (string, error)
}

// DocumentReader returns the raw text of a document.
type DocumentReader interface {
	ReadDocument(ctx context.Context, data []byte, mimeType string) (string, error)
}

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider string
	Code     int
	Type     string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s api error %d: %s: %s", e.Provider, e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("%s api error %d: %s", e.Provider, e.Code, e.Message)
}

// IsRetryable reports whether err is transient: 429, 5xx (including the 529
// overload code), a per-attempt deadline or a network timeout. Anything else,
// notably 4xx and bad credentials, is final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
