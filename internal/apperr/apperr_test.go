package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetKind_ThroughWrapping(t *testing.T) {
	base := ConflictState("session version changed")
	wrapped := fmt.Errorf("save session: %w", base)

	if got := GetKind(wrapped); got != KindConflictState {
		t.Errorf("expected KindConflictState, got %v", got)
	}
	if !Is(wrapped, KindConflictState) {
		t.Error("expected Is to match wrapped conflict state")
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Error("expected KindUnknown for a plain error")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{ExternalService("llm down", errors.New("503")), http.StatusBadGateway},
		{Parse("bad json", nil), http.StatusUnprocessableEntity},
		{AgentNotFound("no owner"), http.StatusNotFound},
		{ConflictState("stale"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestError_MessageIncludesOpAndCause(t *testing.T) {
	err := ExternalService("structuring failed", errors.New("api error 503")).WithOp("structure")
	want := "structure: structuring failed: api error 503"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
