package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedCompleter struct {
	errs  []error
	calls int
}

func (s *scriptedCompleter) Complete(context.Context, string, []Message, int) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return "ok", nil
}

type slowReader struct{}

func (slowReader) ReadDocument(ctx context.Context, _ []byte, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func testConfig() GuardConfig {
	return GuardConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", &StatusError{Code: http.StatusInternalServerError}, true},
		{"529 overloaded", &StatusError{Code: 529}, true},
		{"429", &StatusError{Code: http.StatusTooManyRequests}, true},
		{"400", &StatusError{Code: http.StatusBadRequest}, false},
		{"401", &StatusError{Code: http.StatusUnauthorized}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped 503", errors.Join(errors.New("ctx"), &StatusError{Code: 503}), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestGuard_RetriesTransient(t *testing.T) {
	c := &scriptedCompleter{errs: []error{&StatusError{Code: 503}, &StatusError{Code: 502}}}
	g := NewGuard(c, nil, testConfig(), discardLogger())
	out, err := g.Complete(context.Background(), "sys", nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || c.calls != 3 {
		t.Errorf("expected ok after 3 calls, got %q after %d", out, c.calls)
	}
}

func TestGuard_FinalErrorIsExternalService(t *testing.T) {
	c := &scriptedCompleter{errs: []error{&StatusError{Code: 401, Message: "bad key"}}}
	g := NewGuard(c, nil, testConfig(), discardLogger())
	_, err := g.Complete(context.Background(), "sys", nil, 10)
	if !apperr.Is(err, apperr.KindExternalService) {
		t.Fatalf("expected external_service error, got %v", err)
	}
	if c.calls != 1 {
		t.Errorf("expected no retry on 401, got %d calls", c.calls)
	}
}

func TestGuard_PerCallTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 5 * time.Millisecond
	cfg.MaxAttempts = 2
	g := NewGuard(nil, slowReader{}, cfg, discardLogger())
	_, err := g.ReadDocument(context.Background(), []byte("%PDF"), "application/pdf")
	if !apperr.Is(err, apperr.KindExternalService) {
		t.Fatalf("expected external_service error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline in chain, got %v", err)
	}
}

func TestGuard_MissingProvider(t *testing.T) {
	g := NewGuard(nil, nil, testConfig(), discardLogger())
	if _, err := g.Complete(context.Background(), "", nil, 1); err == nil {
		t.Error("expected error without completer")
	}
}
