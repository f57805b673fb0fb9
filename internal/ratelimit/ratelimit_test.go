package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddleware_BlocksAfterBurst(t *testing.T) {
	l := New(1, 2, discardLogger())
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent {
		t.Errorf("expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", codes[2])
	}
}

func TestMiddleware_PerAddress(t *testing.T) {
	l := New(1, 1, discardLogger())

	if !l.Allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if l.Allow("10.0.0.1") {
		t.Error("second request from the same address should be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("another address has its own bucket")
	}
}

func TestNew_ZeroRateDisablesLimiting(t *testing.T) {
	l := New(0, 1, discardLogger())
	for i := 0; i < 50; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d limited with limiting disabled", i)
		}
	}
}

func TestClientIP(t *testing.T) {
	if got := clientIP("192.168.1.4:443"); got != "192.168.1.4" {
		t.Errorf("got %q", got)
	}
	if got := clientIP("192.168.1.4"); got != "192.168.1.4" {
		t.Errorf("got %q", got)
	}
}
