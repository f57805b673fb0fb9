package archive

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	tests := []struct {
		agent string
		want  string
	}{
		{"a-42", "a-42/2025/03/id.pdf"},
		{"../evil/x", "_evil_x/2025/03/id.pdf"},
		{"", "unknown/2025/03/id.pdf"},
	}
	for _, tc := range tests {
		if got := objectKey(tc.agent, at, "id"); got != tc.want {
			t.Errorf("objectKey(%q) = %q, want %q", tc.agent, got, tc.want)
		}
	}
}

func TestInline_UniqueMarkers(t *testing.T) {
	a, err := Inline{}.Put(context.Background(), "a1", []byte("%PDF"), "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := Inline{}.Put(context.Background(), "a1", []byte("%PDF"), "application/pdf")
	if !strings.HasPrefix(a, InlinePrefix) || a == b {
		t.Errorf("expected unique inline markers, got %q and %q", a, b)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config must be disabled")
	}
	if !(Config{Endpoint: "minio:9000"}).Enabled() {
		t.Error("endpoint set must be enabled")
	}
}
