package conflict

import (
	"testing"

	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

func candidate(date, service, poste string) bulletin.CandidateEntry {
	return bulletin.CandidateEntry{Date: schedule.MustDate(date), ServiceCode: service, PosteCode: schedule.StrPtr(poste)}
}

func persisted(date, service, poste string) schedule.Entry {
	return schedule.Entry{AgentID: "a1", Date: schedule.MustDate(date), ServiceCode: service, PosteCode: schedule.StrPtr(poste)}
}

func TestDetect_SameValuesNoConflict(t *testing.T) {
	got := Detect(
		[]bulletin.CandidateEntry{candidate("2025-03-05", "X", "CCU")},
		[]schedule.Entry{persisted("2025-03-05", "X", "CCU")},
	)
	if len(got) != 0 {
		t.Fatalf("expected no conflict, got %+v", got)
	}
}

func TestDetect_PosteChangeIsConflict(t *testing.T) {
	got := Detect(
		[]bulletin.CandidateEntry{candidate("2025-03-05", "X", "ACR")},
		[]schedule.Entry{persisted("2025-03-05", "X", "CCU")},
	)
	if len(got) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(got))
	}
	c := got[0]
	if c.Date.String() != "2025-03-05" {
		t.Errorf("unexpected date %s", c.Date)
	}
	if c.Existing.poste() != "CCU" || c.Incoming.poste() != "ACR" {
		t.Errorf("unexpected snapshots %+v -> %+v", c.Existing, c.Incoming)
	}
}

func TestDetect_NoPersistedEntryNeverConflicts(t *testing.T) {
	got := Detect(
		[]bulletin.CandidateEntry{candidate("2025-02-01", "X", "CCU"), candidate("2025-02-02", "RP", "")},
		[]schedule.Entry{persisted("2025-01-15", "O", "CRC")},
	)
	if len(got) != 0 {
		t.Fatalf("expected no conflict, got %+v", got)
	}
}

func TestDetect_NullPosteAgainstPosteIsConflict(t *testing.T) {
	got := Detect(
		[]bulletin.CandidateEntry{candidate("2025-03-05", "X", "CCU")},
		[]schedule.Entry{persisted("2025-03-05", "X", "")},
	)
	if len(got) != 1 {
		t.Fatalf("expected a conflict for null vs CCU poste, got %d", len(got))
	}
}

func TestDetect_ServiceChangeAndOrdering(t *testing.T) {
	got := Detect(
		[]bulletin.CandidateEntry{
			candidate("2025-03-07", "O", "CRC"),
			candidate("2025-03-05", "RP", ""),
			candidate("2025-03-06", "X", "CCU"),
		},
		[]schedule.Entry{
			persisted("2025-03-05", "-", "CRC"),
			persisted("2025-03-06", "X", "CCU"),
			persisted("2025-03-07", "X", "CRC"),
		},
	)
	if len(got) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(got))
	}
	if got[0].Date.String() != "2025-03-05" || got[1].Date.String() != "2025-03-07" {
		t.Errorf("expected conflicts sorted by date, got %s, %s", got[0].Date, got[1].Date)
	}
}

func TestSpan(t *testing.T) {
	r, ok := Span([]bulletin.CandidateEntry{
		candidate("2025-03-07", "O", ""),
		candidate("2025-02-27", "O", ""),
		candidate("2025-03-01", "O", ""),
	})
	if !ok {
		t.Fatal("expected a span")
	}
	if r.From.String() != "2025-02-27" || r.To.String() != "2025-03-07" {
		t.Errorf("unexpected span %s..%s", r.From, r.To)
	}
	if _, ok := Span(nil); ok {
		t.Error("expected no span for empty input")
	}
}

func TestCollisions(t *testing.T) {
	candidates := []bulletin.CandidateEntry{
		candidate("2025-02-01", "X", "CCU"),
		candidate("2025-02-01", "RP", ""),
		candidate("2025-02-02", "J", ""),
		candidate("2025-02-01", "C", ""),
	}

	got := Collisions(candidates)

	if len(got) != 2 {
		t.Fatalf("expected 2 collisions, got %+v", got)
	}
	if got[0].Index != 1 || got[0].With != 0 || got[1].Index != 3 || got[1].With != 0 {
		t.Errorf("unexpected collisions %+v", got)
	}
	if got[0].Date.String() != "2025-02-01" {
		t.Errorf("unexpected date %s", got[0].Date)
	}
	if len(Collisions(candidates[1:3])) != 0 {
		t.Error("distinct dates reported as colliding")
	}
}
