package qa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

// 2025-06-11 is a Wednesday.
var today = schedule.MustDate("2025-06-11")

func TestClassify_Ranges(t *testing.T) {
	c := NewClassifier(loadCatalog(t))
	tests := []struct {
		question string
		intent   Intent
		from, to string
	}{
		{"Quels sont mes services cette semaine ?", IntentWeeklyServices, "2025-06-09", "2025-06-15"},
		{"Mon planning la semaine prochaine", IntentWeeklyServices, "2025-06-16", "2025-06-22"},
		{"Et la semaine dernière ?", IntentWeeklyServices, "2025-06-02", "2025-06-08"},
		{"Que fais-je demain ?", IntentSpecificDate, "2025-06-12", "2025-06-12"},
		{"et après-demain ?", IntentSpecificDate, "2025-06-13", "2025-06-13"},
		{"Hier ?", IntentSpecificDate, "2025-06-10", "2025-06-10"},
		{"Je travaille le 14/07 ?", IntentSpecificDate, "2025-07-14", "2025-07-14"},
		{"Mon service du 3 mars 2026", IntentSpecificDate, "2026-03-03", "2026-03-03"},
		{"Et le 2025-12-31 ?", IntentSpecificDate, "2025-12-31", "2025-12-31"},
		{"C'est quoi samedi ?", IntentSpecificDate, "2025-06-14", "2025-06-14"},
		{"Et mercredi ?", IntentSpecificDate, "2025-06-11", "2025-06-11"},
		{"Combien d'heures ce mois-ci ?", IntentMonthlyHours, "2025-06-01", "2025-06-30"},
		{"Mes heures le mois prochain", IntentMonthlyHours, "2025-07-01", "2025-07-31"},
		{"Heures du mois dernier", IntentMonthlyHours, "2025-05-01", "2025-05-31"},
		{"Quand est mon prochain service ?", IntentNextService, "2025-06-11", "2025-08-10"},
		{"Combien de nuits en juin ?", IntentStatsSummary, "2025-06-01", "2025-06-30"},
		{"Bilan de l'année", IntentStatsSummary, "2025-01-01", "2025-12-31"},
		{"Mes repos en juillet", IntentServiceSearch, "2025-07-01", "2025-07-31"},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			q := c.Classify(tt.question, today)
			if q.Intent != tt.intent {
				t.Fatalf("intent: got %s, want %s", q.Intent, tt.intent)
			}
			if q.Range.From.String() != tt.from || q.Range.To.String() != tt.to {
				t.Errorf("range: got %s..%s, want %s..%s", q.Range.From, q.Range.To, tt.from, tt.to)
			}
		})
	}
}

func TestClassify_ShortCircuitIntents(t *testing.T) {
	c := NewClassifier(loadCatalog(t))
	for question, want := range map[string]Intent{
		"Aide":                  IntentHelp,
		"what can you do?":      IntentHelp,
		"Quelle est la météo ?": IntentUnknown,
		"":                      IntentUnknown,
		"Service du 31/02 ?":    IntentUnknown,
	} {
		q := c.Classify(question, today)
		if q.Intent != want {
			t.Errorf("%q: got %s, want %s", question, q.Intent, want)
		}
		if !q.Range.From.IsZero() {
			t.Errorf("%q: expected no range, got %s..%s", question, q.Range.From, q.Range.To)
		}
	}
}

func TestClassify_ServiceSelection(t *testing.T) {
	c := NewClassifier(loadCatalog(t))
	tests := []struct {
		question string
		codes    []string
	}{
		{"Ma prochaine nuit ?", []string{"X"}},
		{"Combien de nuits en juin ?", []string{"X"}},
		{"Mes repos en juillet", []string{"RP", "RU"}},
		{"Je suis en CCU003 quand ?", []string{"X"}},
		{"Mes congés ce mois", []string{"C"}},
		{"Mes journées en juin", []string{"J", "FO", "D"}},
	}
	for _, tt := range tests {
		q := c.Classify(tt.question, today)
		if !reflect.DeepEqual(q.ServiceCodes, tt.codes) {
			t.Errorf("%q: got codes %v, want %v", tt.question, q.ServiceCodes, tt.codes)
		}
	}
}

func TestClassify_NextServiceRestrictsToWork(t *testing.T) {
	cat := loadCatalog(t)
	for _, question := range []string{
		"Quand est mon prochain service ?",
		"Mon prochain service après mes congés ?",
		"Prochain service après mon repos ?",
	} {
		q := NewClassifier(cat).Classify(question, today)
		if q.Intent != IntentNextService {
			t.Errorf("%q: expected next_service, got %s", question, q.Intent)
			continue
		}
		if !reflect.DeepEqual(q.ServiceCodes, cat.WorkCodes()) {
			t.Errorf("%q: got %v, want work codes %v", question, q.ServiceCodes, cat.WorkCodes())
		}
	}
}

func TestExecutor_NextServiceAfterLeaveSkipsRestDays(t *testing.T) {
	store := schedule.NewMemoryStore()
	ctx := context.Background()
	for _, e := range []schedule.Entry{
		{AgentID: "a1", Date: schedule.MustDate("2025-06-12"), ServiceCode: "C"},
		{AgentID: "a1", Date: schedule.MustDate("2025-06-13"), ServiceCode: "RP"},
		{AgentID: "a1", Date: schedule.MustDate("2025-06-14"), ServiceCode: "X"},
	} {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	exec := NewExecutor(store, loadCatalog(t), 3, discardLogger())

	resp, err := exec.Answer(ctx, "a1", "Mon prochain service après mes congés ?", today)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	p, ok := resp.Payload.(EntriesPayload)
	if !ok {
		t.Fatalf("expected entries payload, got %T", resp.Payload)
	}
	if len(p.Entries) != 1 || p.Entries[0].ServiceCode != "X" {
		t.Errorf("expected only the X on 2025-06-14, got %+v", p.Entries)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier(loadCatalog(t))
	a := c.Classify("Combien de nuits le mois prochain ?", today)
	b := c.Classify("Combien de nuits le mois prochain ?", today)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("classification differs between calls: %+v vs %+v", a, b)
	}
}

func seedStore(t *testing.T) *schedule.MemoryStore {
	t.Helper()
	store := schedule.NewMemoryStore()
	ctx := context.Background()
	for _, e := range []schedule.Entry{
		{AgentID: "a1", Date: schedule.MustDate("2025-06-10"), ServiceCode: "X"},
		{AgentID: "a1", Date: schedule.MustDate("2025-06-12"), ServiceCode: "X", PosteCode: schedule.StrPtr("CCU")},
		{AgentID: "a1", Date: schedule.MustDate("2025-06-13"), ServiceCode: "RP"},
		{AgentID: "a1", Date: schedule.MustDate("2025-06-14"), ServiceCode: "-"},
		{AgentID: "a1", Date: schedule.MustDate("2025-06-15"), ServiceCode: "J"},
		{AgentID: "a1", Date: schedule.MustDate("2025-06-20"), ServiceCode: "X"},
		{AgentID: "a2", Date: schedule.MustDate("2025-06-12"), ServiceCode: "O"},
	} {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func TestAnswer_NextServiceCapsResults(t *testing.T) {
	e := NewExecutor(seedStore(t), loadCatalog(t), 3, discardLogger())
	resp, err := e.Answer(context.Background(), "a1", "Quand est mon prochain service ?", today)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	p, ok := resp.Payload.(EntriesPayload)
	if !ok {
		t.Fatalf("expected EntriesPayload, got %T", resp.Payload)
	}
	var dates []string
	for _, en := range p.Entries {
		dates = append(dates, en.Date.String())
	}
	want := []string{"2025-06-12", "2025-06-14", "2025-06-15"}
	if !reflect.DeepEqual(dates, want) {
		t.Errorf("got %v, want %v", dates, want)
	}
	if !strings.Contains(resp.Message, "(CCU)") {
		t.Errorf("expected poste in message, got %q", resp.Message)
	}
}

func TestAnswer_MonthlyHours(t *testing.T) {
	e := NewExecutor(seedStore(t), loadCatalog(t), 0, discardLogger())
	resp, err := e.Answer(context.Background(), "a1", "Combien d'heures ce mois-ci ?", today)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	p := resp.Payload.(HoursPayload)
	// Three nights and a morning at 8h, one Journée at 7.5h, RP counts for nothing.
	if p.TotalHours != 39.5 || p.WorkedDays != 5 {
		t.Errorf("got %.1fh over %d days, want 39.5h over 5 days", p.TotalHours, p.WorkedDays)
	}
	if !strings.Contains(resp.Message, "39,5 heures") {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestAnswer_StatsCountsByService(t *testing.T) {
	e := NewExecutor(seedStore(t), loadCatalog(t), 0, discardLogger())
	resp, err := e.Answer(context.Background(), "a1", "Bilan du mois", today)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	p := resp.Payload.(StatsPayload)
	want := map[string]int{"X": 3, "RP": 1, "-": 1, "J": 1}
	if !reflect.DeepEqual(p.Counts, want) || p.Total != 6 {
		t.Errorf("got %v (total %d), want %v", p.Counts, p.Total, want)
	}
}

func TestAnswer_SpecificDateWithoutEntry(t *testing.T) {
	e := NewExecutor(seedStore(t), loadCatalog(t), 0, discardLogger())
	resp, err := e.Answer(context.Background(), "a1", "Et le 2025-06-16 ?", today)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if p := resp.Payload.(EntriesPayload); len(p.Entries) != 0 {
		t.Errorf("expected no entries, got %v", p.Entries)
	}
	if !strings.HasPrefix(resp.Message, "Aucun service") {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

type failingStore struct{ schedule.Store }

func (failingStore) Query(context.Context, string, schedule.Range, schedule.Filter) ([]schedule.Entry, error) {
	return nil, errors.New("connection refused")
}

func TestAnswer_HelpAndUnknownSkipTheStore(t *testing.T) {
	e := NewExecutor(failingStore{}, loadCatalog(t), 0, discardLogger())
	for _, question := range []string{"aide", "quelle est la météo ?"} {
		if _, err := e.Answer(context.Background(), "a1", question, today); err != nil {
			t.Errorf("%q: unexpected store access: %v", question, err)
		}
	}
	if _, err := e.Answer(context.Background(), "a1", "mes services cette semaine", today); err == nil {
		t.Error("expected the store error to surface for a data intent")
	}
}

func TestResponse_MarshalsAsTaggedUnion(t *testing.T) {
	e := NewExecutor(seedStore(t), loadCatalog(t), 0, discardLogger())
	resp, err := e.Answer(context.Background(), "a1", "Combien d'heures ce mois-ci ?", today)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Type string `json:"type"`
		Data struct {
			TotalHours float64 `json:"total_hours"`
			Range      struct {
				From string `json:"from"`
			} `json:"range"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != "monthly_hours" || out.Data.TotalHours != 39.5 || out.Data.Range.From != "2025-06-01" {
		t.Errorf("unexpected JSON %s", b)
	}
}
