package structuring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/llm"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLLM struct {
	answer   string
	err      error
	system   string
	messages []llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, system string, messages []llm.Message, _ int) (string, error) {
	f.system = system
	f.messages = messages
	return f.answer, f.err
}

func newStructurer(t *testing.T, f *fakeLLM) *Structurer {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return New(f, cat, discardLogger())
}

const wellFormed = "```json\n" + `{
  "message": "J'ai trouvé 2 services.",
  "services": [
    {"date": "2025-01-31", "code": "CCU003", "service_code": "X", "poste_code": "CCU", "confidence": "high", "printed_time": "21:00"},
    {"date": "2025-02-01", "code": "RP", "service_code": "RP", "confidence": "high"}
  ],
  "questions": [],
  "ready_to_import": true,
  "metadata": {"agent_name": "DUPONT Marie", "period_start": "2025-01-27", "period_end": "2025-02-23"}
}` + "\n```"

func TestStructure_WellFormed(t *testing.T) {
	f := &fakeLLM{answer: wellFormed}
	s := newStructurer(t, f)

	prompt := BulletinPrompt(schedule.MustDate("2025-01-20"), "31/01 CCU003 21:00\n01/02 RP")
	res, err := s.Structure(context.Background(), Request{}, prompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ParseErr != nil {
		t.Fatalf("unexpected parse error: %v", res.ParseErr)
	}
	if len(res.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(res.Services))
	}
	night := res.Services[0]
	if night.DisplayedDate.String() != "2025-01-31" || night.Date != night.DisplayedDate {
		t.Errorf("expected printed date kept for normalization, got %s/%s", night.Date, night.DisplayedDate)
	}
	if night.Poste() != "CCU" || night.PrintedTime != "21:00" {
		t.Errorf("unexpected night entry %+v", night)
	}
	if res.Services[1].PosteCode != nil {
		t.Error("expected empty poste to decode as nil")
	}
	if !res.ReadyToImport {
		t.Error("expected ready_to_import")
	}
	if res.Metadata.AgentName != "DUPONT Marie" {
		t.Errorf("unexpected metadata %+v", res.Metadata)
	}

	if !strings.Contains(f.system, "CCU003") {
		t.Error("expected the catalog table in the system prompt")
	}
	if len(f.messages) != 1 || !strings.Contains(f.messages[0].Content, "CCU003 21:00") {
		t.Errorf("unexpected messages %+v", f.messages)
	}
}

func TestStructure_UnknownCodeDowngradedAndQuestioned(t *testing.T) {
	f := &fakeLLM{answer: `{"message":"ok","services":[{"date":"2025-03-04","code":"ZZ9","service_code":"X","confidence":"high"}],"ready_to_import":true}`}
	s := newStructurer(t, f)

	res, err := s.Structure(context.Background(), Request{}, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := res.Services[0]
	if c.Confidence != bulletin.ConfidenceLow || !c.HasFlag(bulletin.FlagUnknownCode) {
		t.Errorf("expected low confidence with unknown_code flag, got %+v", c)
	}
	if len(res.Questions) != 1 || res.Questions[0].Index != 0 || len(res.Questions[0].Options) == 0 {
		t.Errorf("expected one generated question for entry 0, got %+v", res.Questions)
	}
	if res.ReadyToImport {
		t.Error("ready_to_import must be false while a question remains")
	}
}

func TestStructure_MalformedRecovers(t *testing.T) {
	f := &fakeLLM{answer: "Désolé, je ne peux pas."}
	s := newStructurer(t, f)

	previous := []bulletin.CandidateEntry{
		{Date: schedule.MustDate("2025-03-05"), RawCode: "CRC001", ServiceCode: "-", Confidence: bulletin.ConfidenceHigh},
		{Date: schedule.MustDate("2025-03-06"), RawCode: "RP", ServiceCode: "RP", Confidence: bulletin.ConfidenceUserCorrected},
	}
	res, err := s.Structure(context.Background(), Request{Candidates: previous}, "corrige le 5")
	if err != nil {
		t.Fatalf("expected recovery, got error %v", err)
	}
	if !apperr.Is(res.ParseErr, apperr.KindParse) {
		t.Fatalf("expected parse error kind, got %v", res.ParseErr)
	}
	if res.Services[0].Confidence != bulletin.ConfidenceLow {
		t.Errorf("expected previous entry downgraded to low, got %s", res.Services[0].Confidence)
	}
	if res.Services[1].Confidence != bulletin.ConfidenceUserCorrected {
		t.Error("user corrections must survive recovery")
	}
	if previous[0].Confidence != bulletin.ConfidenceHigh {
		t.Error("recovery mutated the caller's candidates")
	}
	if len(res.Questions) == 0 || res.ReadyToImport {
		t.Error("expected a clarifying question and no readiness")
	}
}

func TestStructure_InvalidDateRecovers(t *testing.T) {
	f := &fakeLLM{answer: `{"message":"ok","services":[{"date":"31/01","code":"RP","service_code":"RP","confidence":"high"}]}`}
	res, err := newStructurer(t, f).Structure(context.Background(), Request{}, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ParseErr == nil {
		t.Error("expected a parse error for a non-ISO date")
	}
}

func TestStructure_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := newStructurer(t, &fakeLLM{err: boom}).Structure(context.Background(), Request{}, "x")
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestStructure_DropsOutOfRangeQuestions(t *testing.T) {
	f := &fakeLLM{answer: `{"message":"ok","services":[{"date":"2025-03-04","code":"RP","service_code":"RP","confidence":"high"}],
		"questions":[{"index":7,"text":"?","options":[]}],"ready_to_import":false}`}
	res, err := newStructurer(t, f).Structure(context.Background(), Request{}, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Questions) != 0 {
		t.Errorf("expected out-of-range question dropped, got %+v", res.Questions)
	}
}

func TestCorrectionPrompt_UsesPrintedDates(t *testing.T) {
	candidates := []bulletin.CandidateEntry{
		{Date: schedule.MustDate("2025-02-01"), DisplayedDate: schedule.MustDate("2025-01-31"), RawCode: "CCU003", ServiceCode: "X", Confidence: bulletin.ConfidenceHigh},
		{Date: schedule.MustDate("2025-02-03"), DisplayedDate: schedule.MustDate("2025-02-02"), RawCode: "??", ServiceCode: "X", Confidence: bulletin.ConfidenceUserCorrected},
	}
	p := CorrectionPrompt(candidates, "le 31 c'est ACR003")
	if !strings.Contains(p, `"date": "2025-01-31"`) {
		t.Errorf("expected printed date in prompt:\n%s", p)
	}
	if !strings.Contains(p, `"date": "2025-02-03"`) {
		t.Errorf("expected final date for the user-corrected entry:\n%s", p)
	}
	if !strings.Contains(p, "ACR003") {
		t.Error("expected the user message in the prompt")
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```":  `{"a":1}`,
		"```\n{\"a\":1}\n```":      `{"a":1}`,
		"Voici : {\"a\":1} merci": `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range tests {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
