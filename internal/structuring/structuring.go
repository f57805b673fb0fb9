// Package structuring turns bulletin text and user corrections into candidate
// entries through the structuring model.
package structuring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/llm"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

const maxTokens = 8192

type Structurer struct {
	llm     llm.Completer
	catalog *catalog.Catalog
	system  string
	logger  *slog.Logger
}

func New(completer llm.Completer, cat *catalog.Catalog, logger *slog.Logger) *Structurer {
	return &Structurer{
		llm:     completer,
		catalog: cat,
		system:  systemPromptHeader + cat.PromptTable() + responseSchema,
		logger:  logger,
	}
}

// Request is one structuring call. History holds the previous exchanges in
// order; Candidates is the current entry set, used for correction prompts and
// for recovery when the model answer cannot be parsed.
type Request struct {
	History    []llm.Message
	Candidates []bulletin.CandidateEntry
}

type Result struct {
	Message       string
	Services      []bulletin.CandidateEntry
	Questions     []bulletin.Question
	ReadyToImport bool
	Metadata      bulletin.AgentMetadata
	// ParseErr is set when the model answer did not match the schema and the
	// result was rebuilt from the previous candidates.
	ParseErr error
	// Raw is the model answer, kept for the assistant turn.
	Raw string
}

// BulletinPrompt is the user prompt for freshly extracted bulletin text.
func BulletinPrompt(today schedule.Date, text string) string {
	return fmt.Sprintf(bulletinPrompt, today, text)
}

// CorrectionPrompt is the user prompt for a free-text correction.
func CorrectionPrompt(candidates []bulletin.CandidateEntry, message string) string {
	return fmt.Sprintf(correctionPrompt, renderCandidates(candidates), message)
}

// Structure sends the conversation to the model. Transport failures are
// returned as errors; malformed answers are recovered into a low-confidence
// Result carrying ParseErr.
func (s *Structurer) Structure(ctx context.Context, req Request, prompt string) (*Result, error) {
	messages := append(append([]llm.Message(nil), req.History...), llm.Message{Role: llm.RoleUser, Content: prompt})

	s.logger.Info("structuring turn",
		"history_len", len(req.History),
		"prompt_len", len(prompt),
		"candidates", len(req.Candidates),
	)

	raw, err := s.llm.Complete(ctx, s.system, messages, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("llm structuring: %w", err)
	}

	res, err := s.parse(raw)
	if err != nil {
		s.logger.Error("failed to parse structuring response", "error", err, "raw", raw)
		return s.recover(req.Candidates, raw, apperr.Parse("structuring response did not match the schema", err)), nil
	}

	s.logger.Info("structuring complete",
		"services", len(res.Services),
		"questions", len(res.Questions),
		"ready_to_import", res.ReadyToImport,
	)
	return res, nil
}

type llmService struct {
	Date        string `json:"date"`
	Code        string `json:"code"`
	ServiceCode string `json:"service_code"`
	PosteCode   string `json:"poste_code"`
	Confidence  string `json:"confidence"`
	Note        string `json:"note"`
	PrintedTime string `json:"printed_time"`
}

type llmResponse struct {
	Message       string                 `json:"message"`
	Services      []llmService           `json:"services"`
	Questions     []bulletin.Question    `json:"questions"`
	ReadyToImport bool                   `json:"ready_to_import"`
	Metadata      bulletin.AgentMetadata `json:"metadata"`
}

func (s *Structurer) parse(raw string) (*Result, error) {
	var resp llmResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	services := make([]bulletin.CandidateEntry, 0, len(resp.Services))
	for i, ls := range resp.Services {
		c, err := s.candidate(ls)
		if err != nil {
			return nil, fmt.Errorf("service %d: %w", i, err)
		}
		services = append(services, c)
	}

	questions := make([]bulletin.Question, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		if q.Index < 0 || q.Index >= len(services) || strings.TrimSpace(q.Text) == "" {
			s.logger.Warn("dropping question with invalid target", "index", q.Index, "text", q.Text)
			continue
		}
		questions = append(questions, q)
	}
	questions = s.clarify(services, questions)

	return &Result{
		Message:       resp.Message,
		Services:      services,
		Questions:     questions,
		ReadyToImport: resp.ReadyToImport && len(questions) == 0 && len(services) > 0,
		Metadata:      resp.Metadata,
		Raw:           raw,
	}, nil
}

// candidate converts one model line. The model reports printed dates, so
// Date and DisplayedDate start equal until normalization.
func (s *Structurer) candidate(ls llmService) (bulletin.CandidateEntry, error) {
	d, err := schedule.ParseDate(strings.TrimSpace(ls.Date))
	if err != nil {
		return bulletin.CandidateEntry{}, err
	}
	c := bulletin.CandidateEntry{
		Date:          d,
		DisplayedDate: d,
		RawCode:       strings.TrimSpace(ls.Code),
		ServiceCode:   strings.TrimSpace(ls.ServiceCode),
		PosteCode:     schedule.StrPtr(strings.TrimSpace(ls.PosteCode)),
		Confidence:    bulletin.Confidence(ls.Confidence),
		Note:          ls.Note,
		PrintedTime:   strings.TrimSpace(ls.PrintedTime),
	}
	if c.RawCode == "" {
		c.RawCode = c.ServiceCode
	}
	if !c.Confidence.Valid() {
		c.Confidence = bulletin.ConfidenceLow
	}
	if c.Confidence == bulletin.ConfidenceUserCorrected {
		// Echoed corrections carry their final date.
		c.DisplayedDate = schedule.Date{}
	}

	_, knownCode := s.catalog.Lookup(c.RawCode)
	if !knownCode && !s.catalog.IsKnownService(c.RawCode) {
		if c.Confidence != bulletin.ConfidenceUserCorrected {
			c.Confidence = bulletin.ConfidenceLow
		}
		c.Flags = append(c.Flags, bulletin.FlagUnknownCode)
		if !strings.Contains(c.Note, c.RawCode) {
			c.Note = strings.TrimSpace(c.Note + " code " + c.RawCode + " absent du référentiel")
		}
	}
	if !s.catalog.IsKnownService(c.ServiceCode) && c.Confidence != bulletin.ConfidenceUserCorrected {
		c.Confidence = bulletin.ConfidenceLow
	}
	return c, nil
}

// clarify adds a question for every low-confidence entry the model left
// without one.
func (s *Structurer) clarify(services []bulletin.CandidateEntry, questions []bulletin.Question) []bulletin.Question {
	asked := make(map[int]bool, len(questions))
	for _, q := range questions {
		asked[q.Index] = true
	}
	for i, c := range services {
		if c.Confidence != bulletin.ConfidenceLow || asked[i] {
			continue
		}
		questions = append(questions, bulletin.Question{
			Index:   i,
			Text:    fmt.Sprintf("Quel service correspond au code %q du %s ?", c.RawCode, c.DisplayedDate),
			Options: s.serviceOptions(),
		})
	}
	return questions
}

func (s *Structurer) serviceOptions() []bulletin.Option {
	services := s.catalog.Services()
	opts := make([]bulletin.Option, 0, len(services))
	for _, svc := range services {
		opts = append(opts, bulletin.Option{Label: svc.Label, Value: svc.Code})
	}
	return opts
}

func (s *Structurer) recover(previous []bulletin.CandidateEntry, raw string, parseErr error) *Result {
	services := make([]bulletin.CandidateEntry, len(previous))
	for i, c := range previous {
		if c.Confidence != bulletin.ConfidenceUserCorrected {
			c.Confidence = bulletin.ConfidenceLow
		}
		services[i] = c
	}
	return &Result{
		Message:  recoveryMessage,
		Services: services,
		Questions: []bulletin.Question{{
			Index: -1,
			Text:  recoveryQuestion,
			Options: []bulletin.Option{
				{Label: "Relancer l'analyse", Value: "retry"},
				{Label: "Annuler l'import", Value: "cancel"},
			},
		}},
		ParseErr: parseErr,
		Raw:      raw,
	}
}

// stripFences removes a markdown code fence and any prose around the JSON object.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// renderCandidates writes the entries in the model's own schema with printed
// dates, so a correction round trip does not apply the night rollover twice.
// User-corrected entries are written with their final date.
func renderCandidates(candidates []bulletin.CandidateEntry) string {
	out := make([]llmService, len(candidates))
	for i, c := range candidates {
		d := c.DisplayedDate
		if d.IsZero() || c.Confidence == bulletin.ConfidenceUserCorrected {
			d = c.Date
		}
		out[i] = llmService{
			Date:        d.String(),
			Code:        c.RawCode,
			ServiceCode: c.ServiceCode,
			PosteCode:   c.Poste(),
			Confidence:  string(c.Confidence),
			Note:        c.Note,
			PrintedTime: c.PrintedTime,
		}
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	return string(b)
}
