package qa

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

// DefaultNextLimit is how many upcoming services next_service returns.
const DefaultNextLimit = 3

type Executor struct {
	store      schedule.Store
	catalog    *catalog.Catalog
	classifier *Classifier
	nextLimit  int
	logger     *slog.Logger
}

func NewExecutor(store schedule.Store, cat *catalog.Catalog, nextLimit int, logger *slog.Logger) *Executor {
	if nextLimit <= 0 {
		nextLimit = DefaultNextLimit
	}
	return &Executor{
		store:      store,
		catalog:    cat,
		classifier: NewClassifier(cat),
		nextLimit:  nextLimit,
		logger:     logger,
	}
}

// Answer classifies question against today and runs at most one range query
// on agentID's calendar.
func (e *Executor) Answer(ctx context.Context, agentID, question string, today schedule.Date) (*Response, error) {
	q := e.classifier.Classify(question, today)
	e.logger.Debug("question classified", "intent", q.Intent, "from", q.Range.From, "to", q.Range.To, "codes", q.ServiceCodes)

	switch q.Intent {
	case IntentHelp:
		return &Response{
			Intent:  q.Intent,
			Message: "Je peux répondre à des questions sur votre planning :\n- " + strings.Join(capabilities, "\n- "),
			Payload: HelpPayload{Capabilities: capabilities},
		}, nil
	case IntentUnknown:
		return &Response{
			Intent:  q.Intent,
			Message: "Je n'ai pas compris la question. Essayez par exemple : « " + suggestions[0] + " »",
			Payload: UnknownPayload{Suggestions: suggestions},
		}, nil
	}

	entries, err := e.store.Query(ctx, agentID, q.Range, schedule.Filter{ServiceCodes: q.ServiceCodes})
	if err != nil {
		return nil, fmt.Errorf("qa %s: %w", q.Intent, err)
	}

	switch q.Intent {
	case IntentNextService:
		if len(entries) > e.nextLimit {
			entries = entries[:e.nextLimit]
		}
		return &Response{Intent: q.Intent, Message: e.nextMessage(entries), Payload: EntriesPayload{Range: q.Range, Entries: nonNil(entries)}}, nil
	case IntentMonthlyHours:
		p := e.hours(entries, q.Range)
		msg := fmt.Sprintf("Du %s au %s : %s heures sur %d jours travaillés.", q.Range.From, q.Range.To, formatHours(p.TotalHours), p.WorkedDays)
		return &Response{Intent: q.Intent, Message: msg, Payload: p}, nil
	case IntentStatsSummary:
		p := stats(entries, q.Range)
		return &Response{Intent: q.Intent, Message: e.statsMessage(p), Payload: p}, nil
	case IntentSpecificDate:
		return &Response{Intent: q.Intent, Message: e.dayMessage(entries, q.Range.From), Payload: EntriesPayload{Range: q.Range, Entries: nonNil(entries)}}, nil
	default:
		return &Response{Intent: q.Intent, Message: e.listMessage(entries, q), Payload: EntriesPayload{Range: q.Range, Entries: nonNil(entries)}}, nil
	}
}

func (e *Executor) hours(entries []schedule.Entry, r schedule.Range) HoursPayload {
	p := HoursPayload{Range: r, ByService: map[string]float64{}}
	for _, en := range entries {
		if !e.catalog.IsWork(en.ServiceCode) {
			continue
		}
		h := e.catalog.Hours(en.ServiceCode)
		p.TotalHours += h
		p.ByService[en.ServiceCode] += h
		p.WorkedDays++
	}
	return p
}

func stats(entries []schedule.Entry, r schedule.Range) StatsPayload {
	p := StatsPayload{Range: r, Counts: map[string]int{}}
	for _, en := range entries {
		p.Counts[en.ServiceCode]++
		p.Total++
	}
	return p
}

func (e *Executor) label(code string) string {
	if s, ok := e.catalog.Service(code); ok {
		return s.Label
	}
	return code
}

func (e *Executor) describe(en schedule.Entry) string {
	s := fmt.Sprintf("%s : %s", en.Date, e.label(en.ServiceCode))
	if en.PosteCode != nil {
		s += " (" + *en.PosteCode + ")"
	}
	return s
}

func (e *Executor) dayMessage(entries []schedule.Entry, day schedule.Date) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Aucun service enregistré le %s.", day)
	}
	return e.describe(entries[0])
}

func (e *Executor) nextMessage(entries []schedule.Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Aucun service prévu dans les %d prochains jours.", NextServiceHorizon)
	}
	lines := make([]string, len(entries))
	for i, en := range entries {
		lines[i] = "- " + e.describe(en)
	}
	return "Vos prochains services :\n" + strings.Join(lines, "\n")
}

func (e *Executor) listMessage(entries []schedule.Entry, q Query) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Aucun service trouvé du %s au %s.", q.Range.From, q.Range.To)
	}
	lines := make([]string, len(entries))
	for i, en := range entries {
		lines[i] = "- " + e.describe(en)
	}
	head := fmt.Sprintf("Du %s au %s :", q.Range.From, q.Range.To)
	if q.Label != "" {
		head = fmt.Sprintf("%d × %s du %s au %s :", len(entries), q.Label, q.Range.From, q.Range.To)
	}
	return head + "\n" + strings.Join(lines, "\n")
}

func (e *Executor) statsMessage(p StatsPayload) string {
	if p.Total == 0 {
		return fmt.Sprintf("Aucun service enregistré du %s au %s.", p.Range.From, p.Range.To)
	}
	codes := make([]string, 0, len(p.Counts))
	for c := range p.Counts {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("%s : %d", e.label(c), p.Counts[c])
	}
	return fmt.Sprintf("Du %s au %s, %d jours : %s.", p.Range.From, p.Range.To, p.Total, strings.Join(parts, ", "))
}

func formatHours(h float64) string {
	if h == float64(int(h)) {
		return fmt.Sprintf("%d", int(h))
	}
	return strings.Replace(fmt.Sprintf("%.1f", h), ".", ",", 1)
}

func nonNil(entries []schedule.Entry) []schedule.Entry {
	if entries == nil {
		return []schedule.Entry{}
	}
	return entries
}
