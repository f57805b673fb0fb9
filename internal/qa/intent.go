// Package qa answers free-text calendar questions. A rule-based classifier
// maps the question to an intent and a bounded date range relative to a
// fixed "today"; the executor then runs a single range query.
package qa

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
	"github.com/MikeSquared-Agency/shiftbook/internal/textfold"
)

type Intent string

const (
	IntentWeeklyServices Intent = "weekly_services"
	IntentSpecificDate   Intent = "specific_date"
	IntentMonthlyHours   Intent = "monthly_hours"
	IntentNextService    Intent = "next_service"
	IntentServiceSearch  Intent = "service_search"
	IntentStatsSummary   Intent = "stats_summary"
	IntentHelp           Intent = "help"
	IntentUnknown        Intent = "unknown"
)

// NextServiceHorizon is how far ahead next_service looks.
const NextServiceHorizon = 60

// Query is a classified question. Range is zero for help and unknown.
type Query struct {
	Intent       Intent
	Range        schedule.Range
	ServiceCodes []string
	// Label names the selection for the answer text, e.g. "nuit".
	Label string
}

var (
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	namedDateRe  = regexp.MustCompile(`\b(\d{1,2})(?:er)?\s+(janvier|fevrier|mars|avril|mai|juin|juillet|aout|septembre|octobre|novembre|decembre|january|february|march|april|may|june|july|august|september|october|november|december)(?:\s+(\d{4}))?\b`)
	dayOfMonthRe = regexp.MustCompile(`\ble (\d{1,2})(?:er)?\b`)
	nextRe       = regexp.MustCompile(`\bprochaine?s?\s+(service|garde|vacation|poste|nuit|matin|soir|journee)s?\b|\bnext\s+(shift|service|night|morning|evening)\b|\bquand (est-ce que )?je (travaille|bosse)\b`)
	wordRe       = regexp.MustCompile(`[a-z0-9-]+`)
	codeRe       = regexp.MustCompile(`^(?:[A-Z]{1,4}\d{0,3}|-)$`)
)

var monthNames = map[string]time.Month{
	"janvier": time.January, "fevrier": time.February, "mars": time.March, "avril": time.April,
	"mai": time.May, "juin": time.June, "juillet": time.July, "aout": time.August,
	"septembre": time.September, "octobre": time.October, "novembre": time.November, "decembre": time.December,
	"january": time.January, "february": time.February, "march": time.March, "april": time.April,
	"may": time.May, "june": time.June, "july": time.July, "august": time.August,
	"september": time.September, "october": time.October, "november": time.November, "december": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"lundi": time.Monday, "mardi": time.Tuesday, "mercredi": time.Wednesday, "jeudi": time.Thursday,
	"vendredi": time.Friday, "samedi": time.Saturday, "dimanche": time.Sunday,
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
}

// serviceKeywords maps question words to a catalog label or creneau word.
var serviceKeywords = map[string]string{
	"nuit": "nuit", "night": "nuit",
	"matin": "matin", "morning": "matin",
	"soir": "soir", "soiree": "soir", "evening": "soir",
	"journee": "journee",
	"repos": "repos", "rest": "repos", "off": "repos",
	"conge": "conge", "leave": "conge", "vacances": "conge", "holiday": "conge",
	"formation": "formation", "training": "formation",
	"maladie": "maladie", "sick": "maladie",
	"disponible": "disponible", "reserve": "disponible",
}

type Classifier struct {
	catalog *catalog.Catalog
}

func NewClassifier(cat *catalog.Catalog) *Classifier {
	return &Classifier{catalog: cat}
}

// Classify is deterministic: the same question and today always give the
// same Query.
func (c *Classifier) Classify(question string, today schedule.Date) Query {
	q := textfold.Fold(question)
	if q == "" {
		return Query{Intent: IntentUnknown}
	}

	if containsAny(q, "aide", "help", "que peux-tu", "que sais-tu", "what can you", "comment ca marche", "comment ca fonctionne") {
		return Query{Intent: IntentHelp}
	}

	codes, label := c.serviceSelection(question, q)

	if nextRe.MatchString(q) {
		work := c.catalog.WorkCodes()
		// Non-work keywords ("après mes congés") do not narrow the search.
		if narrowed := intersect(work, codes); len(narrowed) > 0 {
			work = narrowed
		} else {
			label = ""
		}
		return Query{
			Intent:       IntentNextService,
			Range:        schedule.Range{From: today, To: today.AddDays(NextServiceHorizon)},
			ServiceCodes: work,
			Label:        label,
		}
	}

	if containsAny(q, "heures", "nombre d'heure", "hours", "combien de temps") {
		return Query{Intent: IntentMonthlyHours, Range: monthRange(q, today)}
	}

	if containsAny(q, "statistique", "stats", "bilan", "resume", "summary", "repartition", "combien de", "how many") {
		r := monthRange(q, today)
		if hasWord(q, "annee", "an", "year") {
			r = yearRange(q, today)
		}
		return Query{Intent: IntentStatsSummary, Range: r, ServiceCodes: codes, Label: label}
	}

	if d, ok := specificDate(q, today); ok {
		return Query{Intent: IntentSpecificDate, Range: schedule.Range{From: d, To: d}}
	}

	if containsAny(q, "semaine", "week") {
		return Query{Intent: IntentWeeklyServices, Range: weekRange(q, today)}
	}

	if len(codes) > 0 {
		return Query{Intent: IntentServiceSearch, Range: monthRange(q, today), ServiceCodes: codes, Label: label}
	}

	if containsAny(q, "mois", "month") {
		return Query{Intent: IntentServiceSearch, Range: monthRange(q, today)}
	}

	if containsAny(q, "planning", "horaire", "services", "schedule", "je travaille", "je bosse") {
		return Query{Intent: IntentWeeklyServices, Range: weekRange(q, today)}
	}

	return Query{Intent: IntentUnknown}
}

// serviceSelection finds the service codes a question is about, from a
// keyword ("nuits", "repos") or an explicit catalog code ("CCU003", "RP").
func (c *Classifier) serviceSelection(original, folded string) ([]string, string) {
	seen := map[string]bool{}
	var codes []string
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}

	label := ""
	for _, w := range wordRe.FindAllString(folded, -1) {
		kw, ok := serviceKeywords[w]
		if !ok {
			kw, ok = serviceKeywords[strings.TrimSuffix(w, "s")]
		}
		if !ok {
			continue
		}
		for _, code := range c.catalog.CodesForCreneau(kw) {
			add(code)
		}
		for _, s := range c.catalog.Services() {
			if strings.Contains(textfold.Fold(s.Label), kw) {
				add(s.Code)
			}
		}
		if label == "" {
			label = kw
		}
	}

	for _, token := range codeTokens(original) {
		if e, ok := c.catalog.Lookup(token); ok {
			add(e.ServiceCode)
		} else if c.catalog.IsKnownService(token) {
			add(token)
		} else {
			continue
		}
		if label == "" {
			label = token
		}
	}
	return codes, label
}

func specificDate(q string, today schedule.Date) (schedule.Date, bool) {
	switch {
	case containsAny(q, "apres-demain", "apres demain", "day after tomorrow"):
		return today.AddDays(2), true
	case containsAny(q, "avant-hier", "avant hier"):
		return today.AddDays(-2), true
	case containsAny(q, "demain", "tomorrow"):
		return today.AddDays(1), true
	case containsAny(q, "hier", "yesterday"):
		return today.AddDays(-1), true
	case containsAny(q, "aujourd'hui", "aujourdhui", "aujourd hui", "today", "ce soir", "tonight"):
		return today, true
	}

	if m := isoDateRe.FindStringSubmatch(q); m != nil {
		return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := slashDateRe.FindStringSubmatch(q); m != nil {
		year := today.Year()
		if m[3] != "" {
			year = atoi(m[3])
			if year < 100 {
				year += 2000
			}
		}
		return buildDate(year, atoi(m[2]), atoi(m[1]))
	}
	if m := namedDateRe.FindStringSubmatch(q); m != nil {
		year := today.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		return buildDate(year, int(monthNames[m[2]]), atoi(m[1]))
	}
	if m := dayOfMonthRe.FindStringSubmatch(q); m != nil {
		return buildDate(today.Year(), int(today.Month()), atoi(m[1]))
	}
	for _, w := range wordRe.FindAllString(q, -1) {
		if wd, ok := weekdayNames[w]; ok {
			return today.AddDays((int(wd) - int(today.Weekday()) + 7) % 7), true
		}
	}
	return schedule.Date{}, false
}

// buildDate rejects impossible days instead of letting time.Date normalise them.
func buildDate(year, month, day int) (schedule.Date, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return schedule.Date{}, false
	}
	d := schedule.NewDate(year, time.Month(month), day)
	if d.Day() != day {
		return schedule.Date{}, false
	}
	return d, true
}

func weekRange(q string, today schedule.Date) schedule.Range {
	switch {
	case containsAny(q, "semaine prochaine", "next week"):
		return schedule.WeekOf(today.AddDays(7))
	case containsAny(q, "semaine derniere", "semaine passee", "last week"):
		return schedule.WeekOf(today.AddDays(-7))
	}
	return schedule.WeekOf(today)
}

func monthRange(q string, today schedule.Date) schedule.Range {
	switch {
	case containsAny(q, "mois prochain", "next month"):
		return schedule.MonthOf(today.AddMonths(1))
	case containsAny(q, "mois dernier", "mois precedent", "mois passe", "last month"):
		return schedule.MonthOf(today.AddMonths(-1))
	}
	for _, w := range wordRe.FindAllString(q, -1) {
		if m, ok := monthNames[w]; ok {
			return schedule.MonthOf(schedule.NewDate(today.Year(), m, 1))
		}
	}
	return schedule.MonthOf(today)
}

func yearRange(q string, today schedule.Date) schedule.Range {
	switch {
	case containsAny(q, "annee derniere", "last year"):
		return schedule.YearOf(schedule.NewDate(today.Year()-1, time.January, 1))
	case containsAny(q, "annee prochaine", "next year"):
		return schedule.YearOf(schedule.NewDate(today.Year()+1, time.January, 1))
	}
	return schedule.YearOf(today)
}

// codeTokens splits on spaces and punctuation but keeps apostrophes so
// that "C'est" never reads as the code C.
func codeTokens(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, "?!.,;:()\"")
		if codeRe.MatchString(f) {
			out = append(out, f)
		}
	}
	return out
}

func hasWord(s string, words ...string) bool {
	for _, w := range wordRe.FindAllString(s, -1) {
		for _, want := range words {
			if w == want {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	var out []string
	for _, x := range a {
		if in[x] {
			out = append(out, x)
		}
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
