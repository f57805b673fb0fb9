// Package conflict compares candidate entries with what is already stored.
// It performs no I/O: callers fetch the persisted subset first.
package conflict

import (
	"sort"

	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

type Snapshot struct {
	ServiceCode string  `json:"service_code"`
	PosteCode   *string `json:"poste_code,omitempty"`
}

func (s Snapshot) poste() string {
	if s.PosteCode == nil {
		return ""
	}
	return *s.PosteCode
}

type Conflict struct {
	Date     schedule.Date `json:"date"`
	Existing Snapshot      `json:"existing"`
	Incoming Snapshot      `json:"incoming"`
}

// Detect reports one Conflict per date where a persisted entry exists and its
// service or poste differs from the candidate. A missing poste on one side and
// a present poste on the other counts as a difference.
func Detect(candidates []bulletin.CandidateEntry, persisted []schedule.Entry) []Conflict {
	byDate := make(map[schedule.Date]schedule.Entry, len(persisted))
	for _, e := range persisted {
		byDate[e.Date] = e
	}

	var out []Conflict
	seen := make(map[schedule.Date]bool)
	for _, c := range candidates {
		existing, ok := byDate[c.Date]
		if !ok || seen[c.Date] {
			continue
		}
		if existing.ServiceCode == c.ServiceCode && existing.Poste() == c.Poste() && (existing.PosteCode == nil) == (c.PosteCode == nil) {
			continue
		}
		seen[c.Date] = true
		out = append(out, Conflict{
			Date:     c.Date,
			Existing: Snapshot{ServiceCode: existing.ServiceCode, PosteCode: existing.PosteCode},
			Incoming: Snapshot{ServiceCode: c.ServiceCode, PosteCode: c.PosteCode},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Collision is a candidate whose effective date repeats an earlier
// candidate's, typically a night shift rolled onto the next printed day.
type Collision struct {
	Date  schedule.Date
	Index int
	With  int
}

// Collisions reports every candidate sharing its date with an earlier one,
// in candidate order. The store keeps one entry per date, so a candidate set
// with collisions cannot be committed as is.
func Collisions(candidates []bulletin.CandidateEntry) []Collision {
	first := make(map[schedule.Date]int, len(candidates))
	var out []Collision
	for i, c := range candidates {
		if j, ok := first[c.Date]; ok {
			out = append(out, Collision{Date: c.Date, Index: i, With: j})
			continue
		}
		first[c.Date] = i
	}
	return out
}

// Dates returns the set of conflicting dates.
func Dates(conflicts []Conflict) map[schedule.Date]bool {
	out := make(map[schedule.Date]bool, len(conflicts))
	for _, c := range conflicts {
		out[c.Date] = true
	}
	return out
}

// Span returns the smallest range covering every candidate date, and false
// when there are no candidates. Used to fetch the persisted subset.
func Span(candidates []bulletin.CandidateEntry) (schedule.Range, bool) {
	if len(candidates) == 0 {
		return schedule.Range{}, false
	}
	r := schedule.Range{From: candidates[0].Date, To: candidates[0].Date}
	for _, c := range candidates[1:] {
		if c.Date.Before(r.From) {
			r.From = c.Date
		}
		if c.Date.After(r.To) {
			r.To = c.Date
		}
	}
	return r, true
}

// Describe renders a conflict for a chat message.
func (c Conflict) Describe() string {
	return c.Date.String() + ": " + label(c.Existing) + " -> " + label(c.Incoming)
}

func label(s Snapshot) string {
	if p := s.poste(); p != "" {
		return s.ServiceCode + "/" + p
	}
	return s.ServiceCode
}
