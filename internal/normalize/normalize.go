// Package normalize applies the night-shift rollover: a shift that starts late
// in the evening is recorded under the following calendar day.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

// NightSuffix is the poste-code suffix used on bulletins for the night slot.
const NightSuffix = "003"

// Printed start times that contradict the code classification.
const (
	nightEarliestHour = 18
	dayLatestHour     = 20
)

var printedTimeRe = regexp.MustCompile(`^\s*(\d{1,2})\s*[hH:]\s*(\d{2})?`)

type Normalizer struct {
	catalog *catalog.Catalog
}

func New(cat *catalog.Catalog) *Normalizer {
	return &Normalizer{catalog: cat}
}

// IsNightShift classifies an entry from its code alone. The catalog mapping
// wins when the raw code is known; otherwise the suffix convention or an
// extracted night service code decide.
func (n *Normalizer) IsNightShift(rawCode, serviceCode string) bool {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if n.catalog != nil {
		if e, ok := n.catalog.Lookup(code); ok {
			return e.ServiceCode == catalog.NightServiceCode
		}
	}
	if len(code) > len(NightSuffix) && strings.HasSuffix(code, NightSuffix) {
		return true
	}
	return serviceCode == catalog.NightServiceCode
}

// EffectiveDate returns the calendar day an entry is recorded under.
func (n *Normalizer) EffectiveDate(rawCode, serviceCode string, displayed schedule.Date) schedule.Date {
	if n.IsNightShift(rawCode, serviceCode) {
		return displayed.AddDays(1)
	}
	return displayed
}

// Normalize fills the canonical service/poste for known codes and moves night
// shifts to the following day. User-corrected entries keep their codes; their
// date follows the corrected service code when a displayed date is known, and
// is left alone when the user set the date explicitly.
func (n *Normalizer) Normalize(c bulletin.CandidateEntry) bulletin.CandidateEntry {
	if c.Confidence == bulletin.ConfidenceUserCorrected {
		if !c.DisplayedDate.IsZero() {
			c.Date = c.DisplayedDate
			if c.ServiceCode == catalog.NightServiceCode {
				c.Date = c.DisplayedDate.AddDays(1)
			}
		}
		return c
	}

	displayed := c.DisplayedDate
	if displayed.IsZero() {
		displayed = c.Date
	}
	c.DisplayedDate = displayed

	if n.catalog != nil {
		if e, ok := n.catalog.Lookup(c.RawCode); ok {
			c.ServiceCode = e.ServiceCode
			if e.PosteCode != "" {
				c.PosteCode = schedule.StrPtr(e.PosteCode)
			}
		}
	}

	night := n.IsNightShift(c.RawCode, c.ServiceCode)
	if night {
		c.Date = displayed.AddDays(1)
	} else {
		c.Date = displayed
	}

	if hour, ok := printedStartHour(c.PrintedTime); ok {
		if (night && hour < nightEarliestHour) || (!night && hour >= dayLatestHour) {
			if !c.HasFlag(bulletin.FlagPrintedTimeMismatch) {
				c.Flags = append(c.Flags, bulletin.FlagPrintedTimeMismatch)
			}
			if c.Confidence == bulletin.ConfidenceHigh {
				c.Confidence = bulletin.ConfidenceMedium
			}
			c.Note = appendNote(c.Note, "printed time "+c.PrintedTime+" disagrees with code "+c.RawCode)
		}
	}
	return c
}

func (n *Normalizer) NormalizeAll(entries []bulletin.CandidateEntry) []bulletin.CandidateEntry {
	out := make([]bulletin.CandidateEntry, len(entries))
	for i, e := range entries {
		out[i] = n.Normalize(e)
	}
	return out
}

func printedStartHour(s string) (int, bool) {
	m := printedTimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h > 23 {
		return 0, false
	}
	return h, true
}

func appendNote(note, add string) string {
	if note == "" {
		return add
	}
	if strings.Contains(note, add) {
		return note
	}
	return note + "; " + add
}
