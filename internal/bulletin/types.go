// Package bulletin holds the candidate entries extracted from a schedule
// bulletin and the clarification questions offered to the user.
package bulletin

import (
	"fmt"

	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

type Confidence string

const (
	ConfidenceHigh          Confidence = "high"
	ConfidenceMedium        Confidence = "medium"
	ConfidenceLow           Confidence = "low"
	ConfidenceUserCorrected Confidence = "user_corrected"
)

func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceUserCorrected:
		return true
	}
	return false
}

// FlagPrintedTimeMismatch marks an entry whose printed start time disagrees
// with the night-shift classification derived from its code.
const FlagPrintedTimeMismatch = "printed_time_mismatch"

// FlagUnknownCode marks an entry whose code is not in the catalog.
const FlagUnknownCode = "unknown_code"

// CandidateEntry is one dated line extracted from a bulletin, before commit.
// Date is the effective calendar day; DisplayedDate is the day printed on the
// bulletin. They differ only for night shifts.
type CandidateEntry struct {
	Date          schedule.Date `json:"date"`
	DisplayedDate schedule.Date `json:"displayed_date"`
	RawCode       string        `json:"raw_code"`
	ServiceCode   string        `json:"service_code"`
	PosteCode     *string       `json:"poste_code,omitempty"`
	Confidence    Confidence    `json:"confidence"`
	Note          string        `json:"note,omitempty"`
	PrintedTime   string        `json:"printed_time,omitempty"`
	Flags         []string      `json:"flags,omitempty"`
}

func (c CandidateEntry) Poste() string {
	if c.PosteCode == nil {
		return ""
	}
	return *c.PosteCode
}

func (c CandidateEntry) HasFlag(flag string) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ToScheduleEntry converts the candidate to the row written for agentID.
func (c CandidateEntry) ToScheduleEntry(agentID string) schedule.Entry {
	return schedule.Entry{
		AgentID:     agentID,
		Date:        c.Date,
		ServiceCode: c.ServiceCode,
		PosteCode:   c.PosteCode,
	}
}

func (c CandidateEntry) String() string {
	if c.PosteCode != nil {
		return fmt.Sprintf("%s %s (%s/%s)", c.Date, c.RawCode, c.ServiceCode, *c.PosteCode)
	}
	return fmt.Sprintf("%s %s (%s)", c.Date, c.RawCode, c.ServiceCode)
}

// Correction is an explicit user edit of one candidate. Nil fields are left alone.
type Correction struct {
	Date        *schedule.Date
	ServiceCode *string
	PosteCode   *string
	Note        *string
}

// Apply returns a copy of c with the correction applied. Any correction forces
// the confidence to user_corrected. A corrected date is taken as the effective
// date, so the displayed date is cleared.
func (c CandidateEntry) Apply(corr Correction) CandidateEntry {
	if corr.Date != nil {
		c.Date = *corr.Date
		c.DisplayedDate = schedule.Date{}
	}
	if corr.ServiceCode != nil {
		c.ServiceCode = *corr.ServiceCode
	}
	if corr.PosteCode != nil {
		c.PosteCode = schedule.StrPtr(*corr.PosteCode)
	}
	if corr.Note != nil {
		c.Note = *corr.Note
	}
	c.Confidence = ConfidenceUserCorrected
	c.Flags = nil
	return c
}

type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// QuestionDateCollision marks a question raised because the entry at Index
// falls on the same day as an earlier entry.
const QuestionDateCollision = "date_collision"

// Question is a single-choice clarification about the entry at Index.
type Question struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
	Kind    string   `json:"kind,omitempty"`
}

// AgentMetadata is what the structuring model read about the bulletin itself.
type AgentMetadata struct {
	AgentName   string `json:"agent_name,omitempty"`
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
}
