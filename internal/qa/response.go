package qa

import (
	"encoding/json"

	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

// Payload is the structured part of an answer. The set of implementations
// is closed; each one marshals under the "data" key of Response.
type Payload interface {
	isPayload()
}

type EntriesPayload struct {
	Range   schedule.Range   `json:"range"`
	Entries []schedule.Entry `json:"entries"`
}

type HoursPayload struct {
	Range      schedule.Range     `json:"range"`
	TotalHours float64            `json:"total_hours"`
	WorkedDays int                `json:"worked_days"`
	ByService  map[string]float64 `json:"by_service"`
}

type StatsPayload struct {
	Range  schedule.Range `json:"range"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

type HelpPayload struct {
	Capabilities []string `json:"capabilities"`
}

type UnknownPayload struct {
	Suggestions []string `json:"suggestions"`
}

func (EntriesPayload) isPayload() {}
func (HoursPayload) isPayload()   {}
func (StatsPayload) isPayload()   {}
func (HelpPayload) isPayload()    {}
func (UnknownPayload) isPayload() {}

// Response is what a question yields: an intent, French text for the chat
// and a typed payload.
type Response struct {
	Intent  Intent
	Message string
	Payload Payload
}

func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    Intent  `json:"type"`
		Message string  `json:"message"`
		Data    Payload `json:"data"`
	}{r.Intent, r.Message, r.Payload})
}

var capabilities = []string{
	"Mes services de la semaine (ou de la semaine prochaine)",
	"Ce que je fais à une date précise : demain, le 12 mars, 2025-06-14",
	"Mes heures du mois",
	"Mon prochain service, ou ma prochaine nuit",
	"Mes nuits, repos ou congés d'un mois",
	"Le bilan de mes services du mois ou de l'année",
}

var suggestions = []string{
	"Quels sont mes services cette semaine ?",
	"Combien d'heures ce mois-ci ?",
	"Quand est mon prochain service ?",
	"Combien de nuits en juin ?",
}
