// Package resolver matches the agent name read on a bulletin against the
// agent directory.
package resolver

import (
	"strings"

	"github.com/MikeSquared-Agency/shiftbook/internal/textfold"
)

type Confidence string

const (
	ConfidenceExact   Confidence = "exact"
	ConfidencePartial Confidence = "partial"
	ConfidenceNone    Confidence = "none"
)

// Agent is a directory record. The directory itself is owned by an external
// CRUD service; the resolver only reads a snapshot.
type Agent struct {
	ID         string `json:"id"`
	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
}

func (a Agent) FullName() string {
	return strings.TrimSpace(a.GivenName + " " + a.FamilyName)
}

type Resolution struct {
	Query      string     `json:"query"`
	Agent      *Agent     `json:"agent,omitempty"`
	Confidence Confidence `json:"confidence"`
	// Mismatch is set when the resolved agent is not the calendar owner. It is
	// only ever surfaced for confirmation; the import target never changes.
	Mismatch bool `json:"mismatch"`
}

// Resolve finds name in the directory snapshot. An exact match on
// family/given name in either order wins; otherwise a substring search is
// accepted only when exactly one record matches.
func Resolve(name string, directory []Agent, ownerID string) Resolution {
	res := Resolution{Query: name, Confidence: ConfidenceNone}
	tokens := strings.Fields(textfold.Fold(name))
	if len(tokens) == 0 {
		return res
	}

	if len(tokens) >= 2 {
		first := tokens[0]
		rest := strings.Join(tokens[1:], " ")
		last := tokens[len(tokens)-1]
		head := strings.Join(tokens[:len(tokens)-1], " ")
		for i := range directory {
			family := textfold.Fold(directory[i].FamilyName)
			given := textfold.Fold(directory[i].GivenName)
			if (family == first && given == rest) || (given == head && family == last) {
				return found(res, directory[i], ConfidenceExact, ownerID)
			}
		}
	}

	var match *Agent
	count := 0
	for i := range directory {
		if matchesAll(tokens, textfold.Fold(directory[i].FamilyName), textfold.Fold(directory[i].GivenName)) {
			count++
			match = &directory[i]
		}
	}
	if count == 1 {
		return found(res, *match, ConfidencePartial, ownerID)
	}
	return res
}

func matchesAll(tokens []string, family, given string) bool {
	for _, tok := range tokens {
		if !strings.Contains(family, tok) && !strings.Contains(given, tok) {
			return false
		}
	}
	return true
}

func found(res Resolution, a Agent, c Confidence, ownerID string) Resolution {
	res.Agent = &a
	res.Confidence = c
	res.Mismatch = ownerID != "" && a.ID != ownerID
	return res
}
