package resolver

import "testing"

var directory = []Agent{
	{ID: "a1", FamilyName: "Dupont", GivenName: "Marie"},
	{ID: "a2", FamilyName: "Dupond", GivenName: "Éric"},
	{ID: "a3", FamilyName: "Martin", GivenName: "Jean Paul"},
	{ID: "a4", FamilyName: "Lefèvre", GivenName: "Claire"},
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		owner      string
		wantID     string
		wantConf   Confidence
		wantMismat bool
	}{
		{"family then given", "DUPONT Marie", "a1", "a1", ConfidenceExact, false},
		{"given then family", "marie dupont", "a1", "a1", ConfidenceExact, false},
		{"accents ignored", "ERIC DUPOND", "a1", "a2", ConfidenceExact, true},
		{"compound given name", "Martin Jean Paul", "a3", "a3", ConfidenceExact, false},
		{"single partial match", "lefev", "a4", "a4", ConfidencePartial, false},
		{"partial two tokens", "claire lef", "a1", "a4", ConfidencePartial, true},
		{"ambiguous partial", "dupon", "a1", "", ConfidenceNone, false},
		{"no match", "Bernard Paul", "a1", "", ConfidenceNone, false},
		{"empty", "   ", "a1", "", ConfidenceNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.query, directory, tt.owner)
			if got.Confidence != tt.wantConf {
				t.Fatalf("expected confidence %s, got %s", tt.wantConf, got.Confidence)
			}
			if tt.wantID == "" {
				if got.Agent != nil {
					t.Errorf("expected no agent, got %s", got.Agent.ID)
				}
				return
			}
			if got.Agent == nil || got.Agent.ID != tt.wantID {
				t.Fatalf("expected agent %s, got %+v", tt.wantID, got.Agent)
			}
			if got.Mismatch != tt.wantMismat {
				t.Errorf("expected mismatch %v, got %v", tt.wantMismat, got.Mismatch)
			}
		})
	}
}

func TestResolve_NoneWhenZeroOrManyPartialMatches(t *testing.T) {
	if got := Resolve("zzz", directory, ""); got.Confidence != ConfidenceNone {
		t.Errorf("zero matches: expected none, got %s", got.Confidence)
	}
	if got := Resolve("a", directory, ""); got.Confidence != ConfidenceNone {
		t.Errorf("many matches: expected none, got %s", got.Confidence)
	}
}
