package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreAlwaysInRange(t *testing.T) {
	s := NewScorer(200)

	cases := []struct {
		query  string
		intent Intent
		cands  []RetrievalCandidate
		answer string
	}{
		{"", IntentSummary, nil, ""},
		{"heparin dosing", IntentDosage, []RetrievalCandidate{candidate("a", "x")}, "Heparin 80 units/kg bolus."},
		{"long answer", IntentSummary, []RetrievalCandidate{candidate("a", "x")}, strings.Repeat("answer text ", 100)},
	}
	for _, c := range cases {
		got := s.Score(c.query, c.intent, c.cands, c.answer)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestKeywordCoverageComponent(t *testing.T) {
	s := NewScorer(200)

	full := s.Score("stemi door-to-balloon time", IntentSummary,
		[]RetrievalCandidate{candidate("a", "x")},
		"The STEMI door-to-balloon time target is 90 minutes which gives a complete answer of reasonable length for scoring purposes here.")
	none := s.Score("stemi door-to-balloon time", IntentSummary,
		[]RetrievalCandidate{candidate("a", "x")},
		"Unrelated text about something else entirely with comparable length to keep the remaining sub-scores level across both calls.")

	assert.Greater(t, full, none)
}

func TestStructuralScoreByIntent(t *testing.T) {
	s := NewScorer(200)

	tests := []struct {
		name   string
		intent Intent
		answer string
		want   float64
	}{
		{"dosage with units", IntentDosage, "Give 80 units/kg IV bolus, then 18 units/kg/hr.", 1},
		{"dosage without quantity", IntentDosage, "Give the usual bolus.", 0},
		{"criteria with threshold", IntentCriteria, "Lactate above 2 mmol/L qualifies.", 1},
		{"contact with extension", IntentContact, "Call the pharmacy at extension 4411.", 1},
		{"contact with email", IntentContact, "Email pharmacy@hospital.org.", 1},
		{"contact without details", IntentContact, "Ask the pharmacy.", 0},
		{"summary nonempty", IntentSummary, "Some answer.", 1},
		{"summary empty", IntentSummary, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.structuralScore(tt.intent, tt.answer))
		})
	}
}

func TestCitationScoreComponent(t *testing.T) {
	s := NewScorer(200)

	named := candidate("a", "x")
	unnamed := candidate("b", "y")
	unnamed.Chunk.DocumentName = ""

	assert.Equal(t, 1.0, s.citationScore([]RetrievalCandidate{named}))
	assert.Equal(t, 0.5, s.citationScore([]RetrievalCandidate{named, unnamed}))
	assert.Equal(t, 0.0, s.citationScore(nil))
}

func TestLengthScoreCapsAtOne(t *testing.T) {
	s := NewScorer(100)

	assert.Equal(t, 0.5, s.lengthScore(strings.Repeat("a", 50)))
	assert.Equal(t, 1.0, s.lengthScore(strings.Repeat("a", 500)))
}
