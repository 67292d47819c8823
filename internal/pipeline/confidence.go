package pipeline

import "regexp"

// Sub-score weights for the composite confidence.
const (
	weightCoverage   = 0.4
	weightStructural = 0.3
	weightCitation   = 0.2
	weightLength     = 0.1
)

var (
	// quantityPattern matches a number with a clinical unit
	quantityPattern = regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(mg|mcg|g|kg|ml|l|units?|mmol/l|meq|%|minutes?|min|hours?|hrs?|days?)\b`)

	// phonePattern matches phone numbers and extensions
	phonePattern = regexp.MustCompile(`(?i)(\b\d{3}[-.\s]?\d{3,4}\b|\bext(ension)?\.?\s*\d+|\b\d{4,}\b)`)

	// emailPattern matches an email address
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// Scorer computes composite answer confidence from keyword coverage,
// structural completeness, citation quality, and length. Curated hits
// never pass through here; they keep their stored confidence.
type Scorer struct {
	targetLength int
}

// NewScorer creates a scorer. targetLength is the answer length treated
// as fully complete.
func NewScorer(targetLength int) *Scorer {
	if targetLength <= 0 {
		targetLength = 200
	}
	return &Scorer{targetLength: targetLength}
}

// Score returns a confidence in [0,1].
func (s *Scorer) Score(query string, intent Intent, accepted []RetrievalCandidate, answerText string) float64 {
	coverage := s.keywordCoverage(query, answerText)
	structural := s.structuralScore(intent, answerText)
	citation := s.citationScore(accepted)
	length := s.lengthScore(answerText)

	score := weightCoverage*coverage +
		weightStructural*structural +
		weightCitation*citation +
		weightLength*length
	return clamp01(score)
}

// keywordCoverage is the fraction of the query's salient terms present
// in the answer.
func (s *Scorer) keywordCoverage(query, answerText string) float64 {
	terms := salientTerms(query)
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, term := range terms {
		if containsTerm(answerText, term) {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(terms)))
}

// structuralScore checks for the factual shapes an intent requires:
// numeric quantities with units for dosage and criteria, reachable
// contact details for contact lookups.
func (s *Scorer) structuralScore(intent Intent, answerText string) float64 {
	switch intent {
	case IntentDosage, IntentCriteria:
		if quantityPattern.MatchString(answerText) {
			return 1
		}
		return 0
	case IntentContact:
		if phonePattern.MatchString(answerText) || emailPattern.MatchString(answerText) {
			return 1
		}
		return 0
	default:
		if answerText == "" {
			return 0
		}
		return 1
	}
}

// citationScore is the fraction of accepted candidates carrying a
// resolvable source name.
func (s *Scorer) citationScore(accepted []RetrievalCandidate) float64 {
	if len(accepted) == 0 {
		return 0
	}
	named := 0
	for _, c := range accepted {
		if c.Chunk.DocumentName != "" {
			named++
		}
	}
	return clamp01(float64(named) / float64(len(accepted)))
}

func (s *Scorer) lengthScore(answerText string) float64 {
	return clamp01(float64(len(answerText)) / float64(s.targetLength))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
