package pipeline

// negativeIndicators name terms that mark content as belonging to a
// different clinical surface than the intent asks about. A single hit
// disqualifies the candidate outright.
var defaultNegativeIndicators = map[Intent][]string{
	IntentContact:  {"deprecated", "superseded"},
	IntentForm:     {"deprecated", "superseded"},
	IntentProtocol: {"draft only", "not for clinical use", "superseded"},
	IntentCriteria: {"draft only", "not for clinical use", "superseded"},
	IntentDosage:   {"draft only", "not for clinical use", "superseded", "veterinary"},
	IntentSummary:  nil,
}

// Gate filters retrieval candidates for topical relevance before any
// text reaches generation. A candidate passes only with at least
// minPositives distinct positive-keyword hits and zero negative
// indicators; an empty surviving set rejects the whole batch.
type Gate struct {
	minPositives int
	negatives    map[Intent][]string
}

// GateOption adjusts gate policy.
type GateOption func(*Gate)

// WithNegativeIndicators replaces the indicator set for an intent.
func WithNegativeIndicators(intent Intent, indicators []string) GateOption {
	return func(g *Gate) {
		g.negatives[intent] = indicators
	}
}

// NewGate creates a gate requiring minPositives distinct positive
// keywords per candidate.
func NewGate(minPositives int, opts ...GateOption) *Gate {
	if minPositives < 1 {
		minPositives = 2
	}
	g := &Gate{
		minPositives: minPositives,
		negatives:    make(map[Intent][]string),
	}
	for intent, terms := range defaultNegativeIndicators {
		g.negatives[intent] = terms
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// positiveKeywords are the query's salient terms plus the intent's
// topical vocabulary.
func (g *Gate) positiveKeywords(query string, intent Intent) []string {
	terms := salientTerms(query)
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		seen[t] = true
	}
	for _, kw := range intentKeywords[intent] {
		if !seen[kw] {
			seen[kw] = true
			terms = append(terms, kw)
		}
	}
	return terms
}

// Accept returns the candidates that pass the relevance policy and
// whether any did. ok=false means the batch is rejected and the caller
// must refuse rather than generate.
func (g *Gate) Accept(query string, intent Intent, candidates []RetrievalCandidate) ([]RetrievalCandidate, bool) {
	positives := g.positiveKeywords(query, intent)
	negatives := g.negatives[intent]

	var accepted []RetrievalCandidate
	for _, c := range candidates {
		if g.passes(c.Chunk.Content, positives, negatives) {
			accepted = append(accepted, c)
		}
	}
	return accepted, len(accepted) > 0
}

func (g *Gate) passes(content string, positives, negatives []string) bool {
	for _, neg := range negatives {
		if containsTerm(content, neg) {
			return false
		}
	}
	hits := 0
	for _, pos := range positives {
		if containsTerm(content, pos) {
			hits++
			if hits >= g.minPositives {
				return true
			}
		}
	}
	return false
}
