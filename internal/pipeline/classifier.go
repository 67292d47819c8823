package pipeline

// intentKeywords trigger classification toward an intent. Matching is
// against whole query tokens, so "formulary" does not trigger "form".
var intentKeywords = map[Intent][]string{
	IntentContact:  {"contact", "phone", "call", "email", "extension", "pager", "reach", "number"},
	IntentForm:     {"form", "forms", "template", "consent", "paperwork", "document", "checklist"},
	IntentProtocol: {"protocol", "procedure", "pathway", "guideline", "guidelines", "steps", "workflow", "activate", "activation"},
	IntentCriteria: {"criteria", "criterion", "threshold", "thresholds", "eligibility", "screening", "qualify", "qualifies", "indication", "indications"},
	IntentDosage:   {"dose", "doses", "dosage", "dosing", "titrate", "titration", "infusion", "mcg", "bolus"},
	IntentSummary:  {"summary", "summarize", "overview", "explain", "describe"},
}

// Classifier maps a raw query to an intent with a confidence score.
// Deterministic and side-effect free; never fails on malformed input.
type Classifier struct{}

// NewClassifier creates a keyword-rule classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify scores each intent by distinct keyword hits and returns the
// highest scorer, priority order breaking ties. Empty or unclassifiable
// input yields Summary with confidence 0.
func (c *Classifier) Classify(query string) QueryClassification {
	tokens := make(map[string]bool)
	for _, tok := range tokenize(query) {
		tokens[tok.text] = true
	}
	if len(tokens) == 0 {
		return QueryClassification{Intent: IntentSummary, Confidence: 0}
	}

	best := IntentSummary
	bestHits := 0
	for _, intent := range intentPriority {
		hits := 0
		for _, kw := range intentKeywords[intent] {
			if tokens[kw] {
				hits++
			}
		}
		// strict > keeps the higher-priority intent on ties
		if hits > bestHits {
			bestHits = hits
			best = intent
		}
	}

	if bestHits == 0 {
		return QueryClassification{Intent: IntentSummary, Confidence: 0}
	}

	confidence := float64(bestHits) / 2
	if confidence > 1 {
		confidence = 1
	}
	return QueryClassification{Intent: best, Confidence: confidence}
}
