package pipeline

// Assembler composes the terminal AnswerResponse. Pure and
// deterministic: identical inputs produce identical responses.
type Assembler struct{}

// NewAssembler creates an assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble builds the response. Source names keep first-seen order with
// duplicates and blanks dropped; warnings pass through in the order the
// pipeline attached them.
func (a *Assembler) Assemble(
	intent Intent,
	answerText string,
	confidence float64,
	sourceNames []string,
	highlighted []HighlightedSource,
	warnings []string,
) *AnswerResponse {
	seen := make(map[string]bool, len(sourceNames))
	sources := make([]string, 0, len(sourceNames))
	for _, name := range sourceNames {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		sources = append(sources, name)
	}

	if warnings == nil {
		warnings = []string{}
	}

	return &AnswerResponse{
		AnswerText:         answerText,
		Sources:            sources,
		Confidence:         clamp01(confidence),
		Intent:             intent,
		HighlightedSources: highlighted,
		Warnings:           warnings,
	}
}
