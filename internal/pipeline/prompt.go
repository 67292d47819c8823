package pipeline

import "strings"

// intentInstructions are the formatting instructions appended per intent.
var intentInstructions = map[Intent]string{
	IntentContact:  "Answer with the exact contact details (name, number, extension, or email) found in the context.",
	IntentForm:     "Name the form or document and state where it is found, per the context.",
	IntentProtocol: "State the protocol steps in order, keeping all timing requirements from the context.",
	IntentCriteria: "List the qualifying criteria with their exact thresholds from the context.",
	IntentDosage:   "State the dose with its exact amount, unit, route, and frequency from the context. Never infer values.",
	IntentSummary:  "Summarize the relevant context in a few sentences.",
}

// BuildPrompt composes the deterministic generation prompt from the
// query, the accepted context chunks in order, and the intent's
// formatting instructions.
func BuildPrompt(query string, intent Intent, accepted []RetrievalCandidate) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so.\n")
	b.WriteString(intentInstructions[intent])
	b.WriteString("\n\nContext:\n")
	for i, c := range accepted {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(c.Chunk.Content)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}
