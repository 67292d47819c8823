// Package curated holds the vetted response table consulted before
// retrieval. A match short-circuits the rest of the answer pipeline so
// known-critical queries always get a reviewed answer.
package curated

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidEntry indicates a malformed table entry
	ErrInvalidEntry = errors.New("invalid curated entry")
)

// Response is one vetted answer with the query patterns that select it.
type Response struct {
	// Patterns are the query phrasings this entry answers.
	Patterns []string `koanf:"patterns"`

	// ResponseText is the reviewed answer returned verbatim.
	ResponseText string `koanf:"response_text"`

	// Intent labels the entry, e.g. "PROTOCOL" or "CONTACT".
	Intent string `koanf:"intent"`

	// Confidence is the reviewed confidence carried into the answer.
	Confidence float64 `koanf:"confidence"`

	// Sources are document names cited by the answer.
	Sources []string `koanf:"sources"`
}

func (r Response) validate() error {
	if len(r.Patterns) == 0 {
		return fmt.Errorf("%w: at least one pattern required", ErrInvalidEntry)
	}
	if strings.TrimSpace(r.ResponseText) == "" {
		return fmt.Errorf("%w: response text required", ErrInvalidEntry)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0,1], got %v", ErrInvalidEntry, r.Confidence)
	}
	return nil
}

// Table is an immutable ordered set of curated responses. Registration
// order matters: exact score ties resolve to the earlier entry.
type Table struct {
	entries []Response
	// tokenized patterns, parallel to entries
	patterns [][]map[string]bool
}

// NewTable builds a table from entries, validating each.
func NewTable(entries []Response) (*Table, error) {
	t := &Table{
		entries:  make([]Response, len(entries)),
		patterns: make([][]map[string]bool, len(entries)),
	}
	for i, e := range entries {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		t.entries[i] = e
		t.patterns[i] = make([]map[string]bool, len(e.Patterns))
		for j, p := range e.Patterns {
			t.patterns[i][j] = tokenSet(p)
		}
	}
	return t, nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Match returns the highest-scoring entry whose best pattern similarity
// reaches threshold, or nil when none does. Scoring is token-set Jaccard
// over the lowercased, whitespace-normalized query.
func (t *Table) Match(query string, threshold float64) *Response {
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}

	bestIdx := -1
	bestScore := 0.0
	for i := range t.entries {
		for _, pattern := range t.patterns[i] {
			score := jaccard(queryTokens, pattern)
			// strict > keeps the first-registered entry on ties
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
	}

	if bestIdx < 0 || bestScore < threshold {
		return nil
	}
	matched := t.entries[bestIdx]
	return &matched
}

// tokenSet lowercases and splits on whitespace and punctuation.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
