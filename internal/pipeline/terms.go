package pipeline

import (
	"strings"
	"unicode"
)

// stopwords excluded from salient term extraction.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "is": true, "are": true, "was": true, "be": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"how": true, "why": true, "do": true, "does": true, "did": true,
	"can": true, "could": true, "should": true, "would": true, "i": true,
	"you": true, "we": true, "they": true, "it": true, "this": true,
	"that": true, "with": true, "about": true, "me": true, "my": true,
	"please": true, "tell": true, "show": true, "give": true,
}

// token is a word with its character offsets in the source string.
type token struct {
	text  string
	start int
	end   int
}

// tokenize lowercases and splits on non-alphanumeric runes, keeping
// hyphens inside words so terms like door-to-balloon stay whole.
// Offsets are byte positions in the original text; lowercasing happens
// rune by rune because strings.ToLower can change byte lengths and
// shift every offset after a case-changing multi-byte rune.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		r = unicode.ToLower(r)
		wordRune := r >= 'a' && r <= 'z' || r >= '0' && r <= '9' ||
			(r == '-' && start >= 0)
		if wordRune {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, newToken(text, start, i))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text, start, len(text)))
	}
	return tokens
}

func newToken(text string, start, end int) token {
	// trailing hyphens are punctuation, not part of the word
	for end > start && text[end-1] == '-' {
		end--
	}
	return token{text: strings.ToLower(text[start:end]), start: start, end: end}
}

// salientTerms returns the distinct non-stopword tokens of at least 3
// characters, in first-seen order.
func salientTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range tokenize(query) {
		if len(tok.text) < 3 || stopwords[tok.text] || seen[tok.text] {
			continue
		}
		seen[tok.text] = true
		terms = append(terms, tok.text)
	}
	return terms
}

// containsTerm reports whether term occurs in text, case-insensitive.
func containsTerm(text, term string) bool {
	return strings.Contains(strings.ToLower(text), term)
}
