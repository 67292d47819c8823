// Package pipeline implements the query answering pipeline: intent
// classification, curated-response matching, staged retrieval, relevance
// gating, answer generation, confidence scoring, and source highlighting.
package pipeline

import (
	"errors"

	"github.com/caretext/answerd/internal/chunkstore"
)

var (
	// ErrEmptyQuery indicates a blank query
	ErrEmptyQuery = errors.New("empty query")

	// ErrRetrievalFailed indicates the chunk store was unreachable
	ErrRetrievalFailed = errors.New("retrieval failed")
)

// Intent is the classified purpose of a query. Listed highest priority
// first; Summary is the catch-all for unclassifiable input.
type Intent string

const (
	IntentContact  Intent = "CONTACT"
	IntentForm     Intent = "FORM"
	IntentProtocol Intent = "PROTOCOL"
	IntentCriteria Intent = "CRITERIA"
	IntentDosage   Intent = "DOSAGE"
	IntentSummary  Intent = "SUMMARY"
)

// intentPriority orders intents for deterministic tie-breaks.
var intentPriority = []Intent{
	IntentContact,
	IntentForm,
	IntentProtocol,
	IntentCriteria,
	IntentDosage,
	IntentSummary,
}

// ParseIntent maps a label to an Intent, defaulting to Summary.
func ParseIntent(s string) Intent {
	for _, it := range intentPriority {
		if string(it) == s {
			return it
		}
	}
	return IntentSummary
}

// QueryClassification is the classifier's per-request output.
type QueryClassification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// MatchStage identifies which retrieval stage produced a candidate.
type MatchStage string

const (
	StageExact    MatchStage = "exact"
	StageSemantic MatchStage = "semantic"
	StageFallback MatchStage = "fallback"
)

// stageRank orders stages for dedup preference, lower wins.
func stageRank(s MatchStage) int {
	switch s {
	case StageExact:
		return 0
	case StageSemantic:
		return 1
	default:
		return 2
	}
}

// RetrievalCandidate is a chunk surfaced by one retrieval stage.
type RetrievalCandidate struct {
	Chunk    chunkstore.Chunk
	Stage    MatchStage
	RawScore float32
}

// HighlightedSource maps answer text back onto one consulted chunk.
// HighlightSpans are chunk-text character ranges, non-overlapping and
// sorted ascending.
type HighlightedSource struct {
	DocumentID     string            `json:"document_id"`
	DocumentName   string            `json:"document_name"`
	PageNumber     *int              `json:"page_number,omitempty"`
	TextSnippet    string            `json:"text_snippet"`
	HighlightSpans []chunkstore.Span `json:"highlight_spans"`
	BBox           *chunkstore.BBox  `json:"bbox,omitempty"`
	Confidence     float64           `json:"confidence"`
}

// AnswerResponse is the terminal artifact returned to the caller.
type AnswerResponse struct {
	AnswerText         string              `json:"answer"`
	Sources            []string            `json:"sources"`
	Confidence         float64             `json:"confidence"`
	Intent             Intent              `json:"intent"`
	HighlightedSources []HighlightedSource `json:"highlighted_sources,omitempty"`
	Warnings           []string            `json:"warnings"`
}
