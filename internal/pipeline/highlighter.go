package pipeline

import (
	"sort"
	"strings"

	"github.com/caretext/answerd/internal/chunkstore"
)

const ellipsis = "..."

// Highlighter aligns spans of generated answer text back onto the chunk
// text that supports them. Alignment slides n-grams of the answer over
// each chunk, longest first, and records the first literal
// case-insensitive occurrence per window.
type Highlighter struct {
	maxTokens int
	minTokens int
	minChars  int
	tolerance int
	context   int
	// matchedCharsFull is the matched-char count treated as full
	// per-chunk confidence
	matchedCharsFull int
}

// HighlighterParams tunes the alignment. Zero values take the defaults:
// n-grams of 10 down to 4 tokens, 20-char minimum, 10-char merge
// tolerance, 50-char snippet context.
type HighlighterParams struct {
	MaxTokens      int
	MinTokens      int
	MinChars       int
	MergeTolerance int
	SnippetContext int
}

// NewHighlighter creates a highlighter.
func NewHighlighter(params HighlighterParams) *Highlighter {
	h := &Highlighter{
		maxTokens:        params.MaxTokens,
		minTokens:        params.MinTokens,
		minChars:         params.MinChars,
		tolerance:        params.MergeTolerance,
		context:          params.SnippetContext,
		matchedCharsFull: 100,
	}
	if h.maxTokens <= 0 {
		h.maxTokens = 10
	}
	if h.minTokens <= 0 {
		h.minTokens = 4
	}
	if h.minChars <= 0 {
		h.minChars = 20
	}
	if params.MergeTolerance <= 0 {
		h.tolerance = 10
	}
	if h.context <= 0 {
		h.context = 50
	}
	return h
}

// Highlight produces one HighlightedSource per candidate, in candidate
// order. Chunks with no alignment are kept with confidence 0 and a
// leading snippet so callers always see what was consulted.
func (h *Highlighter) Highlight(candidates []RetrievalCandidate, answerText string) []HighlightedSource {
	tokens := tokenize(answerText)

	out := make([]HighlightedSource, 0, len(candidates))
	for _, c := range candidates {
		raw := h.findSpans(tokens, answerText, c.Chunk.Content)
		matchedChars := 0
		for _, s := range raw {
			matchedChars += s.End - s.Start
		}
		merged := mergeSpans(raw, h.tolerance)
		out = append(out, h.buildSource(c.Chunk, merged, matchedChars))
	}
	return out
}

// findSpans scans answer token windows against the chunk text. Per
// window the longest matching n-gram wins and the window advances past
// it; an unmatched window advances by one token.
func (h *Highlighter) findSpans(tokens []token, answerText, chunkText string) []chunkstore.Span {
	lowerChunk := strings.ToLower(chunkText)

	var spans []chunkstore.Span
	for i := 0; i < len(tokens); {
		matched := false
		maxN := h.maxTokens
		if rest := len(tokens) - i; rest < maxN {
			maxN = rest
		}
		for n := maxN; n >= h.minTokens; n-- {
			ngram := answerText[tokens[i].start:tokens[i+n-1].end]
			if len(ngram) < h.minChars {
				// shorter n-grams for this window cannot reach the bar
				break
			}
			pos := strings.Index(lowerChunk, strings.ToLower(ngram))
			if pos < 0 {
				continue
			}
			spans = append(spans, chunkstore.Span{Start: pos, End: pos + len(ngram)})
			i += n
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return spans
}

// mergeSpans sorts spans ascending and merges neighbors whose gap is at
// most tolerance characters. Merging an already-merged list is a no-op.
func mergeSpans(spans []chunkstore.Span, tolerance int) []chunkstore.Span {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]chunkstore.Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []chunkstore.Span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.Start-last.End <= tolerance {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// buildSource renders the snippet and confidence for one chunk.
// matchedChars counts the raw match lengths, not the merged span
// lengths, so tolerance gaps absorbed by merging do not inflate
// confidence.
func (h *Highlighter) buildSource(chunk chunkstore.Chunk, spans []chunkstore.Span, matchedChars int) HighlightedSource {
	src := HighlightedSource{
		DocumentID:     chunk.DocumentID,
		DocumentName:   chunk.DocumentName,
		PageNumber:     chunk.PageNumber,
		BBox:           chunk.BBox,
		HighlightSpans: spans,
	}

	if len(spans) == 0 {
		src.TextSnippet = leadingSnippet(chunk.Content, 2*h.context)
		src.Confidence = 0
		return src
	}

	start := spans[0].Start - h.context
	end := spans[len(spans)-1].End + h.context
	prefix, suffix := "", ""
	if start < 0 {
		start = 0
	} else if start > 0 {
		prefix = ellipsis
	}
	if end >= len(chunk.Content) {
		end = len(chunk.Content)
	} else {
		suffix = ellipsis
	}
	src.TextSnippet = prefix + chunk.Content[start:end] + suffix
	src.Confidence = clamp01(float64(matchedChars) / float64(h.matchedCharsFull))
	return src
}

func leadingSnippet(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	return content[:limit] + ellipsis
}
