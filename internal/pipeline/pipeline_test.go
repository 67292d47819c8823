package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caretext/answerd/internal/chunkstore"
	"github.com/caretext/answerd/internal/curated"
)

// fakeGenerator fails a configurable number of times before answering.
type fakeGenerator struct {
	answer   string
	failures int
	calls    int
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.calls <= f.failures {
		return "", errors.New("generation backend timeout")
	}
	return f.answer, nil
}

// trackingSearcher flags whether any retrieval ran.
type trackingSearcher struct {
	fakeSearcher
	called bool
}

func (ts *trackingSearcher) ExactSearch(ctx context.Context, terms []string) ([]chunkstore.Chunk, error) {
	ts.called = true
	return ts.fakeSearcher.ExactSearch(ctx, terms)
}

func stemiChunk() chunkstore.Chunk {
	page := 3
	return chunkstore.Chunk{
		ID:           "chunk-a",
		DocumentID:   "doc-1",
		DocumentName: "Cardiac Protocols.pdf",
		PageNumber:   &page,
		Content:      "The STEMI protocol requires door-to-balloon time under 90 minutes.",
	}
}

func curatedTable(t *testing.T) *curated.Provider {
	t.Helper()
	table, err := curated.NewTable([]curated.Response{{
		Patterns:     []string{"what is the stemi protocol"},
		ResponseText: "Activate the cath lab immediately. Door-to-balloon target is under 90 minutes.",
		Intent:       "PROTOCOL",
		Confidence:   0.98,
		Sources:      []string{"Cardiac Protocols.pdf"},
	}})
	require.NoError(t, err)
	return curated.NewStaticProvider(table)
}

func newPipeline(t *testing.T, store Searcher, gen Generator, matcher CuratedMatcher, opts ...GateOption) *Pipeline {
	t.Helper()
	p, err := New(store, &fakeQueryEmbedder{}, matcher, gen, Config{}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return p
}

func TestAnswerEndToEnd(t *testing.T) {
	store := &fakeSearcher{exact: []chunkstore.Chunk{stemiChunk()}, fallback: []chunkstore.Chunk{stemiChunk()}}
	gen := &fakeGenerator{answer: "door-to-balloon time under 90 minutes"}
	p := newPipeline(t, store, gen, nil)

	resp, err := p.Answer(context.Background(), "what is the stemi door-to-balloon protocol")
	require.NoError(t, err)

	assert.Equal(t, IntentProtocol, resp.Intent)
	assert.Equal(t, "door-to-balloon time under 90 minutes", resp.AnswerText)
	assert.Equal(t, []string{"Cardiac Protocols.pdf"}, resp.Sources)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 1.0)

	require.Len(t, resp.HighlightedSources, 1)
	src := resp.HighlightedSources[0]
	require.NotNil(t, src.PageNumber)
	assert.Equal(t, 3, *src.PageNumber)
	assert.Contains(t, src.TextSnippet, "door-to-balloon")
	assert.NotEmpty(t, src.HighlightSpans)
}

func TestAnswerCuratedShortCircuit(t *testing.T) {
	store := &trackingSearcher{}
	gen := &fakeGenerator{answer: "never used"}
	p := newPipeline(t, store, gen, curatedTable(t))

	resp, err := p.Answer(context.Background(), "What is the STEMI protocol?")
	require.NoError(t, err)

	assert.False(t, store.called, "curated hit must skip retrieval")
	assert.Zero(t, gen.calls, "curated hit must skip generation")
	assert.Equal(t, "Activate the cath lab immediately. Door-to-balloon target is under 90 minutes.", resp.AnswerText)
	assert.Equal(t, 0.98, resp.Confidence)
	assert.Equal(t, IntentProtocol, resp.Intent)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "curated")
}

func TestAnswerCuratedMissFallsThrough(t *testing.T) {
	store := &trackingSearcher{fakeSearcher: fakeSearcher{exact: []chunkstore.Chunk{stemiChunk()}}}
	gen := &fakeGenerator{answer: "door-to-balloon time under 90 minutes"}
	p := newPipeline(t, store, gen, curatedTable(t))

	_, err := p.Answer(context.Background(), "stemi protocol door-to-balloon timing requirements")
	require.NoError(t, err)
	assert.True(t, store.called)
}

func TestAnswerQualityGateRefusal(t *testing.T) {
	chfChunk := chunkstore.Chunk{
		ID:           "chf-1",
		DocumentID:   "doc-9",
		DocumentName: "CHF Pathway.pdf",
		Content:      "The CHF pathway requires daily weights and diuretic titration.",
	}
	store := &fakeSearcher{
		exact:    []chunkstore.Chunk{chfChunk},
		fallback: []chunkstore.Chunk{chfChunk},
	}
	gen := &fakeGenerator{answer: "never used"}
	p := newPipeline(t, store, gen, nil, WithNegativeIndicators(IntentCriteria, []string{"chf pathway"}))

	resp, err := p.Answer(context.Background(), "sepsis criteria")
	require.NoError(t, err)

	assert.Zero(t, gen.calls, "rejected batch must never reach generation")
	assert.LessOrEqual(t, resp.Confidence, 0.1)
	assert.NotContains(t, resp.AnswerText, "CHF")
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[len(resp.Warnings)-1], "relevance")
	assert.Empty(t, resp.Sources)
}

func TestAnswerGenerationRetryWithHalvedContext(t *testing.T) {
	store := &fakeSearcher{exact: []chunkstore.Chunk{stemiChunk(), {
		ID: "chunk-b", DocumentID: "doc-1", DocumentName: "Cardiac Protocols.pdf",
		Content: "STEMI protocol activation goes through the operator.",
	}}}
	gen := &fakeGenerator{answer: "door-to-balloon time under 90 minutes", failures: 1}
	p := newPipeline(t, store, gen, nil)

	resp, err := p.Answer(context.Background(), "stemi protocol door-to-balloon")
	require.NoError(t, err)

	assert.Equal(t, 2, gen.calls)
	assert.Less(t, len(gen.prompts[1]), len(gen.prompts[0]), "retry prompt carries halved context")
	assert.Equal(t, "door-to-balloon time under 90 minutes", resp.AnswerText)
}

func TestAnswerGenerationFallbackToChunkText(t *testing.T) {
	store := &fakeSearcher{exact: []chunkstore.Chunk{stemiChunk()}, fallback: []chunkstore.Chunk{stemiChunk()}}
	gen := &fakeGenerator{failures: 2}
	p := newPipeline(t, store, gen, nil)

	resp, err := p.Answer(context.Background(), "stemi protocol door-to-balloon")
	require.NoError(t, err)

	assert.Equal(t, 2, gen.calls, "exactly one retry")
	assert.Equal(t, stemiChunk().Content, resp.AnswerText)

	found := false
	for _, w := range resp.Warnings {
		if containsTerm(w, "generation unavailable") {
			found = true
		}
	}
	assert.True(t, found, "warnings must mention generation unavailable, got %v", resp.Warnings)
}

func TestAnswerEmptyQuery(t *testing.T) {
	p := newPipeline(t, &fakeSearcher{}, &fakeGenerator{}, nil)

	_, err := p.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAnswerStoreFailureIsFatal(t *testing.T) {
	p := newPipeline(t, &fakeSearcher{exactErr: errors.New("store down")}, &fakeGenerator{}, nil)

	_, err := p.Answer(context.Background(), "stemi protocol")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
}

func TestAnswerLowConfidenceWarning(t *testing.T) {
	vague := chunkstore.Chunk{
		ID: "v-1", DocumentID: "doc-2", DocumentName: "Pharmacy Manual.pdf",
		Content: "Heparin dosing guidance is in the pharmacy manual.",
	}
	store := &fakeSearcher{exact: []chunkstore.Chunk{vague}, fallback: []chunkstore.Chunk{vague}}
	// short answer with no query terms and no dose quantity keeps every
	// sub-score low
	gen := &fakeGenerator{answer: "See the pharmacy manual."}
	p := newPipeline(t, store, gen, nil)

	resp, err := p.Answer(context.Background(), "heparin dosing for dvt")
	require.NoError(t, err)

	found := false
	for _, w := range resp.Warnings {
		if containsTerm(w, "confidence") {
			found = true
		}
	}
	assert.True(t, found, "expected a low-confidence warning, got %v", resp.Warnings)
}

func TestBuildPromptDeterministic(t *testing.T) {
	accepted := []RetrievalCandidate{{Chunk: stemiChunk(), Stage: StageExact}}

	first := BuildPrompt("stemi timing", IntentProtocol, accepted)
	assert.Equal(t, first, BuildPrompt("stemi timing", IntentProtocol, accepted))
	assert.Contains(t, first, "stemi timing")
	assert.Contains(t, first, stemiChunk().Content)
	assert.Contains(t, first, intentInstructions[IntentProtocol])
}

func TestAssembleDedupesSources(t *testing.T) {
	a := NewAssembler()

	resp := a.Assemble(IntentSummary, "answer", 0.5,
		[]string{"A.pdf", "", "B.pdf", "A.pdf"}, nil, nil)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, resp.Sources)
	assert.NotNil(t, resp.Warnings)
}
