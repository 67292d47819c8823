package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/caretext/answerd/internal/chunkstore"
)

var retrieverTracer = otel.Tracer("answerd.pipeline.retriever")

// Searcher is the chunk store surface the retriever needs.
type Searcher interface {
	ExactSearch(ctx context.Context, terms []string) ([]chunkstore.Chunk, error)
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]chunkstore.ScoredChunk, error)
	FallbackSearch(ctx context.Context, terms []string) ([]chunkstore.Chunk, error)
}

// QueryEmbedder embeds a query for the semantic stage.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever runs the staged retrieval strategy: exact phrase, then
// semantic vector, then a fallback keyword stage only when the first two
// stages yield too few candidates.
type Retriever struct {
	store    Searcher
	embedder QueryEmbedder
	k        int
	minCands int
	logger   *zap.Logger
}

// NewRetriever builds a retriever. k caps the merged result count;
// minCandidates is the sufficiency bar that decides whether the fallback
// stage runs.
func NewRetriever(store Searcher, embedder QueryEmbedder, k, minCandidates int, logger *zap.Logger) (*Retriever, error) {
	if store == nil {
		return nil, errors.New("store required")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}
	if minCandidates < 1 {
		minCandidates = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, embedder: embedder, k: k, minCands: minCandidates, logger: logger}, nil
}

// Retrieve returns up to k deduplicated candidates with stable ordering.
// A semantic-stage dimension mismatch or embedding failure skips that
// stage with a warning; store failures are fatal.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]RetrievalCandidate, []string, error) {
	ctx, span := retrieverTracer.Start(ctx, "retriever.Retrieve")
	defer span.End()

	terms := salientTerms(query)
	span.SetAttributes(attribute.Int("term_count", len(terms)))

	var warnings []string
	var candidates []RetrievalCandidate

	// Stage 1: exact phrase
	exact, err := r.store.ExactSearch(ctx, terms)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("%w: exact stage: %v", ErrRetrievalFailed, err)
	}
	for _, c := range exact {
		candidates = append(candidates, RetrievalCandidate{Chunk: c, Stage: StageExact, RawScore: 1})
	}

	// Stage 2: semantic vector
	semantic, warning, err := r.semanticStage(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if warning != "" {
		warnings = append(warnings, warning)
	}
	candidates = append(candidates, semantic...)

	candidates = dedupe(candidates)

	// Stage 3: fallback, only below the sufficiency bar
	if len(candidates) < r.minCands {
		fallback, err := r.store.FallbackSearch(ctx, terms)
		if err != nil {
			span.RecordError(err)
			return nil, nil, fmt.Errorf("%w: fallback stage: %v", ErrRetrievalFailed, err)
		}
		for _, c := range fallback {
			candidates = append(candidates, RetrievalCandidate{Chunk: c, Stage: StageFallback, RawScore: 0.5})
		}
		candidates = dedupe(candidates)
	}

	if len(candidates) > r.k {
		candidates = candidates[:r.k]
	}

	span.SetAttributes(attribute.Int("candidate_count", len(candidates)))
	return candidates, warnings, nil
}

// semanticStage embeds the query and runs vector search. Dimension
// mismatches and embedding failures skip the stage rather than failing
// the request.
func (r *Retriever) semanticStage(ctx context.Context, query string) ([]RetrievalCandidate, string, error) {
	if r.embedder == nil {
		return nil, "semantic search unavailable: no embedder configured", nil
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, skipping semantic stage", zap.Error(err))
		return nil, "semantic search skipped: query embedding failed", nil
	}

	scored, err := r.store.VectorSearch(ctx, embedding, r.k)
	if err != nil {
		if errors.Is(err, chunkstore.ErrDimensionMismatch) {
			r.logger.Warn("embedding dimension mismatch, skipping semantic stage", zap.Error(err))
			return nil, "semantic search skipped: embedding dimension mismatch", nil
		}
		return nil, "", fmt.Errorf("%w: semantic stage: %v", ErrRetrievalFailed, err)
	}

	out := make([]RetrievalCandidate, len(scored))
	for i, s := range scored {
		out[i] = RetrievalCandidate{Chunk: s.Chunk, Stage: StageSemantic, RawScore: s.Score}
	}
	return out, "", nil
}

// dedupe removes duplicate chunk ids, preferring the earlier stage, and
// imposes the stable order: stage rank, then raw score descending, then
// chunk id ascending.
func dedupe(candidates []RetrievalCandidate) []RetrievalCandidate {
	best := make(map[string]RetrievalCandidate)
	for _, c := range candidates {
		prev, ok := best[c.Chunk.ID]
		if !ok || stageRank(c.Stage) < stageRank(prev.Stage) {
			best[c.Chunk.ID] = c
		}
	}

	out := make([]RetrievalCandidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := stageRank(out[i].Stage), stageRank(out[j].Stage)
		if ri != rj {
			return ri < rj
		}
		if out[i].RawScore != out[j].RawScore {
			return out[i].RawScore > out[j].RawScore
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	return out
}
