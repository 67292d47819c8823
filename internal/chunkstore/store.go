package chunkstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var storeTracer = otel.Tracer("answerd.chunkstore")

// store combines the SQLite text index and a vector index behind the Store
// contract. Search results are joined by chunk id.
type store struct {
	text       *textIndex
	vector     VectorIndex
	embedder   Embedder
	vectorSize int
	logger     *zap.Logger
}

// newStore creates a composite Store from an opened text index and vector
// index. The embedder is only used by AddChunks for chunks without
// embeddings; it may be nil when all chunks are pre-embedded.
func newStore(text *textIndex, vector VectorIndex, embedder Embedder, vectorSize int, logger *zap.Logger) (Store, error) {
	if text == nil {
		return nil, fmt.Errorf("%w: text index required", ErrInvalidConfig)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index required", ErrInvalidConfig)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &store{
		text:       text,
		vector:     vector,
		embedder:   embedder,
		vectorSize: vectorSize,
		logger:     logger,
	}, nil
}

// AddChunks stores chunks in both indexes. Chunks without an id get a UUID;
// chunks without an embedding are embedded via the store's embedder.
func (s *store) AddChunks(ctx context.Context, chunks []Chunk) ([]string, error) {
	ctx, span := storeTracer.Start(ctx, "store.AddChunks")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil, ErrEmptyChunks
	}

	// Embed in one batch what is missing an embedding
	var pendingIdx []int
	var pendingTexts []string
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.New().String()
		}
		if chunks[i].Embedding == nil {
			pendingIdx = append(pendingIdx, i)
			pendingTexts = append(pendingTexts, chunks[i].Content)
		}
	}
	if len(pendingIdx) > 0 {
		if s.embedder == nil {
			return nil, fmt.Errorf("%w: no embedder configured and %d chunks lack embeddings",
				ErrEmbeddingFailed, len(pendingIdx))
		}
		embeddings, err := s.embedder.EmbedDocuments(ctx, pendingTexts)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(embeddings) != len(pendingIdx) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
				ErrEmbeddingFailed, len(embeddings), len(pendingIdx))
		}
		for n, i := range pendingIdx {
			chunks[i].Embedding = embeddings[n]
		}
	}

	for i := range chunks {
		if len(chunks[i].Embedding) != s.vectorSize {
			return nil, fmt.Errorf("%w: chunk %s has dimension %d, store expects %d",
				ErrDimensionMismatch, chunks[i].ID, len(chunks[i].Embedding), s.vectorSize)
		}
	}

	if err := s.text.add(ctx, chunks); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.vector.Add(ctx, chunks); err != nil {
		span.RecordError(err)
		return nil, err
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	s.logger.Info("chunks stored", zap.Int("count", len(ids)))
	return ids, nil
}

// ExactSearch returns chunks containing at least one term as a literal
// case-insensitive substring.
func (s *store) ExactSearch(ctx context.Context, terms []string) ([]Chunk, error) {
	ctx, span := storeTracer.Start(ctx, "store.ExactSearch")
	defer span.End()
	span.SetAttributes(attribute.Int("term_count", len(terms)))

	return s.text.searchTerms(ctx, terms)
}

// FallbackSearch splits terms into words and matches any word.
func (s *store) FallbackSearch(ctx context.Context, terms []string) ([]Chunk, error) {
	ctx, span := storeTracer.Start(ctx, "store.FallbackSearch")
	defer span.End()

	words := splitWords(terms)
	span.SetAttributes(attribute.Int("word_count", len(words)))

	return s.text.searchTerms(ctx, words)
}

// VectorSearch returns up to k chunks ranked by similarity descending.
// Fails fast with ErrDimensionMismatch on a wrong-sized embedding.
func (s *store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	ctx, span := storeTracer.Start(ctx, "store.VectorSearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if len(embedding) != s.vectorSize {
		return nil, fmt.Errorf("%w: got %d, store expects %d",
			ErrDimensionMismatch, len(embedding), s.vectorSize)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	hits, err := s.vector.Query(ctx, embedding, k)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	byID, err := s.text.getByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		chunk, ok := byID[h.ID]
		if !ok {
			// Vector index out of sync with the text index; skip the orphan
			s.logger.Warn("vector hit with no chunk row", zap.String("chunk_id", h.ID))
			continue
		}
		results = append(results, ScoredChunk{Chunk: chunk, Score: h.Score})
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

// GetByID returns the chunk with the given id.
func (s *store) GetByID(ctx context.Context, id string) (*Chunk, error) {
	return s.text.getByID(ctx, id)
}

// Close releases both indexes.
func (s *store) Close() error {
	verr := s.vector.Close()
	terr := s.text.Close()
	if verr != nil {
		return verr
	}
	return terr
}

// splitWords splits terms into distinct lowercase words of 3+ characters,
// preserving first-seen order for deterministic queries.
func splitWords(terms []string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, term := range terms {
		for _, w := range tokenizeWords(term) {
			if len(w) < 3 || seen[w] {
				continue
			}
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}

// tokenizeWords lowercases and splits on non-alphanumeric runes.
func tokenizeWords(text string) []string {
	var words []string
	var current []rune
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			current = append(current, r)
		case r >= 'A' && r <= 'Z':
			current = append(current, r+('a'-'A'))
		default:
			if len(current) > 0 {
				words = append(words, string(current))
				current = nil
			}
		}
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return words
}
