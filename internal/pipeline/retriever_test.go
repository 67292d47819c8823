package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caretext/answerd/internal/chunkstore"
)

// fakeSearcher serves canned results per stage.
type fakeSearcher struct {
	exact          []chunkstore.Chunk
	vector         []chunkstore.ScoredChunk
	fallback       []chunkstore.Chunk
	exactErr       error
	vectorErr      error
	fallbackCalled bool
}

func (f *fakeSearcher) ExactSearch(_ context.Context, _ []string) ([]chunkstore.Chunk, error) {
	return f.exact, f.exactErr
}

func (f *fakeSearcher) VectorSearch(_ context.Context, _ []float32, _ int) ([]chunkstore.ScoredChunk, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vector, nil
}

func (f *fakeSearcher) FallbackSearch(_ context.Context, _ []string) ([]chunkstore.Chunk, error) {
	f.fallbackCalled = true
	return f.fallback, nil
}

type fakeQueryEmbedder struct {
	err error
}

func (f *fakeQueryEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func chunkN(id string) chunkstore.Chunk {
	return chunkstore.Chunk{ID: id, DocumentID: "doc", Content: "content " + id}
}

func TestRetrieveMergesStagesWithDedup(t *testing.T) {
	store := &fakeSearcher{
		exact: []chunkstore.Chunk{chunkN("b"), chunkN("a")},
		vector: []chunkstore.ScoredChunk{
			{Chunk: chunkN("a"), Score: 0.9}, // duplicate of an exact hit
			{Chunk: chunkN("c"), Score: 0.8},
		},
	}
	r, err := NewRetriever(store, &fakeQueryEmbedder{}, 5, 3, zap.NewNop())
	require.NoError(t, err)

	cands, warnings, err := r.Retrieve(context.Background(), "some query terms")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, cands, 3)

	// exact hits first (id ascending), then semantic
	assert.Equal(t, "a", cands[0].Chunk.ID)
	assert.Equal(t, StageExact, cands[0].Stage)
	assert.Equal(t, "b", cands[1].Chunk.ID)
	assert.Equal(t, "c", cands[2].Chunk.ID)
	assert.Equal(t, StageSemantic, cands[2].Stage)
	assert.False(t, store.fallbackCalled, "sufficiency met, fallback must not run")
}

func TestRetrieveRunsFallbackWhenInsufficient(t *testing.T) {
	store := &fakeSearcher{
		exact:    []chunkstore.Chunk{chunkN("a")},
		fallback: []chunkstore.Chunk{chunkN("a"), chunkN("z")},
	}
	r, err := NewRetriever(store, &fakeQueryEmbedder{}, 5, 3, zap.NewNop())
	require.NoError(t, err)

	cands, _, err := r.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.True(t, store.fallbackCalled)
	require.Len(t, cands, 2)
	assert.Equal(t, StageExact, cands[0].Stage, "exact wins the duplicate")
	assert.Equal(t, StageFallback, cands[1].Stage)
}

func TestRetrieveTruncatesToK(t *testing.T) {
	var exact []chunkstore.Chunk
	for i := 0; i < 10; i++ {
		exact = append(exact, chunkN(fmt.Sprintf("c%02d", i)))
	}
	r, err := NewRetriever(&fakeSearcher{exact: exact}, &fakeQueryEmbedder{}, 4, 3, zap.NewNop())
	require.NoError(t, err)

	cands, _, err := r.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, cands, 4)
}

func TestRetrieveDeterministicOrdering(t *testing.T) {
	store := &fakeSearcher{
		exact: []chunkstore.Chunk{chunkN("c"), chunkN("a"), chunkN("b")},
	}
	r, err := NewRetriever(store, nil, 5, 1, zap.NewNop())
	require.NoError(t, err)

	first, _, err := r.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := r.Retrieve(context.Background(), "query")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieveSkipsSemanticOnDimensionMismatch(t *testing.T) {
	store := &fakeSearcher{
		exact:     []chunkstore.Chunk{chunkN("a"), chunkN("b"), chunkN("c")},
		vectorErr: fmt.Errorf("%w: got 3, store expects 4", chunkstore.ErrDimensionMismatch),
	}
	r, err := NewRetriever(store, &fakeQueryEmbedder{}, 5, 3, zap.NewNop())
	require.NoError(t, err)

	cands, warnings, err := r.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, cands, 3, "exact results still served")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "dimension mismatch")
}

func TestRetrieveSkipsSemanticOnEmbeddingFailure(t *testing.T) {
	store := &fakeSearcher{exact: []chunkstore.Chunk{chunkN("a"), chunkN("b"), chunkN("c")}}
	r, err := NewRetriever(store, &fakeQueryEmbedder{err: errors.New("tei down")}, 5, 3, zap.NewNop())
	require.NoError(t, err)

	cands, warnings, err := r.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, cands, 3)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "embedding failed")
}

func TestRetrieveStoreFailureIsFatal(t *testing.T) {
	store := &fakeSearcher{exactErr: errors.New("store down")}
	r, err := NewRetriever(store, nil, 5, 3, zap.NewNop())
	require.NoError(t, err)

	_, _, err = r.Retrieve(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
}
