// Package chunkstore stores position-tagged document chunks and answers the
// retrieval queries the answer pipeline runs against them.
//
// Chunk text and position metadata live in a SQLite database; embeddings live
// in a vector index (embedded chromem-go by default, Qdrant over gRPC as an
// alternative). The two are kept in sync by AddChunks and joined by chunk id
// at query time.
package chunkstore

import (
	"context"
	"errors"
)

// Sentinel errors for chunk store operations.
var (
	// ErrNotFound is returned when a chunk does not exist.
	ErrNotFound = errors.New("chunk not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyChunks indicates empty or nil chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrDimensionMismatch is returned when a query embedding's dimension
	// does not match the store's configured vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnavailable indicates the underlying storage is unreachable.
	ErrUnavailable = errors.New("chunk store unavailable")

	// ErrConnectionFailed indicates vector index connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrEmbeddingFailed indicates embedding generation failure during add.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the chunk store query contract.
//
// The store is shared, read-mostly state: concurrent readers need no
// locking, and all search methods return results in a deterministic order
// (ranked, ties broken by chunk id ascending) so retrieval stays stable
// across identical queries.
type Store interface {
	// AddChunks stores chunks in both the text and vector indexes. Chunks
	// without an embedding are embedded via the store's embedder. Returns
	// the ids of stored chunks.
	AddChunks(ctx context.Context, chunks []Chunk) ([]string, error)

	// ExactSearch returns chunks whose content contains at least one of the
	// given terms as a literal, case-insensitive substring. Ranked by the
	// number of distinct matching terms, then by chunk id.
	ExactSearch(ctx context.Context, terms []string) ([]Chunk, error)

	// VectorSearch returns up to k chunks ranked by similarity to the given
	// query embedding, highest first. Fails fast with ErrDimensionMismatch
	// when the embedding's dimension differs from the store's vector size.
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error)

	// FallbackSearch is a looser keyword search: terms are split into words
	// and a chunk matches when it contains any word. Ranked like ExactSearch.
	FallbackSearch(ctx context.Context, terms []string) ([]Chunk, error)

	// GetByID returns the chunk with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Chunk, error)

	// Close releases store resources.
	Close() error
}

// VectorIndex is the embedding-similarity half of the store.
type VectorIndex interface {
	// Add indexes chunks that already carry embeddings.
	Add(ctx context.Context, chunks []Chunk) error

	// Query returns up to k hits ranked by similarity descending.
	Query(ctx context.Context, embedding []float32, k int) ([]VectorHit, error)

	// Close releases index resources.
	Close() error
}
