package chunkstore

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("answerd.chunkstore.chromem")

// ChromemOptions holds configuration for the embedded chromem-go vector index.
type ChromemOptions struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Collection is the collection name.
	Collection string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension.
	VectorSize int
}

// chromemIndex implements VectorIndex using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: no external service, automatic persistence to disk, and fast
// similarity search for corpora of this size.
type chromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	vectorSize int
	logger     *zap.Logger
}

// newChromemIndex creates a chromem-backed vector index.
func newChromemIndex(opts ChromemOptions, logger *zap.Logger) (*chromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if opts.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}

	var (
		db  *chromem.DB
		err error
	)
	if opts.Path == "" {
		db = chromem.NewDB()
	} else {
		expanded, perr := expandPath(opts.Path)
		if perr != nil {
			return nil, fmt.Errorf("expanding path: %w", perr)
		}
		if err := os.MkdirAll(expanded, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
		}
		db, err = chromem.NewPersistentDB(expanded, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	// Embeddings are always supplied by the caller; the embedding func only
	// exists to satisfy the collection constructor.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chunkstore: chunks must carry precomputed embeddings")
	}

	collection, err := db.GetOrCreateCollection(opts.Collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", opts.Collection, err)
	}

	logger.Info("chromem vector index initialized",
		zap.String("path", opts.Path),
		zap.String("collection", opts.Collection),
		zap.Int("vector_size", opts.VectorSize),
	)

	return &chromemIndex{
		db:         db,
		collection: collection,
		vectorSize: opts.VectorSize,
		logger:     logger,
	}, nil
}

// Add indexes chunks that already carry embeddings.
func (c *chromemIndex) Add(ctx context.Context, chunks []Chunk) error {
	ctx, span := chromemTracer.Start(ctx, "chromemIndex.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) != c.vectorSize {
			return fmt.Errorf("%w: chunk %s has dimension %d, index expects %d",
				ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), c.vectorSize)
		}
		docs = append(docs, chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Content,
			Embedding: chunk.Embedding,
			Metadata: map[string]string{
				"document_id": chunk.DocumentID,
			},
		})
	}

	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		return fmt.Errorf("adding documents to chromem: %w", err)
	}
	return nil
}

// Query returns up to k hits ranked by similarity descending.
func (c *chromemIndex) Query(ctx context.Context, embedding []float32, k int) ([]VectorHit, error) {
	ctx, span := chromemTracer.Start(ctx, "chromemIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if len(embedding) != c.vectorSize {
		return nil, fmt.Errorf("%w: got %d, index expects %d",
			ErrDimensionMismatch, len(embedding), c.vectorSize)
	}

	// chromem rejects nResults greater than the collection size
	count := c.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := c.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	hits := make([]VectorHit, len(results))
	for i, r := range results {
		hits[i] = VectorHit{ID: r.ID, Score: r.Similarity}
	}
	return hits, nil
}

func (c *chromemIndex) Close() error {
	return nil
}
