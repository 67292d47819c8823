package chunkstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Options selects and configures the store backends.
type Options struct {
	// SQLitePath is the SQLite database path for chunk text and metadata.
	// ":memory:" gives a transient store.
	SQLitePath string

	// VectorProvider selects the vector index backend: "chromem" (default)
	// or "qdrant".
	VectorProvider string

	// VectorSize is the embedding dimension the store accepts.
	VectorSize int

	Chromem ChromemOptions
	Qdrant  QdrantOptions
}

// NewStore builds a Store from options. The embedder may be nil when all
// ingested chunks carry precomputed embeddings.
func NewStore(opts Options, embedder Embedder, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.VectorProvider == "" {
		opts.VectorProvider = "chromem"
	}

	text, err := newTextIndex(opts.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("creating text index: %w", err)
	}

	var vector VectorIndex
	switch opts.VectorProvider {
	case "chromem":
		chromemOpts := opts.Chromem
		if chromemOpts.VectorSize == 0 {
			chromemOpts.VectorSize = opts.VectorSize
		}
		vector, err = newChromemIndex(chromemOpts, logger)
	case "qdrant":
		qdrantOpts := opts.Qdrant
		if qdrantOpts.VectorSize == 0 {
			qdrantOpts.VectorSize = opts.VectorSize
		}
		vector, err = newQdrantIndex(qdrantOpts)
	default:
		err = fmt.Errorf("%w: unknown vector provider %q", ErrInvalidConfig, opts.VectorProvider)
	}
	if err != nil {
		_ = text.Close()
		return nil, fmt.Errorf("creating vector index: %w", err)
	}

	logger.Info("chunk store initialized",
		zap.String("vector_provider", opts.VectorProvider),
		zap.Int("vector_size", opts.VectorSize),
	)

	return newStore(text, vector, embedder, opts.VectorSize, logger)
}
