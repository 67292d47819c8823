// Package config provides configuration loading for answerd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. This package covers the server, logging, store, external
// service, and pipeline settings.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete answerd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Generation GenerationConfig `koanf:"generation"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StoreConfig holds chunk store configuration.
type StoreConfig struct {
	// SQLitePath is the path of the SQLite database holding chunk text
	// and position metadata.
	SQLitePath string `koanf:"sqlite_path"`

	// VectorProvider selects the vector index backend: "chromem" or "qdrant".
	VectorProvider string `koanf:"vector_provider"`

	// VectorSize is the embedding dimension the store accepts. Queries with
	// a different dimension fail fast.
	VectorSize int `koanf:"vector_size"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded chromem-go vector index configuration.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig holds Qdrant gRPC vector index configuration.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
}

// EmbeddingsConfig holds the external embedding service configuration.
type EmbeddingsConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	Dimension int           `koanf:"dimension"`
	Timeout   time.Duration `koanf:"timeout"`
}

// GenerationConfig holds the external answer generation service configuration.
type GenerationConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// PipelineConfig holds query pipeline tuning parameters.
//
// The stated defaults are starting points, not guaranteed-optimal constants.
// All of them are exposed here so deployments can tune without code changes.
type PipelineConfig struct {
	// CuratedPath is the YAML file holding curated responses. Empty disables
	// curated matching.
	CuratedPath string `koanf:"curated_path"`

	// CuratedThreshold is the minimum similarity for a curated hit.
	CuratedThreshold float64 `koanf:"curated_threshold"`

	// RetrievalK is the maximum number of candidates returned by retrieval.
	RetrievalK int `koanf:"retrieval_k"`

	// MinCandidates is the sufficiency threshold: the fallback stage only
	// runs when exact + semantic yield fewer candidates than this.
	MinCandidates int `koanf:"min_candidates"`

	// MinPositiveKeywords is the quality gate's per-candidate minimum of
	// distinct topical keyword hits.
	MinPositiveKeywords int `koanf:"min_positive_keywords"`

	// Highlighting parameters.
	NGramMaxTokens  int `koanf:"ngram_max_tokens"`
	NGramMinTokens  int `koanf:"ngram_min_tokens"`
	NGramMinChars   int `koanf:"ngram_min_chars"`
	MergeTolerance  int `koanf:"merge_tolerance"`
	SnippetContext  int `koanf:"snippet_context"`
	TargetAnswerLen int `koanf:"target_answer_len"`

	// LowConfidenceWarning is the display threshold below which a warning is
	// attached to the response.
	LowConfidenceWarning float64 `koanf:"low_confidence_warning"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8480
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "~/.config/answerd/chunks.db"
	}
	if cfg.Store.VectorProvider == "" {
		cfg.Store.VectorProvider = "chromem"
	}
	if cfg.Store.VectorSize == 0 {
		cfg.Store.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.Store.Chromem.Path == "" {
		cfg.Store.Chromem.Path = "~/.config/answerd/vectorstore"
	}
	if cfg.Store.Chromem.Collection == "" {
		cfg.Store.Chromem.Collection = "answerd_chunks"
	}
	if cfg.Store.Qdrant.Host == "" {
		cfg.Store.Qdrant.Host = "localhost"
	}
	if cfg.Store.Qdrant.Port == 0 {
		cfg.Store.Qdrant.Port = 6334
	}
	if cfg.Store.Qdrant.Collection == "" {
		cfg.Store.Qdrant.Collection = "answerd_chunks"
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 10 * time.Second
	}

	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "http://localhost:8090"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 30 * time.Second
	}

	if cfg.Pipeline.CuratedThreshold == 0 {
		cfg.Pipeline.CuratedThreshold = 0.7
	}
	if cfg.Pipeline.RetrievalK == 0 {
		cfg.Pipeline.RetrievalK = 5
	}
	if cfg.Pipeline.MinCandidates == 0 {
		cfg.Pipeline.MinCandidates = 3
	}
	if cfg.Pipeline.MinPositiveKeywords == 0 {
		cfg.Pipeline.MinPositiveKeywords = 2
	}
	if cfg.Pipeline.NGramMaxTokens == 0 {
		cfg.Pipeline.NGramMaxTokens = 10
	}
	if cfg.Pipeline.NGramMinTokens == 0 {
		cfg.Pipeline.NGramMinTokens = 4
	}
	if cfg.Pipeline.NGramMinChars == 0 {
		cfg.Pipeline.NGramMinChars = 20
	}
	if cfg.Pipeline.MergeTolerance == 0 {
		cfg.Pipeline.MergeTolerance = 10
	}
	if cfg.Pipeline.SnippetContext == 0 {
		cfg.Pipeline.SnippetContext = 50
	}
	if cfg.Pipeline.TargetAnswerLen == 0 {
		cfg.Pipeline.TargetAnswerLen = 200
	}
	if cfg.Pipeline.LowConfidenceWarning == 0 {
		cfg.Pipeline.LowConfidenceWarning = 0.4
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Store.VectorProvider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector provider %q (expected chromem or qdrant)", c.Store.VectorProvider)
	}
	if c.Store.VectorSize <= 0 {
		return fmt.Errorf("store vector size must be positive, got %d", c.Store.VectorSize)
	}
	if c.Embeddings.Dimension != c.Store.VectorSize {
		return fmt.Errorf("embedding dimension %d does not match store vector size %d",
			c.Embeddings.Dimension, c.Store.VectorSize)
	}
	if c.Pipeline.CuratedThreshold < 0 || c.Pipeline.CuratedThreshold > 1 {
		return fmt.Errorf("curated threshold must be in [0,1], got %v", c.Pipeline.CuratedThreshold)
	}
	if c.Pipeline.RetrievalK < 1 {
		return fmt.Errorf("retrieval k must be >= 1, got %d", c.Pipeline.RetrievalK)
	}
	if c.Pipeline.NGramMinTokens > c.Pipeline.NGramMaxTokens {
		return fmt.Errorf("ngram_min_tokens %d exceeds ngram_max_tokens %d",
			c.Pipeline.NGramMinTokens, c.Pipeline.NGramMaxTokens)
	}
	if c.Pipeline.MergeTolerance < 0 {
		return fmt.Errorf("merge tolerance must be >= 0, got %d", c.Pipeline.MergeTolerance)
	}
	return nil
}
