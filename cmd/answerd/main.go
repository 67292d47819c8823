// Answerd is a document question-answering daemon.
//
// It answers natural-language questions against an ingested document
// corpus: queries are classified, checked against a curated response
// table, answered from retrieved passages gated for relevance, and
// returned with highlighted source spans.
//
// Configuration is loaded from ~/.config/answerd/config.yaml (or
// /etc/answerd) and overridden by environment variables such as
// SERVER_PORT and STORE_VECTOR_PROVIDER.
//
// Usage:
//
//	# Start the daemon with defaults
//	answerd
//
//	# Explicit config file
//	answerd -config /etc/answerd/config.yaml
//
//	# Show version information
//	answerd version
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/caretext/answerd/internal/chunkstore"
	"github.com/caretext/answerd/internal/config"
	"github.com/caretext/answerd/internal/curated"
	"github.com/caretext/answerd/internal/embeddings"
	"github.com/caretext/answerd/internal/generation"
	"github.com/caretext/answerd/internal/httpapi"
	"github.com/caretext/answerd/internal/logging"
	"github.com/caretext/answerd/internal/pipeline"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  answerd           Start the answerd daemon\n")
			fmt.Fprintf(os.Stderr, "  answerd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("answerd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires all services and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadWithFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zlog := logger.Underlying()

	zlog.Info("starting answerd",
		zap.String("version", version),
		zap.String("vector_provider", cfg.Store.VectorProvider))

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Embeddings.Dimension,
		Timeout:   cfg.Embeddings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	generator, err := generation.NewClient(generation.Config{
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating generation client: %w", err)
	}

	store, err := chunkstore.NewStore(chunkstore.Options{
		SQLitePath:     cfg.Store.SQLitePath,
		VectorProvider: cfg.Store.VectorProvider,
		VectorSize:     cfg.Store.VectorSize,
		Chromem: chunkstore.ChromemOptions{
			Path:       cfg.Store.Chromem.Path,
			Collection: cfg.Store.Chromem.Collection,
			Compress:   cfg.Store.Chromem.Compress,
		},
		Qdrant: chunkstore.QdrantOptions{
			Host:       cfg.Store.Qdrant.Host,
			Port:       cfg.Store.Qdrant.Port,
			Collection: cfg.Store.Qdrant.Collection,
			UseTLS:     cfg.Store.Qdrant.UseTLS,
		},
	}, embedder, zlog.Named("chunkstore"))
	if err != nil {
		return fmt.Errorf("creating chunk store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var matcher pipeline.CuratedMatcher
	if cfg.Pipeline.CuratedPath != "" {
		provider, err := curated.NewProvider(cfg.Pipeline.CuratedPath, zlog.Named("curated"))
		if err != nil {
			return fmt.Errorf("loading curated table: %w", err)
		}
		defer func() { _ = provider.Close() }()
		matcher = provider
		zlog.Info("curated table loaded",
			zap.String("path", cfg.Pipeline.CuratedPath),
			zap.Int("entries", provider.Table().Len()))
	}

	pipe, err := pipeline.New(store, embedder, matcher, generator, pipeline.Config{
		CuratedThreshold:     cfg.Pipeline.CuratedThreshold,
		RetrievalK:           cfg.Pipeline.RetrievalK,
		MinCandidates:        cfg.Pipeline.MinCandidates,
		MinPositiveKeywords:  cfg.Pipeline.MinPositiveKeywords,
		TargetAnswerLength:   cfg.Pipeline.TargetAnswerLen,
		LowConfidenceWarning: cfg.Pipeline.LowConfidenceWarning,
		Highlighter: pipeline.HighlighterParams{
			MaxTokens:      cfg.Pipeline.NGramMaxTokens,
			MinTokens:      cfg.Pipeline.NGramMinTokens,
			MinChars:       cfg.Pipeline.NGramMinChars,
			MergeTolerance: cfg.Pipeline.MergeTolerance,
			SnippetContext: cfg.Pipeline.SnippetContext,
		},
	}, zlog.Named("pipeline"))
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	server, err := httpapi.NewServer(pipe, store, zlog.Named("http"), &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Format != "" {
		logCfg.Format = cfg.Format
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		logCfg.Level = level
	}
	return logging.NewLogger(logCfg)
}
