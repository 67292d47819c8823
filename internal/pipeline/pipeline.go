package pipeline

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/caretext/answerd/internal/curated"
)

var pipelineTracer = otel.Tracer("answerd.pipeline")

// Query outcomes for metrics labels.
const (
	outcomeAnswered = "answered"
	outcomeCurated  = "curated"
	outcomeRefused  = "refused"
)

const refusalText = "I could not find sufficiently relevant content in the ingested documents to answer this question safely."

// Generator produces free text from a prompt. May fail or time out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CuratedMatcher serves the vetted response table snapshot.
type CuratedMatcher interface {
	Match(query string, threshold float64) *curated.Response
}

// Config tunes pipeline behavior. Zero values take the defaults.
type Config struct {
	// CuratedThreshold is the curated-match similarity bar. Default 0.7.
	CuratedThreshold float64 `koanf:"curated_threshold"`

	// RetrievalK caps merged retrieval results. Default 5.
	RetrievalK int `koanf:"retrieval_k"`

	// MinCandidates is the sufficiency bar deciding whether the
	// fallback retrieval stage runs. Default 3.
	MinCandidates int `koanf:"min_candidates"`

	// MinPositiveKeywords per accepted candidate. Default 2.
	MinPositiveKeywords int `koanf:"min_positive_keywords"`

	// TargetAnswerLength for the length sub-score. Default 200.
	TargetAnswerLength int `koanf:"target_answer_length"`

	// LowConfidenceWarning attaches a warning below this confidence.
	// Default 0.4.
	LowConfidenceWarning float64 `koanf:"low_confidence_warning"`

	Highlighter HighlighterParams `koanf:"highlighter"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.CuratedThreshold == 0 {
		c.CuratedThreshold = 0.7
	}
	if c.RetrievalK == 0 {
		c.RetrievalK = 5
	}
	if c.MinCandidates == 0 {
		c.MinCandidates = 3
	}
	if c.MinPositiveKeywords == 0 {
		c.MinPositiveKeywords = 2
	}
	if c.TargetAnswerLength == 0 {
		c.TargetAnswerLength = 200
	}
	if c.LowConfidenceWarning == 0 {
		c.LowConfidenceWarning = 0.4
	}
}

// Pipeline wires the stages together. All collaborators are injected and
// read-only during request handling; a Pipeline is safe for concurrent
// use.
type Pipeline struct {
	classifier  *Classifier
	curated     CuratedMatcher
	retriever   *Retriever
	gate        *Gate
	scorer      *Scorer
	highlighter *Highlighter
	assembler   *Assembler
	generator   Generator
	config      Config
	logger      *zap.Logger
	metrics     *Metrics
}

// New builds a pipeline. curated and generator may be nil: without a
// curated table no query short-circuits, and without a generator every
// answer falls back to the best accepted chunk's text.
func New(store Searcher, embedder QueryEmbedder, curated CuratedMatcher, generator Generator, cfg Config, logger *zap.Logger, opts ...GateOption) (*Pipeline, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	retriever, err := NewRetriever(store, embedder, cfg.RetrievalK, cfg.MinCandidates, logger.Named("retriever"))
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		classifier:  NewClassifier(),
		curated:     curated,
		retriever:   retriever,
		gate:        NewGate(cfg.MinPositiveKeywords, opts...),
		scorer:      NewScorer(cfg.TargetAnswerLength),
		highlighter: NewHighlighter(cfg.Highlighter),
		assembler:   NewAssembler(),
		generator:   generator,
		config:      cfg,
		logger:      logger,
		metrics:     NewMetrics(),
	}, nil
}

// Answer runs the full pipeline for one query. Only store-level
// unavailability returns an error; every other condition produces a
// response, attaching warnings as needed.
func (p *Pipeline) Answer(ctx context.Context, query string) (*AnswerResponse, error) {
	start := time.Now()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.Answer")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	classification := p.classifier.Classify(query)
	span.SetAttributes(
		attribute.String("intent", string(classification.Intent)),
		attribute.Float64("intent_confidence", classification.Confidence),
	)

	// Curated short-circuit: a hit skips retrieval, gating, generation,
	// and scoring entirely.
	if p.curated != nil {
		if hit := p.curated.Match(query, p.config.CuratedThreshold); hit != nil {
			resp := p.assembler.Assemble(
				curatedIntent(hit, classification),
				hit.ResponseText,
				hit.Confidence,
				hit.Sources,
				nil,
				[]string{"answer served from the curated response table"},
			)
			p.metrics.recordQuery(ctx, resp.Intent, outcomeCurated, resp.Confidence, time.Since(start))
			p.logger.Info("curated response served",
				zap.String("intent", string(resp.Intent)))
			return resp, nil
		}
	}

	candidates, warnings, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	accepted, ok := p.gate.Accept(query, classification.Intent, candidates)
	if !ok {
		resp := p.assembler.Assemble(
			classification.Intent,
			refusalText,
			0,
			nil,
			nil,
			append(warnings, "no retrieved content passed the relevance check"),
		)
		p.metrics.recordQuery(ctx, classification.Intent, outcomeRefused, resp.Confidence, time.Since(start))
		p.logger.Info("query refused by quality gate",
			zap.String("intent", string(classification.Intent)),
			zap.Int("candidates", len(candidates)))
		return resp, nil
	}

	answerText, genWarning := p.generate(ctx, query, classification.Intent, accepted)
	if genWarning != "" {
		warnings = append(warnings, genWarning)
	}

	confidence := p.scorer.Score(query, classification.Intent, accepted, answerText)
	if confidence < p.config.LowConfidenceWarning {
		warnings = append(warnings, "answer confidence is low; verify against the cited sources")
	}

	highlighted := p.highlighter.Highlight(accepted, answerText)

	names := make([]string, 0, len(accepted))
	for _, c := range accepted {
		names = append(names, c.Chunk.DocumentName)
	}

	resp := p.assembler.Assemble(classification.Intent, answerText, confidence, names, highlighted, warnings)
	p.metrics.recordQuery(ctx, resp.Intent, outcomeAnswered, resp.Confidence, time.Since(start))
	return resp, nil
}

// generate calls the generator once with the full accepted context and,
// on failure, once more with the context halved. A second failure falls
// back to the best accepted chunk's raw text.
func (p *Pipeline) generate(ctx context.Context, query string, intent Intent, accepted []RetrievalCandidate) (string, string) {
	if p.generator == nil {
		p.metrics.recordGenerationFallback(ctx)
		return accepted[0].Chunk.Content, "generation unavailable; returning source text directly"
	}

	text, err := p.generator.Generate(ctx, BuildPrompt(query, intent, accepted))
	if err == nil {
		return text, ""
	}
	p.logger.Warn("generation failed, retrying with halved context", zap.Error(err))

	half := accepted[:(len(accepted)+1)/2]
	text, err = p.generator.Generate(ctx, BuildPrompt(query, intent, half))
	if err == nil {
		return text, ""
	}
	p.logger.Warn("generation retry failed, falling back to source text", zap.Error(err))

	p.metrics.recordGenerationFallback(ctx)
	return accepted[0].Chunk.Content, "generation unavailable; returning source text directly"
}

// curatedIntent prefers the entry's own label, falling back to the
// classifier when the label is absent.
func curatedIntent(hit *curated.Response, classification QueryClassification) Intent {
	if hit.Intent == "" {
		return classification.Intent
	}
	return ParseIntent(hit.Intent)
}
