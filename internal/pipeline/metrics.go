package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/caretext/answerd/internal/pipeline"

// Metrics holds pipeline-level instruments.
type Metrics struct {
	meter       metric.Meter
	queries     metric.Int64Counter
	curatedHits metric.Int64Counter
	refusals    metric.Int64Counter
	genFallback metric.Int64Counter
	confidence  metric.Float64Histogram
	duration    metric.Float64Histogram
}

// NewMetrics creates pipeline metrics. Instrument creation failures are
// tolerated; recording on a nil instrument is skipped.
func NewMetrics() *Metrics {
	m := &Metrics{meter: otel.Meter(instrumentationName)}

	m.queries, _ = m.meter.Int64Counter(
		"answerd.pipeline.queries_total",
		metric.WithDescription("Total queries answered, labeled by intent and outcome (answered, curated, refused)"),
		metric.WithUnit("{query}"),
	)
	m.curatedHits, _ = m.meter.Int64Counter(
		"answerd.pipeline.curated_hits_total",
		metric.WithDescription("Queries short-circuited by a curated response"),
		metric.WithUnit("{query}"),
	)
	m.refusals, _ = m.meter.Int64Counter(
		"answerd.pipeline.refusals_total",
		metric.WithDescription("Queries refused by the quality gate"),
		metric.WithUnit("{query}"),
	)
	m.genFallback, _ = m.meter.Int64Counter(
		"answerd.pipeline.generation_fallbacks_total",
		metric.WithDescription("Answers that fell back to raw chunk text after generation failed"),
		metric.WithUnit("{answer}"),
	)
	m.confidence, _ = m.meter.Float64Histogram(
		"answerd.pipeline.answer_confidence",
		metric.WithDescription("Final answer confidence distribution"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9),
	)
	m.duration, _ = m.meter.Float64Histogram(
		"answerd.pipeline.request_duration_seconds",
		metric.WithDescription("End-to-end pipeline duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)

	return m
}

func (m *Metrics) recordQuery(ctx context.Context, intent Intent, outcome string, confidence float64, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("intent", string(intent)),
		attribute.String("outcome", outcome),
	)
	if m.queries != nil {
		m.queries.Add(ctx, 1, attrs)
	}
	if m.confidence != nil {
		m.confidence.Record(ctx, confidence, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	switch outcome {
	case outcomeCurated:
		if m.curatedHits != nil {
			m.curatedHits.Add(ctx, 1)
		}
	case outcomeRefused:
		if m.refusals != nil {
			m.refusals.Add(ctx, 1)
		}
	}
}

func (m *Metrics) recordGenerationFallback(ctx context.Context) {
	if m.genFallback != nil {
		m.genFallback.Add(ctx, 1)
	}
}
