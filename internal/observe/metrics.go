// Package observe provides application-wide observability primitives for
// Auricle: OpenTelemetry metrics and the provider wiring that exposes them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Auricle metrics.
const meterName = "github.com/auricle-ai/auricle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text inference latency per
	// flushed utterance.
	TranscriptionDuration metric.Float64Histogram

	// AnswerDuration tracks end-to-end answer generation latency, from
	// question transcript to last streamed token.
	AnswerDuration metric.Float64Histogram

	// AnswerFirstTokenDuration tracks time to the first streamed answer token.
	AnswerFirstTokenDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts flushed utterances. Use with attribute:
	//   attribute.String("reason", ...) — the flush trigger label.
	Utterances metric.Int64Counter

	// Questions counts transcripts classified as interview questions.
	Questions metric.Int64Counter

	// --- Error counters ---

	// PipelineErrors counts recovered pipeline failures. Use with attribute:
	//   attribute.String("stage", ...) — "vad", "transcribe", "source", "dispatch".
	PipelineErrors metric.Int64Counter

	// LLMErrors counts answer-backend failures. Use with attribute:
	//   attribute.String("backend", ...)
	LLMErrors metric.Int64Counter

	// --- Gauges ---

	// BufferedAudioSeconds tracks seconds of audio currently held by the
	// segment accumulator.
	BufferedAudioSeconds metric.Float64Gauge

	// ViewerClients tracks the number of connected transcript viewers.
	ViewerClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// local whisper inference and LLM answer latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("auricle.transcription.duration",
		metric.WithDescription("Latency of speech-to-text inference per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = m.Float64Histogram("auricle.answer.duration",
		metric.WithDescription("End-to-end answer generation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnswerFirstTokenDuration, err = m.Float64Histogram("auricle.answer.first_token.duration",
		metric.WithDescription("Time to first streamed answer token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("auricle.utterances",
		metric.WithDescription("Total flushed utterances by flush reason."),
	); err != nil {
		return nil, err
	}
	if met.Questions, err = m.Int64Counter("auricle.questions",
		metric.WithDescription("Total transcripts classified as questions."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PipelineErrors, err = m.Int64Counter("auricle.pipeline.errors",
		metric.WithDescription("Total recovered pipeline failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.LLMErrors, err = m.Int64Counter("auricle.llm.errors",
		metric.WithDescription("Total answer-backend failures by backend."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.BufferedAudioSeconds, err = m.Float64Gauge("auricle.buffered_audio.seconds",
		metric.WithDescription("Seconds of audio currently buffered by the segment accumulator."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.ViewerClients, err = m.Int64UpDownCounter("auricle.viewer.clients",
		metric.WithDescription("Number of connected transcript viewer clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordUtterance records one flushed utterance with its flush-reason label
// and the transcription latency.
func (m *Metrics) RecordUtterance(ctx context.Context, reason string, seconds float64) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
	m.TranscriptionDuration.Record(ctx, seconds)
}

// RecordPipelineError records one recovered pipeline failure for a stage.
func (m *Metrics) RecordPipelineError(ctx context.Context, stage string) {
	m.PipelineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordLLMError records one answer-backend failure.
func (m *Metrics) RecordLLMError(ctx context.Context, backend string) {
	m.LLMErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}
