// Package observe provides application-wide observability primitives for
// earshot: OpenTelemetry metrics, tracing, context-aware logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so that metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all earshot metrics.
const meterName = "github.com/MrWong99/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks speech-to-text latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	STTDuration metric.Float64Histogram

	// RecordingDuration tracks the length of captured utterances.
	RecordingDuration metric.Float64Histogram

	// --- Counters ---

	// Captures counts finished captures. Use with attribute:
	//   attribute.String("outcome", "stopped"|"no_speech"|"timed_out"|"error")
	Captures metric.Int64Counter

	// Overflows counts input overflows recovered by the capture loop.
	Overflows metric.Int64Counter

	// DispatchTimeouts counts transcriptions abandoned after the bounded wait.
	DispatchTimeouts metric.Int64Counter

	// ProviderRequests counts STT provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts STT provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// TranscriptsDiscarded counts transcripts dropped as empty or nonsense.
	TranscriptsDiscarded metric.Int64Counter

	// JournalErrors counts failed journal writes.
	JournalErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures is 1 while the microphone stream is open.
	ActiveCaptures metric.Int64UpDownCounter

	// InflightTranscriptions counts worker goroutines still running,
	// including abandoned ones.
	InflightTranscriptions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for STT
// round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30,
}

// utteranceBuckets defines histogram bucket boundaries (in seconds) for
// captured utterance lengths.
var utteranceBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 12, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("earshot.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("earshot.capture.recording.duration",
		metric.WithDescription("Length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Captures, err = m.Int64Counter("earshot.capture.sessions",
		metric.WithDescription("Finished captures by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Overflows, err = m.Int64Counter("earshot.capture.overflows",
		metric.WithDescription("Recovered audio input overflows."),
	); err != nil {
		return nil, err
	}
	if met.DispatchTimeouts, err = m.Int64Counter("earshot.dispatch.timeouts",
		metric.WithDescription("Transcriptions abandoned after the bounded wait."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("earshot.provider.requests",
		metric.WithDescription("Total STT provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("earshot.provider.errors",
		metric.WithDescription("Total STT provider errors by provider."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsDiscarded, err = m.Int64Counter("earshot.transcripts.discarded",
		metric.WithDescription("Transcripts dropped as empty or nonsense."),
	); err != nil {
		return nil, err
	}
	if met.JournalErrors, err = m.Int64Counter("earshot.journal.errors",
		metric.WithDescription("Failed journal writes."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptures, err = m.Int64UpDownCounter("earshot.capture.active",
		metric.WithDescription("Number of open microphone streams."),
	); err != nil {
		return nil, err
	}
	if met.InflightTranscriptions, err = m.Int64UpDownCounter("earshot.dispatch.inflight",
		metric.WithDescription("Number of running transcription workers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
// pointer. Panics if instrument creation fails.
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCapture records a finished capture with its outcome and, for
// captures that produced audio, the utterance length.
func (m *Metrics) RecordCapture(ctx context.Context, outcome string, audio time.Duration) {
	m.Captures.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
	if audio > 0 {
		m.RecordingDuration.Record(ctx, audio.Seconds())
	}
}

// RecordTranscription records one STT provider call and its latency.
func (m *Metrics) RecordTranscription(ctx context.Context, provider, status string, d time.Duration) {
	attrs := metric.WithAttributes(Attr("provider", provider), Attr("status", status))
	m.ProviderRequests.Add(ctx, 1, attrs)
	m.STTDuration.Record(ctx, d.Seconds(), attrs)
	if status == "error" {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider)))
	}
}
