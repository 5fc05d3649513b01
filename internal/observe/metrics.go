// Package observe provides application-wide observability primitives for
// Hushcut: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Hushcut metrics.
const meterName = "github.com/hushcut/hushcut"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// FlushDuration tracks the end-to-end cost of one streaming flush,
	// from trigger to emitted segments.
	FlushDuration metric.Float64Histogram

	// ASRDuration tracks transcription latency per submitted chunk.
	ASRDuration metric.Float64Histogram

	// CompactionDuration tracks batch silence-compaction latency per file.
	CompactionDuration metric.Float64Histogram

	// --- Counters ---

	// BlocksDropped counts capture blocks discarded because the queue was
	// full or the controller was paused. Use with attribute:
	//   attribute.String("reason", "overflow"|"paused")
	BlocksDropped metric.Int64Counter

	// FramesClassified counts frames run through the per-frame classifier.
	// Use with attribute: attribute.String("speech", "true"|"false")
	FramesClassified metric.Int64Counter

	// Flushes counts streaming flushes. Use with attribute:
	//   attribute.String("trigger", "silence"|"pause"|"cap"|"stop")
	Flushes metric.Int64Counter

	// ASRErrors counts failed transcription calls. Use with attribute:
	//   attribute.String("engine", ...)
	ASRErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of blocks waiting in the capture queue.
	QueueDepth metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription and compaction latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FlushDuration, err = m.Float64Histogram("hushcut.flush.duration",
		metric.WithDescription("Latency of one streaming flush, trigger to emitted segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRDuration, err = m.Float64Histogram("hushcut.asr.duration",
		metric.WithDescription("Latency of transcription per submitted chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompactionDuration, err = m.Float64Histogram("hushcut.compaction.duration",
		metric.WithDescription("Latency of batch silence compaction per file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BlocksDropped, err = m.Int64Counter("hushcut.capture.blocks_dropped",
		metric.WithDescription("Capture blocks discarded by reason."),
	); err != nil {
		return nil, err
	}
	if met.FramesClassified, err = m.Int64Counter("hushcut.vad.frames_classified",
		metric.WithDescription("Frames run through the per-frame classifier by decision."),
	); err != nil {
		return nil, err
	}
	if met.Flushes, err = m.Int64Counter("hushcut.stream.flushes",
		metric.WithDescription("Streaming flushes by trigger."),
	); err != nil {
		return nil, err
	}
	if met.ASRErrors, err = m.Int64Counter("hushcut.asr.errors",
		metric.WithDescription("Failed transcription calls by engine."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("hushcut.capture.queue_depth",
		metric.WithDescription("Blocks waiting in the capture queue."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("hushcut.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hushcut.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBlockDropped records one discarded capture block with its reason.
func (m *Metrics) RecordBlockDropped(ctx context.Context, reason string) {
	m.BlocksDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordFrame records one classified frame with its decision.
func (m *Metrics) RecordFrame(ctx context.Context, speech bool) {
	decision := "false"
	if speech {
		decision = "true"
	}
	m.FramesClassified.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speech", decision)),
	)
}

// RecordFlush records one streaming flush with its trigger and duration.
func (m *Metrics) RecordFlush(ctx context.Context, trigger string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("trigger", trigger))
	m.Flushes.Add(ctx, 1, attrs)
	m.FlushDuration.Record(ctx, seconds, attrs)
}

// RecordASRError records one failed transcription call.
func (m *Metrics) RecordASRError(ctx context.Context, engine string) {
	m.ASRErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("engine", engine)),
	)
}
