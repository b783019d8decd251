// Package observe provides the observability primitives for Podwright:
// OpenTelemetry metrics, tracing helpers, trace-aware logging, and the HTTP
// middleware used by the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// to Prometheus by [InitProvider]. Tests should use [NewMetrics] with a
// [sdkmetric.ManualReader]-backed provider instead of [DefaultMetrics] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Podwright metrics.
const meterName = "github.com/MrWong99/podwright"

// Metrics holds all OpenTelemetry instruments for the application.
type Metrics struct {
	// --- Backend HTTP client ---

	// BackendRequestDuration tracks the latency of backend calls up to the
	// response headers (streams are measured separately). Attributes:
	//   endpoint, status
	BackendRequestDuration metric.Float64Histogram

	// BackendRequests counts backend calls. Attributes: endpoint, status
	BackendRequests metric.Int64Counter

	// BackendErrors counts failed backend calls. Attributes: endpoint, kind
	// (one of "http", "transport", "decode", "circuit_open")
	BackendErrors metric.Int64Counter

	// ConfigCacheHits counts configuration fetches served from cache.
	// Attributes: endpoint
	ConfigCacheHits metric.Int64Counter

	// --- Audio streams ---

	// StreamEvents counts progress events by type.
	StreamEvents metric.Int64Counter

	// StreamDuration tracks the wall time of whole audio generation streams.
	StreamDuration metric.Float64Histogram

	// ActiveStreams is the number of audio streams currently being consumed.
	ActiveStreams metric.Int64UpDownCounter

	// Segments counts per-turn audio requests. Attributes: status
	// ("ok", "failed", "cached", "skipped")
	Segments metric.Int64Counter

	// --- Realtime channel ---

	// RealtimeMessages counts WebSocket messages. Attributes: direction, type
	RealtimeMessages metric.Int64Counter

	// RealtimeReconnects counts reconnect attempts. Attributes: outcome
	RealtimeReconnects metric.Int64Counter

	// --- Transcript generation and wizard ---

	// GenerationDuration tracks transcript generation latency by source.
	GenerationDuration metric.Float64Histogram

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, to
	BreakerTransitions metric.Int64Counter

	// WizardTransitions counts wizard step changes. Attributes: from, to
	WizardTransitions metric.Int64Counter

	// --- Status server ---

	// HTTPRequestDuration tracks status server request time. Attributes:
	// method, path
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) span quick config fetches up to multi-minute
// transcript generation and audio synthesis.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.BackendRequestDuration, "podwright.backend.request.duration", "Latency of backend requests by endpoint and status."},
		{&met.StreamDuration, "podwright.audio.stream.duration", "Wall time of audio generation streams."},
		{&met.GenerationDuration, "podwright.transcript.generation.duration", "Latency of transcript generation by source."},
		{&met.HTTPRequestDuration, "podwright.http.request.duration", "Status server request latency by method and path."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.BackendRequests, "podwright.backend.requests", "Total backend requests by endpoint and status."},
		{&met.BackendErrors, "podwright.backend.errors", "Total backend errors by endpoint and kind."},
		{&met.ConfigCacheHits, "podwright.backend.config_cache.hits", "Configuration fetches served from the local cache."},
		{&met.StreamEvents, "podwright.audio.stream.events", "Audio progress events by type."},
		{&met.Segments, "podwright.audio.segments", "Per-turn audio requests by outcome."},
		{&met.RealtimeMessages, "podwright.realtime.messages", "Realtime channel messages by direction and type."},
		{&met.RealtimeReconnects, "podwright.realtime.reconnects", "Realtime reconnect attempts by outcome."},
		{&met.BreakerTransitions, "podwright.circuit_breaker.transitions", "Circuit breaker state changes by breaker and target state."},
		{&met.WizardTransitions, "podwright.wizard.transitions", "Wizard step changes."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("podwright.audio.active_streams",
		metric.WithDescription("Number of audio streams currently being consumed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. It panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendRequest records one backend call's outcome and latency.
func (m *Metrics) RecordBackendRequest(ctx context.Context, endpoint, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.BackendRequests.Add(ctx, 1, attrs)
	m.BackendRequestDuration.Record(ctx, seconds, attrs)
}

// RecordBackendError records a failed backend call.
func (m *Metrics) RecordBackendError(ctx context.Context, endpoint, kind string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("kind", kind),
		),
	)
}

// RecordStreamEvent records one audio progress event.
func (m *Metrics) RecordStreamEvent(ctx context.Context, eventType string) {
	m.StreamEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordSegment records the outcome of one per-turn audio request.
func (m *Metrics) RecordSegment(ctx context.Context, status string) {
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordRealtimeMessage records one realtime message.
func (m *Metrics) RecordRealtimeMessage(ctx context.Context, direction, msgType string) {
	m.RealtimeMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("type", msgType),
		),
	)
}

// RecordReconnect records one realtime reconnect attempt.
func (m *Metrics) RecordReconnect(ctx context.Context, outcome string) {
	m.RealtimeReconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}

// RecordWizardTransition records a wizard step change.
func (m *Metrics) RecordWizardTransition(ctx context.Context, from, to string) {
	m.WizardTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordGeneration records one transcript generation attempt.
func (m *Metrics) RecordGeneration(ctx context.Context, source, outcome string, seconds float64) {
	m.GenerationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		),
	)
}
