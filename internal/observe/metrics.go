// Package observe provides application-wide observability primitives for
// podsync: OpenTelemetry metrics, tracing, trace-aware logging and the gin
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed via
// the Prometheus exporter bridge set up by [InitProvider]. A package-level
// [DefaultMetrics] instance is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
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

// meterName is the instrumentation scope name used for all podsync metrics.
const meterName = "github.com/MrWong99/podsync"

// Metrics holds all metric instruments for the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// ClassificationDuration tracks sentiment classification latency per
	// batch. Attributes: provider, status.
	ClassificationDuration metric.Float64Histogram

	// ClassificationRequests counts classification attempts. Attributes:
	// provider, status.
	ClassificationRequests metric.Int64Counter

	// ClassificationErrors counts failed classification attempts.
	// Attribute: provider.
	ClassificationErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// provider, to.
	BreakerTransitions metric.Int64Counter

	// PollTicks counts playback poll ticks across all sessions.
	PollTicks metric.Int64Counter

	// TranscriptWords records the word count of every loaded transcript.
	TranscriptWords metric.Int64Histogram

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSubscribers tracks the number of state stream subscribers.
	ActiveSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Hosted classifiers
// can take tens of seconds on a cold start.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

var wordBuckets = []float64{
	10, 50, 100, 500, 1000, 5000, 10000, 50000,
}

// NewMetrics creates a fully initialised [Metrics] struct using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ClassificationDuration, err = m.Float64Histogram("podsync.classification.duration",
		metric.WithDescription("Latency of sentiment classification batches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassificationRequests, err = m.Int64Counter("podsync.classification.requests",
		metric.WithDescription("Total classification requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ClassificationErrors, err = m.Int64Counter("podsync.classification.errors",
		metric.WithDescription("Total failed classification requests by provider."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("podsync.classifier.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}
	if met.PollTicks, err = m.Int64Counter("podsync.playback.poll_ticks",
		metric.WithDescription("Total playback poll ticks."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptWords, err = m.Int64Histogram("podsync.transcript.words",
		metric.WithDescription("Number of words per loaded transcript."),
		metric.WithExplicitBucketBoundaries(wordBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("podsync.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("podsync.active_subscribers",
		metric.WithDescription("Number of connected state stream subscribers."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("podsync.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from [otel.GetMeterProvider]. Call it after [InitProvider]
// so the instruments bind to the exporting provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordClassification records one classification attempt: its latency,
// the request counter and, when err is non-nil, the error counter.
func (m *Metrics) RecordClassification(ctx context.Context, provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ClassificationErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider)))
	}
	attrs := metric.WithAttributes(Attr("provider", provider), Attr("status", status))
	m.ClassificationRequests.Add(ctx, 1, attrs)
	m.ClassificationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("to", to),
	))
}
