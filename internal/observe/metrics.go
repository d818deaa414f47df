// Package observe provides application-wide observability primitives for
// pitwall: OpenTelemetry metrics, distributed tracing, trace-aware logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all pitwall metrics.
const meterName = "github.com/MrWong99/pitwall"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// PollDuration tracks the wall time of one full poll pass.
	PollDuration metric.Float64Histogram

	// FetchDuration tracks OpenF1 team_radio request latency.
	FetchDuration metric.Float64Histogram

	// DownloadDuration tracks clip download latency.
	DownloadDuration metric.Float64Histogram

	// PublishDuration tracks Discord post latency.
	PublishDuration metric.Float64Histogram

	// --- Counters ---

	// Polls counts poll passes. Use with attribute:
	//   attribute.String("status", ...)
	Polls metric.Int64Counter

	// RecordsFetched counts radio records returned by OpenF1.
	RecordsFetched metric.Int64Counter

	// Downloads counts clip downloads. Use with attribute:
	//   attribute.String("result", "ok" | "oversize" | "error")
	Downloads metric.Int64Counter

	// Deliveries counts posted notifications. Use with attributes:
	//   attribute.String("mode", "attachment" | "link"), attribute.String("status", ...)
	Deliveries metric.Int64Counter

	// Commands counts chat command invocations. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// --- Gauges ---

	// SeenRecords tracks the size of the deduplication set.
	SeenRecords metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// REST round trips and multi-megabyte downloads.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PollDuration, err = m.Float64Histogram("pitwall.poll.duration",
		metric.WithDescription("Duration of one poll pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("pitwall.fetch.duration",
		metric.WithDescription("Latency of OpenF1 team radio requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DownloadDuration, err = m.Float64Histogram("pitwall.download.duration",
		metric.WithDescription("Latency of team radio clip downloads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PublishDuration, err = m.Float64Histogram("pitwall.publish.duration",
		metric.WithDescription("Latency of Discord message posts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Polls, err = m.Int64Counter("pitwall.polls",
		metric.WithDescription("Total poll passes by status."),
	); err != nil {
		return nil, err
	}
	if met.RecordsFetched, err = m.Int64Counter("pitwall.records.fetched",
		metric.WithDescription("Total team radio records returned by OpenF1."),
	); err != nil {
		return nil, err
	}
	if met.Downloads, err = m.Int64Counter("pitwall.downloads",
		metric.WithDescription("Total clip downloads by result."),
	); err != nil {
		return nil, err
	}
	if met.Deliveries, err = m.Int64Counter("pitwall.deliveries",
		metric.WithDescription("Total posted notifications by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("pitwall.commands",
		metric.WithDescription("Total chat commands by command and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SeenRecords, err = m.Int64UpDownCounter("pitwall.seen_records",
		metric.WithDescription("Number of clip identifiers already announced."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitwall.http.request.duration",
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

// RecordPoll records a poll pass counter increment.
func (m *Metrics) RecordPoll(ctx context.Context, status string) {
	m.Polls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordDownload records a download counter increment with its result.
func (m *Metrics) RecordDownload(ctx context.Context, result string) {
	m.Downloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordDelivery records a delivery counter increment with the standard
// attribute set.
func (m *Metrics) RecordDelivery(ctx context.Context, mode, status string) {
	m.Deliveries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordCommand records a chat command counter increment.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}
