// Package observe provides application-wide observability primitives for
// Voxwire: OpenTelemetry metrics and provider initialisation.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// All Record methods are safe to call on a nil *Metrics, so components can
// treat the observer as optional without guarding every call site.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxwire metrics.
const meterName = "github.com/voxwire/voxwire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// BlockDuration tracks per-block metric computation and emission latency.
	BlockDuration metric.Float64Histogram

	// BlocksProcessed counts processed audio blocks. Use with attribute:
	//   attribute.Bool("clipping", ...)
	BlocksProcessed metric.Int64Counter

	// PipelineErrors counts audio pipeline errors by kind.
	PipelineErrors metric.Int64Counter

	// PipelineRecoveries counts successful capture recoveries.
	PipelineRecoveries metric.Int64Counter

	// MessagesSent counts outbound frames delivered to the wire.
	MessagesSent metric.Int64Counter

	// MessagesReceived counts inbound frames by kind (content, error, unknown).
	MessagesReceived metric.Int64Counter

	// SendErrors counts outbound send failures.
	SendErrors metric.Int64Counter

	// RateLimited counts sends rejected by the sliding-window limiter.
	RateLimited metric.Int64Counter

	// Reconnects counts successful session reconnections.
	Reconnects metric.Int64Counter

	// QueueDepth tracks the current outbound queue depth.
	QueueDepth metric.Int64UpDownCounter

	// HTTPRequestDuration tracks latency of requests on the local HTTP
	// surface (health and metrics endpoints).
	HTTPRequestDuration metric.Float64Histogram
}

// blockBuckets defines histogram bucket boundaries (in seconds) sized for
// per-block processing, which should stay well under the ~93 ms block cadence.
var blockBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BlockDuration, err = m.Float64Histogram("voxwire.audio.block.duration",
		metric.WithDescription("Latency of per-block metric computation and emission."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(blockBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BlocksProcessed, err = m.Int64Counter("voxwire.audio.blocks",
		metric.WithDescription("Total processed audio blocks by clipping state."),
	); err != nil {
		return nil, err
	}
	if met.PipelineErrors, err = m.Int64Counter("voxwire.audio.errors",
		metric.WithDescription("Total audio pipeline errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.PipelineRecoveries, err = m.Int64Counter("voxwire.audio.recoveries",
		metric.WithDescription("Total successful capture recoveries."),
	); err != nil {
		return nil, err
	}
	if met.MessagesSent, err = m.Int64Counter("voxwire.session.sent",
		metric.WithDescription("Total outbound frames delivered to the wire."),
	); err != nil {
		return nil, err
	}
	if met.MessagesReceived, err = m.Int64Counter("voxwire.session.received",
		metric.WithDescription("Total inbound frames by kind."),
	); err != nil {
		return nil, err
	}
	if met.SendErrors, err = m.Int64Counter("voxwire.session.send_errors",
		metric.WithDescription("Total outbound send failures."),
	); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("voxwire.session.rate_limited",
		metric.WithDescription("Total sends rejected by the rate limiter."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voxwire.session.reconnects",
		metric.WithDescription("Total successful session reconnections."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("voxwire.session.queue_depth",
		metric.WithDescription("Current outbound queue depth."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxwire.http.request.duration",
		metric.WithDescription("Latency of HTTP requests on the local surface."),
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

// RecordBlock records one processed audio block.
func (m *Metrics) RecordBlock(ctx context.Context, seconds float64, clipping bool) {
	if m == nil {
		return
	}
	m.BlockDuration.Record(ctx, seconds)
	m.BlocksProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("clipping", clipping)),
	)
}

// RecordPipelineError records one audio pipeline error by kind.
func (m *Metrics) RecordPipelineError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.PipelineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordPipelineRecovery records one successful capture recovery.
func (m *Metrics) RecordPipelineRecovery(ctx context.Context) {
	if m == nil {
		return
	}
	m.PipelineRecoveries.Add(ctx, 1)
}

// RecordMessageSent records one outbound frame delivered to the wire.
func (m *Metrics) RecordMessageSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.MessagesSent.Add(ctx, 1)
}

// RecordMessageReceived records one inbound frame by kind.
func (m *Metrics) RecordMessageReceived(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSendError records one outbound send failure.
func (m *Metrics) RecordSendError(ctx context.Context) {
	if m == nil {
		return
	}
	m.SendErrors.Add(ctx, 1)
}

// RecordRateLimited records one send rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1)
}

// RecordReconnect records one successful session reconnection.
func (m *Metrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.Reconnects.Add(ctx, 1)
}

// AddQueueDepth adjusts the outbound queue depth gauge by delta.
func (m *Metrics) AddQueueDepth(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Add(ctx, delta)
}

// RecordHTTPRequest records one request on the local HTTP surface.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, seconds float64, method, path string) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}
