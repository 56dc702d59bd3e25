// Package observe holds the OpenTelemetry metric instruments for meetscribe
// and the Prometheus bridge that exposes them on /metrics.
//
// Tests should build a Metrics with NewMetrics and a ManualReader-backed
// provider rather than use the global provider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/sjawhar/meetscribe"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the instruments recorded by the ingest, finalize and HTTP
// layers. All fields are safe for concurrent use.
type Metrics struct {
	// ChunksReceived counts non-empty audio chunks accepted on live streams.
	ChunksReceived metric.Int64Counter

	// Flushes counts flush attempts. Attribute: status.
	Flushes metric.Int64Counter

	// FlushDuration covers WAV spooling, transcription and merge.
	FlushDuration metric.Float64Histogram

	// GatewayDuration tracks external provider latency. Attributes: gateway, status.
	GatewayDuration metric.Float64Histogram

	// Finalizations counts finalization runs. Attribute: outcome.
	Finalizations metric.Int64Counter

	FinalizeDuration metric.Float64Histogram

	// Tasks counts background pool tasks. Attributes: task, status.
	Tasks metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter

	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksReceived, err = m.Int64Counter("meetscribe.chunks.received",
		metric.WithDescription("Audio chunks accepted on live streams."),
	); err != nil {
		return nil, err
	}
	if met.Flushes, err = m.Int64Counter("meetscribe.flushes",
		metric.WithDescription("Partial transcription flushes by status."),
	); err != nil {
		return nil, err
	}
	if met.FlushDuration, err = m.Float64Histogram("meetscribe.flush.duration",
		metric.WithDescription("Latency of one flush: spool, transcribe and merge."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GatewayDuration, err = m.Float64Histogram("meetscribe.gateway.duration",
		metric.WithDescription("Latency of external provider calls by gateway and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Finalizations, err = m.Int64Counter("meetscribe.finalizations",
		metric.WithDescription("Finalization runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("meetscribe.finalize.duration",
		metric.WithDescription("Latency of a full finalization run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Tasks, err = m.Int64Counter("meetscribe.tasks",
		metric.WithDescription("Background tasks by name and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("meetscribe.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("meetscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

func (m *Metrics) RecordChunk(ctx context.Context) {
	m.ChunksReceived.Add(ctx, 1)
}

func (m *Metrics) RecordFlush(ctx context.Context, elapsed time.Duration, err error) {
	status := metric.WithAttributes(attribute.String("status", statusOf(err)))
	m.Flushes.Add(ctx, 1, status)
	m.FlushDuration.Record(ctx, elapsed.Seconds(), status)
}

// RecordGateway records one call to an external provider such as
// "transcribe", "summarize" or "notify".
func (m *Metrics) RecordGateway(ctx context.Context, gateway string, elapsed time.Duration, err error) {
	m.GatewayDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("gateway", gateway),
			attribute.String("status", statusOf(err)),
		),
	)
}

func (m *Metrics) RecordFinalization(ctx context.Context, outcome string, elapsed time.Duration) {
	m.Finalizations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.FinalizeDuration.Record(ctx, elapsed.Seconds())
}

// RecordTask matches worker.Observer.
func (m *Metrics) RecordTask(name string, _ time.Duration, err error) {
	m.Tasks.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("task", name),
			attribute.String("status", statusOf(err)),
		),
	)
}

func (m *Metrics) SessionOpened(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}
