// Package observe provides observability primitives for VoxTutor:
// OpenTelemetry metrics with a Prometheus exporter bridge so the standard
// /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VoxTutor metrics.
const meterName = "github.com/voxtutor/voxtutor"

// Metrics holds all OpenTelemetry metric instruments for the session manager.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// UtteranceDuration tracks the audio length of kept utterances.
	UtteranceDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// ConnectDuration tracks how long the start sequence takes, from
	// credential issuance through negotiation.
	ConnectDuration metric.Float64Histogram

	// Turns counts finalised transcript turns. Use with attribute:
	//   attribute.String("role", ...)
	Turns metric.Int64Counter

	// Corrections counts extracted correction records. Use with attribute:
	//   attribute.String("kind", ...)
	Corrections metric.Int64Counter

	// ControlEvents counts decoded control-channel events. Use with
	// attribute: attribute.String("kind", ...)
	ControlEvents metric.Int64Counter

	// TranscriptionErrors counts failed transcription requests.
	TranscriptionErrors metric.Int64Counter

	// DecodeErrors counts malformed control-channel payloads that were
	// dropped.
	DecodeErrors metric.Int64Counter

	// DiscardedUtterances counts recordings dropped for being shorter than
	// the minimum utterance duration.
	DiscardedUtterances metric.Int64Counter

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.UtteranceDuration, err = m.Float64Histogram("voxtutor.utterance.duration",
		metric.WithDescription("Audio length of kept learner utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 4, 8, 16, 30),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("voxtutor.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("voxtutor.connect.duration",
		metric.WithDescription("Latency of the session start sequence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("voxtutor.turns",
		metric.WithDescription("Finalised transcript turns by role."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("voxtutor.corrections",
		metric.WithDescription("Extracted correction records by kind."),
	); err != nil {
		return nil, err
	}
	if met.ControlEvents, err = m.Int64Counter("voxtutor.control.events",
		metric.WithDescription("Decoded control-channel events by kind."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("voxtutor.transcription.errors",
		metric.WithDescription("Failed transcription requests."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("voxtutor.control.decode_errors",
		metric.WithDescription("Malformed control-channel payloads dropped."),
	); err != nil {
		return nil, err
	}
	if met.DiscardedUtterances, err = m.Int64Counter("voxtutor.utterance.discarded",
		metric.WithDescription("Recordings dropped below the minimum utterance duration."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxtutor.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
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

// RecordTurn increments the turn counter for the given role.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordCorrection increments the correction counter for the given kind.
func (m *Metrics) RecordCorrection(ctx context.Context, kind string) {
	m.Corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordControlEvent increments the control-event counter for the given kind.
func (m *Metrics) RecordControlEvent(ctx context.Context, kind string) {
	m.ControlEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
