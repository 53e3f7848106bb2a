// Package telemetry provides OpenTelemetry instrumentation for the supervisor.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SupervisorMetricsMeterName is the name used for the supervisor metrics meter
const SupervisorMetricsMeterName = "github.com/pixels-app/pixels-supervisor/supervisor"

// SupervisorMetrics holds the OpenTelemetry instruments for backend supervision metrics
type SupervisorMetrics struct {
	transitions   metric.Int64Counter
	restarts      metric.Int64Counter
	probeFailures metric.Int64Counter
	startDuration metric.Float64Histogram
}

// NewSupervisorMetrics creates a new SupervisorMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSupervisorMetrics(provider metric.MeterProvider) (*SupervisorMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SupervisorMetricsMeterName)

	transitions, err := meter.Int64Counter(
		"pixels_supervisor_state_transitions_total",
		metric.WithDescription("Number of committed backend state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	restarts, err := meter.Int64Counter(
		"pixels_supervisor_restarts_total",
		metric.WithDescription("Number of backend restart attempts after a failure"),
		metric.WithUnit("{restart}"),
	)
	if err != nil {
		return nil, err
	}

	probeFailures, err := meter.Int64Counter(
		"pixels_supervisor_probe_failures_total",
		metric.WithDescription("Number of failed backend health probes"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, err
	}

	startDuration, err := meter.Float64Histogram(
		"pixels_supervisor_start_duration_seconds",
		metric.WithDescription("Duration of successful backend start attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return &SupervisorMetrics{
		transitions:   transitions,
		restarts:      restarts,
		probeFailures: probeFailures,
		startDuration: startDuration,
	}, nil
}

// RecordTransition records one committed state transition.
func (m *SupervisorMetrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("from", from),
		attribute.String("to", to),
	}

	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRestart records one restart attempt and the retry count that drove it.
func (m *SupervisorMetrics) RecordRestart(ctx context.Context, retryCount int) {
	if m == nil || m.restarts == nil {
		return
	}

	m.restarts.Add(ctx, 1, metric.WithAttributes(attribute.Int("retry_count", retryCount)))
}

// RecordProbeFailure records one failed health probe.
func (m *SupervisorMetrics) RecordProbeFailure(ctx context.Context) {
	if m == nil || m.probeFailures == nil {
		return
	}

	m.probeFailures.Add(ctx, 1)
}

// RecordStartDuration records the duration of a successful start attempt.
func (m *SupervisorMetrics) RecordStartDuration(ctx context.Context, d time.Duration) {
	if m == nil || m.startDuration == nil {
		return
	}

	m.startDuration.Record(ctx, d.Seconds())
}
