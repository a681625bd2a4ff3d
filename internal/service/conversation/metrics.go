package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zhouzirui/callsim/backend/conversation"

// Metrics holds the orchestrator instruments.
type Metrics struct {
	sessionsStarted    metric.Int64Counter
	sessionsEnded      metric.Int64Counter
	sessionsActive     metric.Int64UpDownCounter
	turns              metric.Int64Counter
	generationFailures metric.Int64Counter
	generationLatency  metric.Float64Histogram
	audioPartial       metric.Int64Counter
	protocolErrors     metric.Int64Counter
}

// NewMetrics registers the instruments on meter, or on the global provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m   Metrics
		err error
	)
	if m.sessionsStarted, err = meter.Int64Counter("callsim_sessions_started_total",
		metric.WithDescription("Sessions opened by start_session")); err != nil {
		return nil, fmt.Errorf("sessions started counter: %w", err)
	}
	if m.sessionsEnded, err = meter.Int64Counter("callsim_sessions_ended_total",
		metric.WithDescription("Sessions ended, by reason")); err != nil {
		return nil, fmt.Errorf("sessions ended counter: %w", err)
	}
	if m.sessionsActive, err = meter.Int64UpDownCounter("callsim_sessions_active",
		metric.WithDescription("Sessions currently registered")); err != nil {
		return nil, fmt.Errorf("sessions active counter: %w", err)
	}
	if m.turns, err = meter.Int64Counter("callsim_turns_total",
		metric.WithDescription("Turns appended, by role")); err != nil {
		return nil, fmt.Errorf("turns counter: %w", err)
	}
	if m.generationFailures, err = meter.Int64Counter("callsim_generation_failures_total",
		metric.WithDescription("Generation failures, by kind")); err != nil {
		return nil, fmt.Errorf("generation failures counter: %w", err)
	}
	if m.generationLatency, err = meter.Float64Histogram("callsim_generation_latency_seconds",
		metric.WithDescription("Generation Client latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("generation latency histogram: %w", err)
	}
	if m.audioPartial, err = meter.Int64Counter("callsim_audio_partial_failures_total",
		metric.WithDescription("Audio streams that ended before the backend end marker")); err != nil {
		return nil, fmt.Errorf("audio partial counter: %w", err)
	}
	if m.protocolErrors, err = meter.Int64Counter("callsim_protocol_errors_total",
		metric.WithDescription("Protocol errors reported to clients, by code")); err != nil {
		return nil, fmt.Errorf("protocol errors counter: %w", err)
	}
	return &m, nil
}

func (m *Metrics) sessionStarted(ctx context.Context) {
	m.sessionsStarted.Add(ctx, 1)
	m.sessionsActive.Add(ctx, 1)
}

func (m *Metrics) sessionEnded(ctx context.Context, reason string) {
	m.sessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.sessionsActive.Add(ctx, -1)
}

func (m *Metrics) turnAppended(ctx context.Context, role string) {
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

func (m *Metrics) generationDone(ctx context.Context, elapsed time.Duration, code string) {
	m.generationLatency.Record(ctx, elapsed.Seconds())
	if code != "" {
		m.generationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", code)))
	}
}

func (m *Metrics) audioPartialFailure(ctx context.Context) {
	m.audioPartial.Add(ctx, 1)
}

func (m *Metrics) protocolError(ctx context.Context, code string) {
	m.protocolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
