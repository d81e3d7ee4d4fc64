package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "hivemind"

// Metrics holds all Hivemind metric instruments.
type Metrics struct {
	DecisionsStarted  metric.Int64Counter
	DecisionsAccepted metric.Int64Counter
	DecisionsFailed   metric.Int64Counter
	ItemsRouted       metric.Int64Counter
	ItemsBlocked      metric.Int64Counter
	BreakerOpens      metric.Int64Counter
	DispatchLatency   metric.Float64Histogram
	AgreementScore    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsStarted, err = meter.Int64Counter("hivemind.decisions.started",
		metric.WithDescription("Number of consensus rounds started"))
	if err != nil {
		return nil, err
	}

	m.DecisionsAccepted, err = meter.Int64Counter("hivemind.decisions.accepted",
		metric.WithDescription("Number of decisions that met the consensus threshold"))
	if err != nil {
		return nil, err
	}

	m.DecisionsFailed, err = meter.Int64Counter("hivemind.decisions.failed",
		metric.WithDescription("Number of decisions that failed with no consensus"))
	if err != nil {
		return nil, err
	}

	m.ItemsRouted, err = meter.Int64Counter("hivemind.workitems.routed",
		metric.WithDescription("Number of work items routed to an executor"))
	if err != nil {
		return nil, err
	}

	m.ItemsBlocked, err = meter.Int64Counter("hivemind.workitems.blocked",
		metric.WithDescription("Number of work items blocked with no capable participant"))
	if err != nil {
		return nil, err
	}

	m.BreakerOpens, err = meter.Int64Counter("hivemind.breaker.opens",
		metric.WithDescription("Number of participant circuit breaker opens"))
	if err != nil {
		return nil, err
	}

	m.DispatchLatency, err = meter.Float64Histogram("hivemind.dispatch.duration_seconds",
		metric.WithDescription("Participant dispatch round-trip duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.AgreementScore, err = meter.Float64Histogram("hivemind.decisions.agreement_score",
		metric.WithDescription("Weighted agreement score of completed consensus rounds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
