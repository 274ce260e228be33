package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "dealflow"

// Metrics holds all DealFlow metric instruments.
type Metrics struct {
	PhasesExecuted     metric.Int64Counter
	AgentRuns          metric.Int64Counter
	AgentFailures      metric.Int64Counter
	Escalations        metric.Int64Counter
	WorkflowsCompleted metric.Int64Counter
	OpenConflicts      metric.Int64UpDownCounter
	PhaseDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PhasesExecuted, err = meter.Int64Counter("dealflow.phases.executed",
		metric.WithDescription("Number of phases executed"))
	if err != nil {
		return nil, err
	}

	m.AgentRuns, err = meter.Int64Counter("dealflow.agent.runs",
		metric.WithDescription("Number of agent invocations"))
	if err != nil {
		return nil, err
	}

	m.AgentFailures, err = meter.Int64Counter("dealflow.agent.failures",
		metric.WithDescription("Number of failed agent invocations"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("dealflow.escalations",
		metric.WithDescription("Number of human escalations requested"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsCompleted, err = meter.Int64Counter("dealflow.workflows.completed",
		metric.WithDescription("Number of workflows that reached completion"))
	if err != nil {
		return nil, err
	}

	m.OpenConflicts, err = meter.Int64UpDownCounter("dealflow.conflicts.open",
		metric.WithDescription("Currently unresolved agent conflicts"))
	if err != nil {
		return nil, err
	}

	m.PhaseDuration, err = meter.Float64Histogram("dealflow.phase.duration_seconds",
		metric.WithDescription("Phase execution time in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
