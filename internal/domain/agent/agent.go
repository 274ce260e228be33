// Package agent defines the closed set of agent identities and their
// runtime bookkeeping types.
package agent

import "time"

// Name identifies one of the built-in agents. The set is closed: agents
// are registered at startup and dispatched through the runtime contract,
// never looked up by free-form string.
type Name string

const (
	NameScout      Name = "scout"
	NameAnalyst    Name = "analyst"
	NameNegotiator Name = "negotiator"
	NameContractor Name = "contractor"
	NameCloser     Name = "closer"
	NamePortfolio  Name = "portfolio"

	// NameSupervisor is the strategic decision maker consulted during the
	// initialization and monitoring phases. It is not a phase-bound agent.
	NameSupervisor Name = "supervisor"

	// NameHumanSupervisor is the reserved bus recipient for escalations.
	NameHumanSupervisor Name = "human_supervisor"
)

// All returns the phase-bound agents in a fixed order.
func All() []Name {
	return []Name{
		NameScout,
		NameAnalyst,
		NameNegotiator,
		NameContractor,
		NameCloser,
		NamePortfolio,
	}
}

// Valid reports whether n is a known agent or reserved recipient.
func (n Name) Valid() bool {
	switch n {
	case NameScout, NameAnalyst, NameNegotiator, NameContractor,
		NameCloser, NamePortfolio, NameSupervisor, NameHumanSupervisor:
		return true
	}
	return false
}

// Status represents the current state of an agent within one workflow.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// Metrics holds per-agent execution bookkeeping. Updated only by the
// runtime harness; read by the supervisor and the performance monitor.
type Metrics struct {
	Executions   int           `json:"executions"`
	Successes    int           `json:"successes"`
	Failures     int           `json:"failures"`
	AvgExecution time.Duration `json:"avg_execution"`
	LastActivity time.Time     `json:"last_activity"`
}

// RecordSuccess folds a successful execution into the rolling average.
func (m *Metrics) RecordSuccess(d time.Duration) {
	m.Executions++
	m.Successes++
	m.AvgExecution = rollAverage(m.AvgExecution, d, m.Executions)
	m.LastActivity = time.Now()
}

// RecordFailure folds a failed execution into the rolling average.
func (m *Metrics) RecordFailure(d time.Duration) {
	m.Executions++
	m.Failures++
	m.AvgExecution = rollAverage(m.AvgExecution, d, m.Executions)
	m.LastActivity = time.Now()
}

// SuccessRate returns successes/executions, or 1.0 before any execution.
func (m *Metrics) SuccessRate() float64 {
	if m.Executions == 0 {
		return 1.0
	}
	return float64(m.Successes) / float64(m.Executions)
}

func rollAverage(avg, sample time.Duration, n int) time.Duration {
	if n <= 1 {
		return sample
	}
	return avg + (sample-avg)/time.Duration(n)
}
