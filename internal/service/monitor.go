package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/broadcast"
)

// AgentSummary is one agent's aggregated performance view.
type AgentSummary struct {
	Agent        agent.Name    `json:"agent"`
	Executions   int           `json:"executions"`
	SuccessRate  float64       `json:"success_rate"`
	AvgExecution time.Duration `json:"avg_execution"`
	LastActivity time.Time     `json:"last_activity"`
}

// Monitor aggregates per-agent execution metrics across all workflow
// instances and raises informational alerts when an agent's average
// execution time exceeds the ceiling or its success rate falls below the
// floor. Safe for concurrent use from independent workflow goroutines.
type Monitor struct {
	cfg  config.Monitor
	log  *slog.Logger
	sink broadcast.Broadcaster

	mu          sync.Mutex
	stats       map[agent.Name]*agent.Metrics
	pending     []workflow.Alert
	lastAlerted map[agent.Name]time.Time
}

// NewMonitor creates a monitor. sink and log may be nil.
func NewMonitor(cfg config.Monitor, sink broadcast.Broadcaster, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		cfg:         cfg,
		log:         log,
		sink:        sink,
		stats:       make(map[agent.Name]*agent.Metrics),
		lastAlerted: make(map[agent.Name]time.Time),
	}
}

// Record folds one agent execution into the global aggregates. The
// per-agent update is the only cross-instance shared mutation and is
// guarded by the monitor lock.
func (m *Monitor) Record(name agent.Name, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[name]
	if !ok {
		s = &agent.Metrics{}
		m.stats[name] = s
	}
	if success {
		s.RecordSuccess(d)
	} else {
		s.RecordFailure(d)
	}
}

// Sweep evaluates thresholds and returns newly raised alerts, with a
// per-agent cooldown so a slow agent does not alert on every tick.
func (m *Monitor) Sweep() []workflow.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var raised []workflow.Alert
	for name, s := range m.stats {
		if s.Executions == 0 {
			continue
		}
		if now.Sub(m.lastAlerted[name]) < m.cfg.AlertCooldown {
			continue
		}
		if s.AvgExecution > m.cfg.MaxAvgExecution {
			raised = append(raised, workflow.Alert{
				Agent:  name,
				Metric: "avg_execution",
				Value:  s.AvgExecution.Seconds(),
				Reason: "average execution time above ceiling",
				At:     now,
			})
			m.lastAlerted[name] = now
		}
		if rate := s.SuccessRate(); rate < m.cfg.MinSuccessRate {
			raised = append(raised, workflow.Alert{
				Agent:  name,
				Metric: "success_rate",
				Value:  rate,
				Reason: "success rate below floor",
				At:     now,
			})
			m.lastAlerted[name] = now
		}
	}
	m.pending = append(m.pending, raised...)
	return raised
}

// DrainPending returns alerts raised since the last drain. The
// orchestrator folds them into workflow state at phase boundaries.
func (m *Monitor) DrainPending() []workflow.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// Summary returns the aggregated view for every tracked agent.
func (m *Monitor) Summary() []AgentSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AgentSummary, 0, len(m.stats))
	for _, name := range agent.All() {
		s, ok := m.stats[name]
		if !ok {
			continue
		}
		out = append(out, AgentSummary{
			Agent:        name,
			Executions:   s.Executions,
			SuccessRate:  s.SuccessRate(),
			AvgExecution: s.AvgExecution,
			LastActivity: s.LastActivity,
		})
	}
	return out
}

// StartLoop runs the periodic sweep until ctx is cancelled. Alerts are
// pushed to the sink; state folding happens separately via DrainPending.
func (m *Monitor) StartLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.log.Debug("monitor loop stopped")
				return
			case <-ticker.C:
				for _, a := range m.Sweep() {
					m.log.Warn("performance alert", "agent", a.Agent, "metric", a.Metric, "value", a.Value)
					if m.sink != nil {
						m.sink.BroadcastEvent(ctx, broadcast.EventPerformanceAlert, broadcast.AlertEvent{
							Agent:  string(a.Agent),
							Metric: a.Metric,
							Value:  a.Value,
							Reason: a.Reason,
						})
					}
				}
			}
		}
	}()
}
