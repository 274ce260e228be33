package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/decision"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/checkpoint"
	"github.com/Strob0t/DealFlow/internal/port/messagebus"
)

// Supervisor composes the decision engine, the conflict resolver and the
// performance monitor into one per-cycle decision, applies it to shared
// state synchronously and appends it to the audit trail.
type Supervisor struct {
	engine   *Engine
	resolver *ConflictResolver
	monitor  *Monitor
	store    checkpoint.Store
	bus      messagebus.Bus
	log      *slog.Logger
}

// NewSupervisor wires the supervisor. store and bus may be nil in tests.
func NewSupervisor(engine *Engine, resolver *ConflictResolver, monitor *Monitor, store checkpoint.Store, bus messagebus.Bus, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		engine:   engine,
		resolver: resolver,
		monitor:  monitor,
		store:    store,
		bus:      bus,
		log:      log,
	}
}

// Cycle runs one supervision pass: analyze, decide, screen candidates
// for contradictions, execute against state, audit. The returned decision
// is already executed; NextAction on the state reflects it.
func (s *Supervisor) Cycle(ctx context.Context, st *workflow.State) *decision.Decision {
	out := s.engine.Decide(st)
	d := out.Decision
	if s.resolver != nil {
		d = s.resolver.ScreenDecisions(d, out.Candidates)
	}

	s.Execute(ctx, st, d)

	s.log.Info("supervisor cycle",
		"workflow", st.WorkflowID,
		"decision", d.Type,
		"confidence", d.Confidence,
		"health", out.Analysis.Health,
		"open_deals", out.Analysis.OpenDeals,
	)
	return d
}

// Execute applies a decision to state, marks it executed and appends it
// to the persistent audit trail. Execution is synchronous: the state
// reflects the decision before the next phase begins.
func (s *Supervisor) Execute(ctx context.Context, st *workflow.State, d *decision.Decision) {
	switch d.Type {
	case decision.TypeRouteToAgent:
		st.NextAction = phaseForAgent(target(d))
		d.Result = "routed to " + st.NextAction

	case decision.TypeCoordinateAgents:
		st.NextAction = phaseForAgent(target(d))
		d.Result = "coordinating via " + st.NextAction
		if s.bus != nil {
			s.bus.Publish(ctx, message.Message{
				Type:     message.TypeCoordination,
				From:     agent.NameSupervisor,
				To:       d.Targets,
				Text:     d.Reasoning,
				Priority: d.Priority,
			})
		}

	case decision.TypeEscalateToHuman:
		st.NextAction = workflow.PhaseHumanEscalation
		st.EscalationReason = d.Reasoning
		d.Result = "escalated to human supervisor"

	case decision.TypeEmergencyStop:
		st.NextAction = workflow.NextActionEnd
		st.Status = workflow.StatusError
		st.ForcedCompletionReason = "emergency stop: " + d.Reasoning
		d.Result = "workflow stopped"

	case decision.TypeEndWorkflow:
		st.NextAction = workflow.NextActionEnd
		st.CompletionReason = d.Reasoning
		d.Result = "workflow ended"
	}

	d.Executed = true
	d.ExecutedAt = time.Now()

	st.AppendMessage(message.Message{
		ID:        uuid.NewString(),
		Type:      message.TypeStatusUpdate,
		From:      agent.NameSupervisor,
		Text:      fmt.Sprintf("decision %s: %s", d.Type, d.Reasoning),
		Priority:  clampPriority(d.Priority),
		Data:      map[string]any{"decision_id": d.ID, "next_action": st.NextAction},
		Timestamp: time.Now(),
	})

	if s.store != nil {
		if err := s.store.AppendDecision(ctx, d); err != nil {
			s.log.Error("append decision audit", "workflow", st.WorkflowID, "error", err)
		}
	}
}

// DecisionHistory returns up to limit audited decisions, oldest first.
func (s *Supervisor) DecisionHistory(ctx context.Context, workflowID string, limit int) ([]decision.Decision, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListDecisions(ctx, workflowID, limit)
}

// PerformanceSummary returns the monitor's aggregated per-agent view.
func (s *Supervisor) PerformanceSummary() []AgentSummary {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Summary()
}

// EmergencyStop builds an operator-initiated stop decision. Callers pass
// it to Execute against the target workflow's state.
func EmergencyStop(st *workflow.State, reason string) *decision.Decision {
	return newDecision(st, decision.TypeEmergencyStop, nil, reason, 1.0, message.PriorityCritical)
}

func target(d *decision.Decision) agent.Name {
	if len(d.Targets) == 0 {
		return agent.NameScout
	}
	return d.Targets[0]
}

// phaseForAgent maps a routing target to the phase that invokes it.
func phaseForAgent(name agent.Name) string {
	switch name {
	case agent.NameScout:
		return workflow.PhaseDealDiscovery
	case agent.NameAnalyst:
		return workflow.PhasePropertyAnalysis
	case agent.NameNegotiator:
		return workflow.PhaseOutreach
	case agent.NameContractor:
		return workflow.PhaseContractGeneration
	case agent.NameCloser:
		return workflow.PhaseClosing
	case agent.NamePortfolio:
		return workflow.PhasePortfolioIntegration
	case agent.NameHumanSupervisor:
		return workflow.PhaseHumanEscalation
	default:
		return workflow.PhaseDealDiscovery
	}
}

func clampPriority(p int) int {
	if p < message.PriorityLow {
		return message.PriorityLow
	}
	if p > message.PriorityCritical {
		return message.PriorityCritical
	}
	return p
}
