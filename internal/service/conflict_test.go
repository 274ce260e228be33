package service

import (
	"context"
	"testing"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/decision"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

func TestScreenDecisionsEmergencyStopWins(t *testing.T) {
	st := workflow.New()
	r := NewConflictResolver(nil)

	end := newDecision(st, decision.TypeEndWorkflow, nil, "done", 0.95, message.PriorityHigh)
	stop := newDecision(st, decision.TypeEmergencyStop, nil, "abort", 0.9, message.PriorityElevated)

	winner := r.ScreenDecisions(end, []*decision.Decision{end, stop})
	if winner.Type != decision.TypeEmergencyStop {
		t.Fatalf("winner = %s, want emergency stop", winner.Type)
	}

	open := r.Open()
	for _, c := range open {
		if c.Kind == ConflictDecisionContra {
			t.Fatal("decision conflict must be recorded as resolved")
		}
	}
}

func TestScreenDecisionsNoConflictPassesThrough(t *testing.T) {
	st := workflow.New()
	r := NewConflictResolver(nil)

	route := newDecision(st, decision.TypeRouteToAgent, []agent.Name{agent.NameScout}, "source", 0.85, message.PriorityElevated)
	winner := r.ScreenDecisions(route, []*decision.Decision{route})
	if winner != route {
		t.Fatal("single candidate must pass through unchanged")
	}
}

func TestDetectDealClaimsReallocatesToPhaseOwner(t *testing.T) {
	st := workflow.New()
	r := NewConflictResolver(nil)

	base := len(st.Messages)
	for _, from := range []agent.Name{agent.NameNegotiator, agent.NameContractor} {
		st.AppendMessage(message.Message{
			Type:     message.TypeTaskRequest,
			From:     from,
			Text:     "claiming",
			Priority: message.PriorityNormal,
			Data:     map[string]any{"deal_id": "d1"},
		})
	}

	found := r.DetectDealClaims(st, base, agent.NameNegotiator)
	if len(found) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(found))
	}
	c := found[0]
	if !c.Resolved || c.Resolution != ConflictResolutionRealloc {
		t.Fatalf("conflict = %+v, want resolved by reallocation", c)
	}

	last := st.Messages[len(st.Messages)-1]
	if last.Type != message.TypeCoordination {
		t.Fatalf("last message type = %s, want coordination", last.Type)
	}
}

func TestDetectDealClaimsEscalatesWithoutOwner(t *testing.T) {
	st := workflow.New()
	r := NewConflictResolver(nil)

	base := len(st.Messages)
	for _, from := range []agent.Name{agent.NameScout, agent.NameAnalyst} {
		st.AppendMessage(message.Message{
			Type:     message.TypeDataShare,
			From:     from,
			Priority: message.PriorityNormal,
			Data:     map[string]any{"deal_id": "d2"},
		})
	}

	found := r.DetectDealClaims(st, base, agent.NameCloser)
	if len(found) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(found))
	}
	if found[0].Resolved {
		t.Fatal("ownerless claim contention must stay unresolved")
	}
	if got := len(r.Open()); got != 1 {
		t.Fatalf("open conflicts = %d, want 1", got)
	}
}

func TestDetectDealClaimsIgnoresSingleClaimant(t *testing.T) {
	st := workflow.New()
	r := NewConflictResolver(nil)

	base := len(st.Messages)
	st.AppendMessage(message.Message{
		Type:     message.TypeTaskRequest,
		From:     agent.NameNegotiator,
		Priority: message.PriorityNormal,
		Data:     map[string]any{"deal_id": "d3"},
	})
	st.AppendMessage(message.Message{
		Type:     message.TypeTaskRequest,
		From:     agent.NameNegotiator,
		Priority: message.PriorityNormal,
		Data:     map[string]any{"deal_id": "d3"},
	})

	if found := r.DetectDealClaims(st, base, agent.NameNegotiator); len(found) != 0 {
		t.Fatalf("conflicts = %d, want 0 for repeated claims by one agent", len(found))
	}
}

func TestSupervisorCycleExecutesAndAudits(t *testing.T) {
	store := newMemStore()
	sup := NewSupervisor(testEngine(), NewConflictResolver(nil), nil, store, nil, nil)

	st := workflow.New()
	d := sup.Cycle(context.Background(), st)

	if !d.Executed {
		t.Fatal("decision must be marked executed")
	}
	if st.NextAction != workflow.PhaseDealDiscovery {
		t.Fatalf("next action = %s, want deal_discovery", st.NextAction)
	}

	audited, err := sup.DecisionHistory(context.Background(), st.WorkflowID, 10)
	if err != nil {
		t.Fatalf("DecisionHistory: %v", err)
	}
	if len(audited) != 1 || audited[0].ID != d.ID {
		t.Fatalf("audit trail = %+v, want the executed decision", audited)
	}
}

func TestSupervisorExecuteCoordinationSetsNextAction(t *testing.T) {
	sup := NewSupervisor(testEngine(), nil, nil, nil, nil, nil)
	st := workflow.New()

	d := newDecision(st, decision.TypeCoordinateAgents, []agent.Name{agent.NameNegotiator}, "sync outreach", 0.9, message.PriorityElevated)
	sup.Execute(context.Background(), st, d)

	if st.NextAction != workflow.PhaseOutreach {
		t.Fatalf("next action = %s, want outreach", st.NextAction)
	}
	if !d.Executed {
		t.Fatal("decision must be marked executed")
	}
}

func TestSupervisorEmergencyStopSetsErrorStatus(t *testing.T) {
	sup := NewSupervisor(testEngine(), nil, nil, nil, nil, nil)
	st := workflow.New()

	sup.Execute(context.Background(), st, EmergencyStop(st, "credit line pulled"))

	if st.Status != workflow.StatusError {
		t.Fatalf("status = %s, want error", st.Status)
	}
	if st.NextAction != workflow.NextActionEnd {
		t.Fatalf("next action = %s, want end", st.NextAction)
	}
	if st.ForcedCompletionReason == "" {
		t.Fatal("forced completion reason must be set")
	}
}
