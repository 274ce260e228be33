package service

import (
	"testing"
	"time"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

// stateVariants builds a spread of reachable states exercising every
// routing branch: empty pipelines, unanalyzed deals, approved deals,
// negotiations in every status, contracts with and without approval
// flags, closing and closed deals, stale NextAction values.
func stateVariants() []*workflow.State {
	var out []*workflow.State

	add := func(mutate func(st *workflow.State)) {
		st := workflow.New()
		mutate(st)
		out = append(out, st)
	}

	add(func(*workflow.State) {})
	add(func(st *workflow.State) { st.NextAction = workflow.NextActionEnd })
	add(func(st *workflow.State) { st.NextAction = workflow.PhaseOutreach })
	add(func(st *workflow.State) { st.NextAction = "not_a_phase" })
	add(func(st *workflow.State) { addDeal(st, deal.StatusDiscovered, false, false) })
	add(func(st *workflow.State) {
		for range 5 {
			addDeal(st, deal.StatusAnalyzed, true, false)
		}
	})
	add(func(st *workflow.State) { addDeal(st, deal.StatusApproved, true, false) })
	add(func(st *workflow.State) {
		d := addDeal(st, deal.StatusOutreachInitiated, true, true)
		st.ActiveNegotiations[d.ID] = workflow.Negotiation{DealID: d.ID, Status: "active"}
	})
	add(func(st *workflow.State) {
		d := addDeal(st, deal.StatusInNegotiation, true, true)
		st.ActiveNegotiations[d.ID] = workflow.Negotiation{DealID: d.ID, Status: "agreed"}
	})
	add(func(st *workflow.State) {
		d := addDeal(st, deal.StatusInNegotiation, true, true)
		st.ActiveNegotiations[d.ID] = workflow.Negotiation{DealID: d.ID, Status: "stalled"}
	})
	add(func(st *workflow.State) {
		d := addDeal(st, deal.StatusUnderContract, true, true)
		st.PendingContracts[d.ID] = workflow.Contract{DealID: d.ID, Price: 600_000, RequiresApproval: true}
	})
	add(func(st *workflow.State) {
		d := addDeal(st, deal.StatusUnderContract, true, true)
		st.PendingContracts[d.ID] = workflow.Contract{DealID: d.ID, Price: 90_000}
	})
	add(func(st *workflow.State) {
		d := addDeal(st, deal.StatusInNegotiation, true, true)
		st.PendingContracts[d.ID] = workflow.Contract{DealID: d.ID, Price: 90_000}
	})
	add(func(st *workflow.State) { addDeal(st, deal.StatusClosing, true, true) })
	add(func(st *workflow.State) {
		d := addDeal(st, deal.StatusClosed, true, true)
		st.ClosedDeals[d.ID] = *d
	})
	add(func(st *workflow.State) {
		st.HumanApprovalRequired = true
		st.EscalatedFrom = workflow.PhaseNegotiation
	})
	add(func(st *workflow.State) {
		st.HumanApprovalRequired = false
		st.EscalatedFrom = "gone_phase"
	})
	add(func(st *workflow.State) { st.StartedAt = time.Now().Add(-2 * time.Hour) })

	return out
}

func TestRoutingTotality(t *testing.T) {
	defaults := config.Defaults()
	phases := buildPhases(defaults.Workflow, defaults.Engine)

	for _, phase := range workflow.Phases() {
		def, ok := phases[phase]
		if !ok {
			t.Fatalf("phase %s missing from graph", phase)
		}
		for i, st := range stateVariants() {
			st.CurrentPhase = phase
			next := def.route(st)
			if !workflow.Registered(next) {
				t.Errorf("phase %s variant %d routed to unregistered %q", phase, i, next)
			}
		}
	}
}

func TestInitializationRoutesToDiscoveryWhenEmpty(t *testing.T) {
	defaults := config.Defaults()
	phases := buildPhases(defaults.Workflow, defaults.Engine)

	st := workflow.New()
	if next := phases[workflow.PhaseInitialization].route(st); next != workflow.PhaseDealDiscovery {
		t.Fatalf("next = %s, want %s", next, workflow.PhaseDealDiscovery)
	}
}

func TestDiscoveryRoutesToAnalysisWithUnanalyzedDeals(t *testing.T) {
	defaults := config.Defaults()
	phases := buildPhases(defaults.Workflow, defaults.Engine)

	st := workflow.New()
	for range 3 {
		addDeal(st, deal.StatusDiscovered, false, false)
	}
	if next := phases[workflow.PhaseDealDiscovery].route(st); next != workflow.PhasePropertyAnalysis {
		t.Fatalf("next = %s, want %s", next, workflow.PhasePropertyAnalysis)
	}
}

func TestNextActionIsConsumedOnce(t *testing.T) {
	st := workflow.New()
	st.NextAction = workflow.PhaseOutreach

	if next := consumeNextAction(st); next != workflow.PhaseOutreach {
		t.Fatalf("next = %s, want outreach", next)
	}
	if st.NextAction != "" {
		t.Fatal("NextAction must be cleared after consumption")
	}
	// A second consult without a fresh directive falls back to sourcing.
	if next := consumeNextAction(st); next != workflow.PhaseDealDiscovery {
		t.Fatalf("next = %s, want %s", next, workflow.PhaseDealDiscovery)
	}
}

func TestContractRouteEscalatesOnApprovalFlag(t *testing.T) {
	defaults := config.Defaults()
	phases := buildPhases(defaults.Workflow, defaults.Engine)

	st := workflow.New()
	d := addDeal(st, deal.StatusUnderContract, true, true)
	st.PendingContracts[d.ID] = workflow.Contract{DealID: d.ID, Price: 750_000, RequiresApproval: true}

	if next := phases[workflow.PhaseContractGeneration].route(st); next != workflow.PhaseHumanEscalation {
		t.Fatalf("next = %s, want %s", next, workflow.PhaseHumanEscalation)
	}
}
