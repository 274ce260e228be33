package agents

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

func testRegistry() *Registry {
	return New(config.Defaults().Workflow, testLog())
}

func testLog() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func seedDeal(st *workflow.State, id string, status deal.Status, asking, value, rehab float64) *deal.Deal {
	st.Deals = append(st.Deals, deal.Deal{
		ID:             id,
		Address:        id + " Test St",
		AskingPrice:    asking,
		EstimatedValue: value,
		EstimatedRehab: rehab,
		Status:         status,
		Analyzed:       status != deal.StatusDiscovered,
	})
	return &st.Deals[len(st.Deals)-1]
}

func TestRegistryResolvesAllPhaseBoundAgents(t *testing.T) {
	r := testRegistry()
	for _, name := range agent.All() {
		ag := r.ForName(name)
		if ag == nil {
			t.Fatalf("no agent for %s", name)
		}
		if ag.Name() != name {
			t.Fatalf("agent name = %s, want %s", ag.Name(), name)
		}
		if len(ag.AvailableTasks()) == 0 {
			t.Fatalf("agent %s reports no tasks", name)
		}
	}
	if r.ForName(agent.NameSupervisor) != nil {
		t.Fatal("supervisor is not a phase-bound agent")
	}
}

func TestScoutFillsPipelineUpToCeiling(t *testing.T) {
	cfg := config.Defaults().Workflow
	cfg.MaxConcurrentDeals = 3
	s := NewScout(cfg, defaultLeadSource(), testLog())

	st := workflow.New()
	st.CurrentPhase = workflow.PhaseDealDiscovery
	if _, err := s.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("ProcessState: %v", err)
	}

	if got := st.OpenDeals(); got != 3 {
		t.Fatalf("open deals = %d, want 3", got)
	}
	for i := range st.Deals {
		if st.Deals[i].Status != deal.StatusDiscovered {
			t.Fatalf("deal status = %s, want discovered", st.Deals[i].Status)
		}
	}

	// A second pass with a full pipeline must not add duplicates.
	if _, err := s.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("second ProcessState: %v", err)
	}
	if got := len(st.Deals); got != 3 {
		t.Fatalf("deals after refill = %d, want 3", got)
	}
}

func TestAnalystApprovesAboveThresholdRejectsBelow(t *testing.T) {
	a := NewAnalyst(config.Defaults().Workflow, testLog())

	st := workflow.New()
	// Margin (240-185-22)/240 = 0.1375, below the 0.15 threshold.
	thin := seedDeal(st, "thin", deal.StatusDiscovered, 185_000, 240_000, 22_000)
	thin.Analyzed = false
	// Margin (300-200-20)/300 = 0.266, comfortably above.
	fat := seedDeal(st, "fat", deal.StatusDiscovered, 200_000, 300_000, 20_000)
	fat.Analyzed = false
	// Re-fetch: the second append may have reallocated st.Deals.
	thin = st.DealByID("thin")

	if _, err := a.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("ProcessState: %v", err)
	}

	if thin.Status != deal.StatusRejected {
		t.Fatalf("thin margin deal = %s, want rejected", thin.Status)
	}
	if fat.Status != deal.StatusApproved {
		t.Fatalf("fat margin deal = %s, want approved", fat.Status)
	}
	if !fat.Analyzed || !thin.Analyzed {
		t.Fatal("both deals must be marked analyzed")
	}
	if !hasTag(fat, tagHighMargin) {
		t.Fatal("fat margin deal must carry the high margin tag")
	}
}

func TestNegotiatorOutreachCreatesNegotiations(t *testing.T) {
	n := NewNegotiator(config.Defaults().Workflow, testLog())

	st := workflow.New()
	st.CurrentPhase = workflow.PhaseOutreach
	seedDeal(st, "a1", deal.StatusApproved, 100_000, 140_000, 10_000)
	seedDeal(st, "a2", deal.StatusApproved, 200_000, 260_000, 15_000)

	if _, err := n.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("ProcessState: %v", err)
	}

	if got := len(st.ActiveNegotiations); got != 2 {
		t.Fatalf("negotiations = %d, want 2", got)
	}
	for i := range st.Deals {
		d := &st.Deals[i]
		if d.Status != deal.StatusOutreachInitiated || !d.OutreachInitiated {
			t.Fatalf("deal %s = %s outreach=%v, want outreach initiated", d.ID, d.Status, d.OutreachInitiated)
		}
	}
	neg := st.ActiveNegotiations["a1"]
	if neg.Offer >= 100_000 {
		t.Fatalf("opening offer = %.0f, want below asking", neg.Offer)
	}
}

func TestNegotiatorRoundsConvergeToAgreement(t *testing.T) {
	n := NewNegotiator(config.Defaults().Workflow, testLog())

	st := workflow.New()
	st.CurrentPhase = workflow.PhaseNegotiation
	d := seedDeal(st, "n1", deal.StatusOutreachInitiated, 100_000, 140_000, 10_000)
	d.OutreachInitiated = true
	st.ActiveNegotiations[d.ID] = workflow.Negotiation{
		DealID: d.ID, Offer: 85_000, Status: "active",
	}

	for range maxNegotiationRounds {
		if st.ActiveNegotiations[d.ID].Status != "active" {
			break
		}
		if _, err := n.ProcessState(context.Background(), st); err != nil {
			t.Fatalf("ProcessState: %v", err)
		}
	}

	neg := st.ActiveNegotiations[d.ID]
	if neg.Status != "agreed" {
		t.Fatalf("negotiation status = %s, want agreed", neg.Status)
	}
	if d.Status != deal.StatusInNegotiation {
		t.Fatalf("deal status = %s, want in_negotiation", d.Status)
	}
}

func TestContractorFlagsExpensiveContractsForApproval(t *testing.T) {
	c := NewContractor(config.Defaults().Workflow, testLog())

	st := workflow.New()
	cheap := seedDeal(st, "c1", deal.StatusInNegotiation, 100_000, 140_000, 10_000)
	pricey := seedDeal(st, "c2", deal.StatusInNegotiation, 600_000, 800_000, 50_000)
	// Re-fetch: the second append may have reallocated st.Deals.
	cheap = st.DealByID("c1")
	st.ActiveNegotiations[cheap.ID] = workflow.Negotiation{DealID: cheap.ID, Offer: 95_000, Status: "agreed"}
	st.ActiveNegotiations[pricey.ID] = workflow.Negotiation{DealID: pricey.ID, Offer: 580_000, Status: "agreed"}

	if _, err := c.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("ProcessState: %v", err)
	}

	if len(st.ActiveNegotiations) != 0 {
		t.Fatalf("negotiations remaining = %d, want 0", len(st.ActiveNegotiations))
	}
	if st.PendingContracts[cheap.ID].RequiresApproval {
		t.Fatal("cheap contract must not require approval")
	}
	if !st.PendingContracts[pricey.ID].RequiresApproval {
		t.Fatal("contract above threshold must require approval")
	}
	if cheap.Status != deal.StatusUnderContract || pricey.Status != deal.StatusUnderContract {
		t.Fatal("contracted deals must be under contract")
	}
}

func TestCloserDiligenceReopensRiskyDealOnce(t *testing.T) {
	cl := NewCloser(config.Defaults().Workflow, testLog())

	st := workflow.New()
	st.CurrentPhase = workflow.PhaseDueDiligence
	// Rehab 30% of value: flagged on first pass.
	risky := seedDeal(st, "r1", deal.StatusUnderContract, 100_000, 150_000, 45_000)
	st.PendingContracts[risky.ID] = workflow.Contract{DealID: risky.ID, Price: 95_000}

	if _, err := cl.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("ProcessState: %v", err)
	}
	if risky.Status != deal.StatusInNegotiation {
		t.Fatalf("risky deal = %s, want reopened negotiation", risky.Status)
	}
	if _, ok := st.PendingContracts[risky.ID]; ok {
		t.Fatal("reopened deal must lose its pending contract")
	}
	if _, ok := st.ActiveNegotiations[risky.ID]; !ok {
		t.Fatal("reopened deal must get an active negotiation")
	}

	// After renegotiation and a fresh contract the same risk passes through.
	delete(st.ActiveNegotiations, risky.ID)
	if err := risky.Transition(deal.StatusUnderContract); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	st.PendingContracts[risky.ID] = workflow.Contract{DealID: risky.ID, Price: 90_000}

	if _, err := cl.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("second ProcessState: %v", err)
	}
	if risky.Status != deal.StatusClosing {
		t.Fatalf("deal after second diligence = %s, want closing", risky.Status)
	}
}

func TestCloserSettlesClosingDeals(t *testing.T) {
	cl := NewCloser(config.Defaults().Workflow, testLog())

	st := workflow.New()
	st.CurrentPhase = workflow.PhaseClosing
	d := seedDeal(st, "s1", deal.StatusClosing, 100_000, 140_000, 10_000)
	st.PendingContracts[d.ID] = workflow.Contract{DealID: d.ID, Price: 95_000}

	if _, err := cl.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("ProcessState: %v", err)
	}

	if d.Status != deal.StatusClosed {
		t.Fatalf("deal = %s, want closed", d.Status)
	}
	if _, ok := st.ClosedDeals[d.ID]; !ok {
		t.Fatal("closed deal must be recorded in the closed set")
	}
	if _, ok := st.PendingContracts[d.ID]; ok {
		t.Fatal("settled contract must be removed")
	}
}

func TestPortfolioIntegratesClosedDealsOnce(t *testing.T) {
	p := NewPortfolio(testLog())

	st := workflow.New()
	d := seedDeal(st, "p1", deal.StatusClosed, 100_000, 140_000, 10_000)
	st.ClosedDeals[d.ID] = *d

	if _, err := p.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("ProcessState: %v", err)
	}
	if !hasTag(d, tagInPortfolio) {
		t.Fatal("closed deal must be tagged in portfolio")
	}

	msgs := len(st.Messages)
	if _, err := p.ProcessState(context.Background(), st); err != nil {
		t.Fatalf("second ProcessState: %v", err)
	}
	if len(st.Messages) != msgs {
		t.Fatal("repeat integration must not re-announce holdings")
	}
}
