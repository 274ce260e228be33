package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/decision"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

// Health classifies overall system condition from recent bus traffic.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// Analysis is the situation summary fed to every rule alongside the state.
type Analysis struct {
	DealCounts         map[deal.Status]int `json:"deal_counts"`
	OpenDeals          int                 `json:"open_deals"`
	Unanalyzed         int                 `json:"unanalyzed"`
	AwaitingOutreach   int                 `json:"awaiting_outreach"`
	ActiveNegotiations int                 `json:"active_negotiations"`
	ClosedDeals        int                 `json:"closed_deals"`
	Health             Health              `json:"health"`
}

// Analyze summarizes the workflow state. Health derives from the trailing
// window of messages: critical on any priority-5, degraded on repeated
// priority-4 traffic or standing performance alerts, healthy otherwise.
func Analyze(st *workflow.State, window int) Analysis {
	a := Analysis{
		DealCounts:  st.CountByStatus(),
		OpenDeals:   st.OpenDeals(),
		ClosedDeals: len(st.ClosedDeals),
	}

	for i := range st.Deals {
		d := &st.Deals[i]
		if !d.Analyzed && d.Open() {
			a.Unanalyzed++
		}
		if d.Status == deal.StatusApproved && !d.OutreachInitiated {
			a.AwaitingOutreach++
		}
	}
	for _, n := range st.ActiveNegotiations {
		if n.Status == "active" {
			a.ActiveNegotiations++
		}
	}

	highCount := 0
	critical := false
	for _, m := range st.RecentMessages(window) {
		switch {
		case m.Priority >= message.PriorityCritical:
			critical = true
		case m.Priority == message.PriorityHigh:
			highCount++
		}
	}
	switch {
	case critical:
		a.Health = HealthCritical
	case highCount >= 3 || len(st.Alerts) > 0:
		a.Health = HealthDegraded
	default:
		a.Health = HealthHealthy
	}

	return a
}

// RuleFunc is one routing policy: a pure function over state and analysis
// returning a decision or nil when the rule does not apply.
type RuleFunc func(st *workflow.State, a Analysis) *decision.Decision

// Rule is a named entry in the engine's ordered chain.
type Rule struct {
	Name     string
	Evaluate RuleFunc
}

// Engine evaluates an ordered rule chain against the workflow state.
// First matching rule with sufficient confidence wins; the final fallback
// rule is exempt from the confidence gate so a decision always exists.
type Engine struct {
	cfg   config.Engine
	rules []Rule
}

// Outcome is one engine evaluation: the accepted decision, every rule
// that matched (for conflict screening) and the situation analysis.
type Outcome struct {
	Decision   *decision.Decision
	Candidates []*decision.Decision
	Analysis   Analysis
}

// NewEngine builds an engine with the default rule chain. The critical
// health rule is evaluated ahead of the deal-count rules so a critical
// system always escalates regardless of pipeline shape.
func NewEngine(cfg config.Engine) *Engine {
	e := &Engine{cfg: cfg}
	e.rules = []Rule{
		{Name: "escalate_on_critical_health", Evaluate: e.ruleCriticalHealth},
		{Name: "route_to_scout_low_inventory", Evaluate: e.ruleLowInventory},
		{Name: "route_to_analyst_unanalyzed", Evaluate: e.ruleUnanalyzed},
		{Name: "route_to_negotiator_approved", Evaluate: e.ruleAwaitingOutreach},
		{Name: "end_workflow_closed_out", Evaluate: e.ruleClosedOut},
		{Name: "fallback_scout", Evaluate: e.ruleFallback},
	}
	return e
}

// ReplaceRules swaps the rule chain. Used by tests and custom deployments.
func (e *Engine) ReplaceRules(rules []Rule) { e.rules = rules }

// Decide runs the chain. Deterministic: identical state yields an
// identical decision apart from generated IDs and timestamps.
func (e *Engine) Decide(st *workflow.State) Outcome {
	a := Analyze(st, e.cfg.HealthWindow)
	out := Outcome{Analysis: a}

	for i, r := range e.rules {
		d := r.Evaluate(st, a)
		if d == nil {
			continue
		}
		out.Candidates = append(out.Candidates, d)
		if out.Decision != nil {
			continue
		}
		last := i == len(e.rules)-1
		if last || d.Confidence >= e.cfg.ConfidenceThreshold {
			out.Decision = d
		}
	}

	if out.Decision == nil {
		// The fallback rule is unconditional, so this is unreachable with
		// the default chain; guard against custom chains anyway.
		out.Decision = newDecision(st, decision.TypeRouteToAgent,
			[]agent.Name{agent.NameScout}, "fallback: no rule matched", 0.5, message.PriorityLow)
		out.Candidates = append(out.Candidates, out.Decision)
	}
	return out
}

func (e *Engine) ruleCriticalHealth(st *workflow.State, a Analysis) *decision.Decision {
	if a.Health != HealthCritical {
		return nil
	}
	return newDecision(st, decision.TypeEscalateToHuman,
		[]agent.Name{agent.NameHumanSupervisor},
		"system health critical: priority-5 traffic in trailing window",
		1.0, message.PriorityCritical)
}

func (e *Engine) ruleLowInventory(st *workflow.State, a Analysis) *decision.Decision {
	if a.OpenDeals >= e.cfg.MinOpenDeals {
		return nil
	}
	return newDecision(st, decision.TypeRouteToAgent,
		[]agent.Name{agent.NameScout},
		fmt.Sprintf("only %d open deals, below minimum %d", a.OpenDeals, e.cfg.MinOpenDeals),
		0.85, message.PriorityElevated)
}

func (e *Engine) ruleUnanalyzed(st *workflow.State, a Analysis) *decision.Decision {
	if a.Unanalyzed == 0 {
		return nil
	}
	return newDecision(st, decision.TypeRouteToAgent,
		[]agent.Name{agent.NameAnalyst},
		fmt.Sprintf("%d deals awaiting analysis", a.Unanalyzed),
		0.9, message.PriorityElevated)
}

func (e *Engine) ruleAwaitingOutreach(st *workflow.State, a Analysis) *decision.Decision {
	if a.AwaitingOutreach == 0 {
		return nil
	}
	return newDecision(st, decision.TypeRouteToAgent,
		[]agent.Name{agent.NameNegotiator},
		fmt.Sprintf("%d approved deals awaiting outreach", a.AwaitingOutreach),
		0.92, message.PriorityElevated)
}

func (e *Engine) ruleClosedOut(st *workflow.State, a Analysis) *decision.Decision {
	if a.ClosedDeals == 0 || a.ActiveNegotiations > 0 {
		return nil
	}
	return newDecision(st, decision.TypeEndWorkflow, nil,
		fmt.Sprintf("%d deals closed and no negotiations remain active", a.ClosedDeals),
		0.95, message.PriorityHigh)
}

func (e *Engine) ruleFallback(st *workflow.State, _ Analysis) *decision.Decision {
	return newDecision(st, decision.TypeRouteToAgent,
		[]agent.Name{agent.NameScout},
		"fallback: continue sourcing deals",
		0.5, message.PriorityLow)
}

func newDecision(st *workflow.State, t decision.Type, targets []agent.Name, reasoning string, confidence float64, priority int) *decision.Decision {
	return &decision.Decision{
		ID:         uuid.NewString(),
		WorkflowID: st.WorkflowID,
		Type:       t,
		Targets:    targets,
		Reasoning:  reasoning,
		Confidence: confidence,
		Priority:   priority,
		CreatedAt:  time.Now(),
	}
}
