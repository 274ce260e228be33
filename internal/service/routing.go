package service

import (
	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

// routeFunc picks the next phase from the current state. Every route must
// be total: it always returns a registered phase name. An unregistered
// result is treated as a routing error by the orchestrator, never as a
// runtime fallback.
type routeFunc func(st *workflow.State) string

// phaseDef binds one phase to the agent it invokes and its routing
// predicate. Phases with a zero agent name are handled by the
// orchestrator itself (supervisor cycles, escalation, completion).
type phaseDef struct {
	agent agent.Name
	route routeFunc
}

// buildPhases constructs the full phase graph. The set of keys must equal
// workflow.Phases(); the graph is validated at orchestrator construction.
func buildPhases(cfg config.Workflow, engineCfg config.Engine) map[string]phaseDef {
	return map[string]phaseDef{
		workflow.PhaseInitialization: {
			route: consumeNextAction,
		},
		workflow.PhaseDealDiscovery: {
			agent: agent.NameScout,
			route: func(st *workflow.State) string {
				a := Analyze(st, engineCfg.HealthWindow)
				if a.Unanalyzed > 0 {
					return workflow.PhasePropertyAnalysis
				}
				return workflow.PhaseMonitoring
			},
		},
		workflow.PhasePropertyAnalysis: {
			agent: agent.NameAnalyst,
			route: func(st *workflow.State) string {
				a := Analyze(st, engineCfg.HealthWindow)
				switch {
				case a.Unanalyzed > 0:
					return workflow.PhasePropertyAnalysis
				case a.AwaitingOutreach > 0:
					return workflow.PhaseOutreach
				case a.OpenDeals < engineCfg.MinOpenDeals:
					return workflow.PhaseDealDiscovery
				default:
					return workflow.PhaseMonitoring
				}
			},
		},
		workflow.PhaseOutreach: {
			agent: agent.NameNegotiator,
			route: func(st *workflow.State) string {
				a := Analyze(st, engineCfg.HealthWindow)
				switch {
				case a.ActiveNegotiations > 0:
					return workflow.PhaseNegotiation
				case a.AwaitingOutreach > 0:
					return workflow.PhaseOutreach
				default:
					return workflow.PhaseMonitoring
				}
			},
		},
		workflow.PhaseNegotiation: {
			agent: agent.NameNegotiator,
			route: func(st *workflow.State) string {
				agreed, active, stalled := negotiationCounts(st)
				switch {
				case agreed > 0:
					return workflow.PhaseContractGeneration
				case active > 0:
					return workflow.PhaseNegotiation
				case stalled > 0:
					return workflow.PhaseHumanEscalation
				default:
					return workflow.PhaseMonitoring
				}
			},
		},
		workflow.PhaseContractGeneration: {
			agent: agent.NameContractor,
			route: func(st *workflow.State) string {
				for _, c := range st.PendingContracts {
					if c.RequiresApproval {
						return workflow.PhaseHumanEscalation
					}
				}
				if len(st.PendingContracts) > 0 {
					return workflow.PhaseDueDiligence
				}
				return workflow.PhaseNegotiation
			},
		},
		workflow.PhaseDueDiligence: {
			agent: agent.NameCloser,
			route: func(st *workflow.State) string {
				if reopened(st) {
					return workflow.PhaseNegotiation
				}
				if countDeals(st, deal.StatusClosing) > 0 {
					return workflow.PhaseClosing
				}
				return workflow.PhaseMonitoring
			},
		},
		workflow.PhaseClosing: {
			agent: agent.NameCloser,
			route: func(st *workflow.State) string {
				if countDeals(st, deal.StatusClosing) > 0 {
					return workflow.PhaseClosing
				}
				if len(st.ClosedDeals) > 0 {
					return workflow.PhasePortfolioIntegration
				}
				return workflow.PhaseMonitoring
			},
		},
		workflow.PhasePortfolioIntegration: {
			agent: agent.NamePortfolio,
			route: func(st *workflow.State) string {
				return workflow.PhaseMonitoring
			},
		},
		workflow.PhaseMonitoring: {
			route: consumeNextAction,
		},
		workflow.PhaseHumanEscalation: {
			route: func(st *workflow.State) string {
				// Escalation is resolved in the orchestrator loop; this
				// route only covers re-entry after a resume.
				if st.HumanApprovalRequired {
					return workflow.PhaseHumanEscalation
				}
				if workflow.Registered(st.EscalatedFrom) {
					return st.EscalatedFrom
				}
				return workflow.PhaseCompletion
			},
		},
		workflow.PhaseCompletion: {
			route: func(st *workflow.State) string {
				return workflow.PhaseCompletion
			},
		},
	}
}

// consumeNextAction resolves the supervisor's directive, clearing it so a
// stale directive never replays on a later cycle.
func consumeNextAction(st *workflow.State) string {
	na := st.NextAction
	st.NextAction = ""
	switch {
	case na == workflow.NextActionEnd:
		return workflow.PhaseCompletion
	case workflow.Registered(na):
		return na
	default:
		return workflow.PhaseDealDiscovery
	}
}

func negotiationCounts(st *workflow.State) (agreed, active, stalled int) {
	for _, n := range st.ActiveNegotiations {
		switch n.Status {
		case "agreed":
			agreed++
		case "active":
			active++
		case "stalled":
			stalled++
		}
	}
	return
}

func countDeals(st *workflow.State, status deal.Status) int {
	n := 0
	for i := range st.Deals {
		if st.Deals[i].Status == status {
			n++
		}
	}
	return n
}

// reopened reports whether diligence pushed any contracted deal back into
// negotiation.
func reopened(st *workflow.State) bool {
	for i := range st.Deals {
		d := &st.Deals[i]
		if d.Status == deal.StatusInNegotiation {
			if _, ok := st.PendingContracts[d.ID]; ok {
				return true
			}
		}
	}
	return false
}
