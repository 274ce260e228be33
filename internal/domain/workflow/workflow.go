// Package workflow defines the shared WorkflowState record and the named
// phases of the deal lifecycle state machine.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/message"
)

// Status represents the lifecycle state of a workflow instance.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusRunning         Status = "running"
	StatusPaused          Status = "paused"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
	StatusHumanEscalation Status = "human_escalation"
)

// Phase names. Every routing predicate must return one of these; an
// unregistered result is a routing error, not a runtime fallback.
const (
	PhaseInitialization       = "initialization"
	PhaseDealDiscovery        = "deal_discovery"
	PhasePropertyAnalysis     = "property_analysis"
	PhaseOutreach             = "outreach"
	PhaseNegotiation          = "negotiation"
	PhaseContractGeneration   = "contract_generation"
	PhaseDueDiligence         = "due_diligence"
	PhaseClosing              = "closing"
	PhasePortfolioIntegration = "portfolio_integration"
	PhaseMonitoring           = "monitoring"
	PhaseHumanEscalation      = "human_escalation"
	PhaseCompletion           = "completion"

	// NextActionEnd is the reserved terminal value for State.NextAction.
	NextActionEnd = "end"
)

// Phases returns the registered phase set in graph order.
func Phases() []string {
	return []string{
		PhaseInitialization,
		PhaseDealDiscovery,
		PhasePropertyAnalysis,
		PhaseOutreach,
		PhaseNegotiation,
		PhaseContractGeneration,
		PhaseDueDiligence,
		PhaseClosing,
		PhasePortfolioIntegration,
		PhaseMonitoring,
		PhaseHumanEscalation,
		PhaseCompletion,
	}
}

// Registered reports whether name is a registered phase.
func Registered(name string) bool {
	for _, p := range Phases() {
		if p == name {
			return true
		}
	}
	return false
}

// Negotiation tracks an active back-and-forth on one deal.
type Negotiation struct {
	DealID       string    `json:"deal_id"`
	Round        int       `json:"round"`
	Offer        float64   `json:"offer"`
	CounterOffer float64   `json:"counter_offer"`
	Status       string    `json:"status"` // "active", "agreed", "stalled"
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contract is a drafted purchase contract awaiting diligence and closing.
type Contract struct {
	DealID           string    `json:"deal_id"`
	Price            float64   `json:"price"`
	Terms            string    `json:"terms"`
	RequiresApproval bool      `json:"requires_approval"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Alert is an informational performance alert raised by the monitor.
type Alert struct {
	Agent  agent.Name `json:"agent"`
	Metric string     `json:"metric"`
	Value  float64    `json:"value"`
	Reason string     `json:"reason"`
	At     time.Time  `json:"at"`
}

// PhaseRecord captures one phase execution for auditing.
type PhaseRecord struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// State is the single shared record of workflow progress. It is owned and
// exclusively mutated by the orchestrator and supervisor for phase/status
// fields; agents mutate only their designated sub-collections (deals,
// negotiations, contracts) during their own phase invocation and append
// messages through the bus.
type State struct {
	WorkflowID   string `json:"workflow_id"`
	Status       Status `json:"status"`
	CurrentPhase string `json:"current_phase"`
	NextAction   string `json:"next_action,omitempty"`

	Deals              []deal.Deal            `json:"deals"` // insertion order = discovery order
	ActiveNegotiations map[string]Negotiation `json:"active_negotiations"`
	PendingContracts   map[string]Contract    `json:"pending_contracts"`
	ClosedDeals        map[string]deal.Deal   `json:"closed_deals"`

	Messages []message.Message              `json:"messages"` // append-only, chronological
	Metrics  map[agent.Name]*agent.Metrics  `json:"metrics"`
	Statuses map[agent.Name]agent.Status    `json:"statuses"`
	Alerts   []Alert                        `json:"alerts"`
	History  []PhaseRecord                  `json:"history"`

	HumanApprovalRequired bool   `json:"human_approval_required"`
	EscalationReason      string `json:"escalation_reason,omitempty"`
	EscalatedFrom         string `json:"escalated_from,omitempty"`

	CompletionReason       string `json:"completion_reason,omitempty"`
	ForcedCompletionReason string `json:"forced_completion_reason,omitempty"`

	Cycles      int            `json:"cycles"`
	RetryCounts map[string]int `json:"retry_counts"` // consecutive failures per phase

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh workflow state in the initialization phase.
func New() *State {
	now := time.Now()
	st := &State{
		WorkflowID:         uuid.NewString(),
		Status:             StatusInitializing,
		CurrentPhase:       PhaseInitialization,
		ActiveNegotiations: make(map[string]Negotiation),
		PendingContracts:   make(map[string]Contract),
		ClosedDeals:        make(map[string]deal.Deal),
		Metrics:            make(map[agent.Name]*agent.Metrics),
		Statuses:           make(map[agent.Name]agent.Status),
		RetryCounts:        make(map[string]int),
		StartedAt:          now,
		UpdatedAt:          now,
	}
	for _, name := range agent.All() {
		st.Metrics[name] = &agent.Metrics{}
		st.Statuses[name] = agent.StatusIdle
	}
	return st
}

// DealByID returns a pointer into the deal list, or nil.
func (s *State) DealByID(id string) *deal.Deal {
	for i := range s.Deals {
		if s.Deals[i].ID == id {
			return &s.Deals[i]
		}
	}
	return nil
}

// OpenDeals returns the count of deals in non-terminal statuses.
func (s *State) OpenDeals() int {
	n := 0
	for i := range s.Deals {
		if s.Deals[i].Open() {
			n++
		}
	}
	return n
}

// CountByStatus returns deal counts keyed by status.
func (s *State) CountByStatus() map[deal.Status]int {
	counts := make(map[deal.Status]int)
	for i := range s.Deals {
		counts[s.Deals[i].Status]++
	}
	return counts
}

// AppendMessage adds a message to the chronological log.
func (s *State) AppendMessage(m message.Message) {
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now()
}

// RecentMessages returns up to limit messages from the tail of the log,
// preserving relative order.
func (s *State) RecentMessages(limit int) []message.Message {
	if limit <= 0 || limit >= len(s.Messages) {
		limit = len(s.Messages)
	}
	return s.Messages[len(s.Messages)-limit:]
}

// MetricsFor returns the metrics record for an agent, creating it if needed.
func (s *State) MetricsFor(name agent.Name) *agent.Metrics {
	m, ok := s.Metrics[name]
	if !ok {
		m = &agent.Metrics{}
		s.Metrics[name] = m
	}
	return m
}

// Snapshot returns a deep copy of the state. Used for checkpointing and
// for rolling back after a failed agent invocation.
func (s *State) Snapshot() *State {
	cp := *s

	cp.Deals = make([]deal.Deal, len(s.Deals))
	copy(cp.Deals, s.Deals)
	for i := range cp.Deals {
		cp.Deals[i].Tags = append([]string(nil), s.Deals[i].Tags...)
	}

	cp.ActiveNegotiations = make(map[string]Negotiation, len(s.ActiveNegotiations))
	for k, v := range s.ActiveNegotiations {
		cp.ActiveNegotiations[k] = v
	}
	cp.PendingContracts = make(map[string]Contract, len(s.PendingContracts))
	for k, v := range s.PendingContracts {
		cp.PendingContracts[k] = v
	}
	cp.ClosedDeals = make(map[string]deal.Deal, len(s.ClosedDeals))
	for k, v := range s.ClosedDeals {
		cp.ClosedDeals[k] = v
	}

	cp.Messages = make([]message.Message, len(s.Messages))
	copy(cp.Messages, s.Messages)

	cp.Metrics = make(map[agent.Name]*agent.Metrics, len(s.Metrics))
	for k, v := range s.Metrics {
		m := *v
		cp.Metrics[k] = &m
	}
	cp.Statuses = make(map[agent.Name]agent.Status, len(s.Statuses))
	for k, v := range s.Statuses {
		cp.Statuses[k] = v
	}

	cp.Alerts = append([]Alert(nil), s.Alerts...)
	cp.History = append([]PhaseRecord(nil), s.History...)

	cp.RetryCounts = make(map[string]int, len(s.RetryCounts))
	for k, v := range s.RetryCounts {
		cp.RetryCounts[k] = v
	}

	return &cp
}
