package service

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/decision"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

// ConflictKind classifies a detected contention.
type ConflictKind string

const (
	ConflictDealClaim         ConflictKind = "deal_claim"         // two agents touched the same deal in one cycle
	ConflictDecisionContra    ConflictKind = "decision_contra"    // contradictory decisions in one analysis pass
	ConflictResolutionRealloc              = "resource_reallocation"
	ConflictResolutionOverride             = "priority_override"
	ConflictResolutionEscalate             = "escalation"
)

// Conflict is one detected contention between agents or decisions.
type Conflict struct {
	ID         string       `json:"id"`
	WorkflowID string       `json:"workflow_id"`
	Kind       ConflictKind `json:"kind"`
	DealID     string       `json:"deal_id,omitempty"`
	Agents     []agent.Name `json:"agents,omitempty"`
	Reason     string       `json:"reason"`
	DetectedAt time.Time    `json:"detected_at"`

	Resolved   bool   `json:"resolved"`
	Resolution string `json:"resolution,omitempty"`
}

// ConflictResolver detects and resolves contention between concurrently
// active agents. Unresolved conflicts never halt the workflow; they
// accumulate in an open set for monitoring.
type ConflictResolver struct {
	mu   sync.Mutex
	open []Conflict
	log  *slog.Logger
}

// NewConflictResolver creates a resolver. log may be nil.
func NewConflictResolver(log *slog.Logger) *ConflictResolver {
	if log == nil {
		log = slog.Default()
	}
	return &ConflictResolver{log: log}
}

// ScreenDecisions inspects all rule candidates from one analysis pass.
// When two candidates contradict (both terminal, or terminal vs. routing
// at equal-or-higher priority) the preempting one wins; the chosen
// decision is replaced if it lost. Returns the surviving decision.
func (r *ConflictResolver) ScreenDecisions(chosen *decision.Decision, candidates []*decision.Decision) *decision.Decision {
	winner := chosen
	for _, c := range candidates {
		if c == winner || !c.Terminal() {
			continue
		}
		if winner.Terminal() && winner != c {
			conflict := Conflict{
				ID:         uuid.NewString(),
				WorkflowID: winner.WorkflowID,
				Kind:       ConflictDecisionContra,
				Reason:     fmt.Sprintf("terminal decisions %s and %s issued in one pass", winner.Type, c.Type),
				DetectedAt: time.Now(),
			}
			if c.Preempts(winner) {
				winner = c
			}
			conflict.Resolved = true
			conflict.Resolution = ConflictResolutionOverride
			r.record(conflict)
		}
	}
	return winner
}

// DetectDealClaims scans the messages appended during the last phase for
// two distinct agents claiming the same deal, and resolves each claim by
// reallocating the deal to the agent bound to the current phase. Claims
// that name no phase-bound owner escalate instead.
func (r *ConflictResolver) DetectDealClaims(st *workflow.State, sinceIdx int, phaseOwner agent.Name) []Conflict {
	claims := make(map[string][]agent.Name) // dealID -> claiming agents
	if sinceIdx < 0 || sinceIdx > len(st.Messages) {
		sinceIdx = 0
	}
	for _, m := range st.Messages[sinceIdx:] {
		dealID, ok := m.Data["deal_id"].(string)
		if !ok || dealID == "" {
			continue
		}
		if m.Type != message.TypeTaskRequest && m.Type != message.TypeDataShare {
			continue
		}
		seen := false
		for _, a := range claims[dealID] {
			if a == m.From {
				seen = true
				break
			}
		}
		if !seen {
			claims[dealID] = append(claims[dealID], m.From)
		}
	}

	var found []Conflict
	for dealID, agents := range claims {
		if len(agents) < 2 {
			continue
		}
		c := Conflict{
			ID:         uuid.NewString(),
			WorkflowID: st.WorkflowID,
			Kind:       ConflictDealClaim,
			DealID:     dealID,
			Agents:     agents,
			Reason:     fmt.Sprintf("%d agents claimed deal %s in one cycle", len(agents), dealID),
			DetectedAt: time.Now(),
		}
		if ownerIn(phaseOwner, agents) {
			c.Resolved = true
			c.Resolution = ConflictResolutionRealloc
			st.AppendMessage(message.Message{
				ID:        uuid.NewString(),
				Type:      message.TypeCoordination,
				From:      agent.NameSupervisor,
				Text:      fmt.Sprintf("deal %s reallocated to %s", dealID, phaseOwner),
				Priority:  message.PriorityElevated,
				Data:      map[string]any{"deal_id": dealID, "owner": string(phaseOwner)},
				Timestamp: time.Now(),
			})
		} else {
			c.Resolution = ConflictResolutionEscalate
			st.AppendMessage(message.Message{
				ID:        uuid.NewString(),
				Type:      message.TypeEscalation,
				From:      agent.NameSupervisor,
				To:        []agent.Name{agent.NameHumanSupervisor},
				Text:      fmt.Sprintf("unresolvable claim contention on deal %s", dealID),
				Priority:  message.PriorityHigh,
				Data:      map[string]any{"deal_id": dealID},
				Timestamp: time.Now(),
			})
		}
		r.record(c)
		found = append(found, c)
	}
	return found
}

// Open returns a copy of the currently unresolved conflicts.
func (r *ConflictResolver) Open() []Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conflict, 0, len(r.open))
	for _, c := range r.open {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}

func (r *ConflictResolver) record(c Conflict) {
	r.mu.Lock()
	r.open = append(r.open, c)
	if len(r.open) > 256 {
		r.open = r.open[len(r.open)-256:]
	}
	r.mu.Unlock()

	if c.Resolved {
		r.log.Info("conflict resolved", "kind", c.Kind, "deal", c.DealID, "resolution", c.Resolution)
	} else {
		r.log.Warn("conflict unresolved", "kind", c.Kind, "deal", c.DealID, "reason", c.Reason)
	}
}

func ownerIn(owner agent.Name, agents []agent.Name) bool {
	for _, a := range agents {
		if a == owner {
			return true
		}
	}
	return false
}
