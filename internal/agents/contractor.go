package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
)

const (
	taskGenerateContracts = "generate_contracts"

	standardTerms = "as-is purchase, 30-day close, 10-day inspection contingency"
)

// Contractor drafts purchase contracts for agreed negotiations. Contracts
// at or above the human escalation threshold are flagged for sign-off.
type Contractor struct {
	cfg config.Workflow
	log *slog.Logger
}

func NewContractor(cfg config.Workflow, log *slog.Logger) *Contractor {
	return &Contractor{cfg: cfg, log: log}
}

func (c *Contractor) Name() agent.Name        { return agent.NameContractor }
func (c *Contractor) AvailableTasks() []string { return []string{taskGenerateContracts} }

func (c *Contractor) ExecuteTask(ctx context.Context, task string, _ map[string]any, st *workflow.State) (agentrt.Result, error) {
	switch task {
	case taskGenerateContracts:
		drafted := c.draft(st)
		return agentrt.Result{Success: true, Data: map[string]any{"drafted": drafted}}, nil
	default:
		return agentrt.Result{Error: "unknown task"}, fmt.Errorf("contractor: unknown task %q", task)
	}
}

func (c *Contractor) ProcessState(_ context.Context, st *workflow.State) (*workflow.State, error) {
	c.draft(st)
	return st, nil
}

func (c *Contractor) draft(st *workflow.State) int {
	drafted := 0
	for id, neg := range st.ActiveNegotiations {
		if neg.Status != "agreed" {
			continue
		}
		d := st.DealByID(id)
		if d == nil {
			delete(st.ActiveNegotiations, id)
			continue
		}
		if err := d.Transition(deal.StatusUnderContract); err != nil {
			c.log.Warn("contract transition failed", "deal", id, "error", err)
			continue
		}

		requiresApproval := neg.Offer >= c.cfg.HumanEscalationThreshold
		st.PendingContracts[id] = workflow.Contract{
			DealID:           id,
			Price:            neg.Offer,
			Terms:            standardTerms,
			RequiresApproval: requiresApproval,
			GeneratedAt:      time.Now(),
		}
		delete(st.ActiveNegotiations, id)
		drafted++

		priority := message.PriorityNormal
		text := fmt.Sprintf("contract drafted for %s at $%.0f", d.Address, neg.Offer)
		if requiresApproval {
			priority = message.PriorityElevated
			text += " (requires human approval)"
		}
		st.AppendMessage(newMessage(agent.NameContractor, message.TypeTaskResponse, text, priority,
			map[string]any{"deal_id": id, "price": neg.Offer, "requires_approval": requiresApproval},
		))
	}

	c.log.Info("contract generation complete", "drafted", drafted)
	return drafted
}
