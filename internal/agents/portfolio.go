package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
)

const (
	taskIntegratePortfolio = "integrate_portfolio"

	tagInPortfolio = "in_portfolio"
)

// Portfolio folds closed deals into the portfolio and publishes a
// summary of total holdings.
type Portfolio struct {
	log *slog.Logger
}

func NewPortfolio(log *slog.Logger) *Portfolio {
	return &Portfolio{log: log}
}

func (p *Portfolio) Name() agent.Name        { return agent.NamePortfolio }
func (p *Portfolio) AvailableTasks() []string { return []string{taskIntegratePortfolio} }

func (p *Portfolio) ExecuteTask(ctx context.Context, task string, _ map[string]any, st *workflow.State) (agentrt.Result, error) {
	switch task {
	case taskIntegratePortfolio:
		added := p.integrate(st)
		return agentrt.Result{Success: true, Data: map[string]any{"integrated": added}}, nil
	default:
		return agentrt.Result{Error: "unknown task"}, fmt.Errorf("portfolio: unknown task %q", task)
	}
}

func (p *Portfolio) ProcessState(_ context.Context, st *workflow.State) (*workflow.State, error) {
	p.integrate(st)
	return st, nil
}

func (p *Portfolio) integrate(st *workflow.State) int {
	added := 0
	var totalValue float64
	for id, closed := range st.ClosedDeals {
		totalValue += closed.EstimatedValue
		d := st.DealByID(id)
		if d == nil || hasTag(d, tagInPortfolio) {
			continue
		}
		d.Tags = append(d.Tags, tagInPortfolio)
		added++
	}

	if added > 0 {
		st.AppendMessage(newMessage(agent.NamePortfolio, message.TypeDataShare,
			fmt.Sprintf("portfolio updated: %d properties, est. value $%.0f", len(st.ClosedDeals), totalValue),
			message.PriorityNormal,
			map[string]any{"holdings": len(st.ClosedDeals), "total_value": totalValue},
		))
	}

	p.log.Info("portfolio integration complete", "added", added, "holdings", len(st.ClosedDeals))
	return added
}
