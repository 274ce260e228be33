// Package agents implements the built-in DealFlow agents behind the
// uniform runtime contract. The set is closed: the registry is built at
// startup and dispatched through the typed interface, never by string
// lookup.
package agents

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
)

// Registry holds the six phase-bound agents.
type Registry struct {
	Scout      *Scout
	Analyst    *Analyst
	Negotiator *Negotiator
	Contractor *Contractor
	Closer     *Closer
	Portfolio  *Portfolio
}

// New builds the full agent set. log may be nil.
func New(cfg config.Workflow, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		Scout:      NewScout(cfg, defaultLeadSource(), log),
		Analyst:    NewAnalyst(cfg, log),
		Negotiator: NewNegotiator(cfg, log),
		Contractor: NewContractor(cfg, log),
		Closer:     NewCloser(cfg, log),
		Portfolio:  NewPortfolio(log),
	}
}

// ForName resolves a phase-bound agent. Implements service.AgentRegistry.
func (r *Registry) ForName(name agent.Name) agentrt.Agent {
	switch name {
	case agent.NameScout:
		return r.Scout
	case agent.NameAnalyst:
		return r.Analyst
	case agent.NameNegotiator:
		return r.Negotiator
	case agent.NameContractor:
		return r.Contractor
	case agent.NameCloser:
		return r.Closer
	case agent.NamePortfolio:
		return r.Portfolio
	default:
		return nil
	}
}

// newMessage builds a stamped message from an agent.
func newMessage(from agent.Name, t message.Type, text string, priority int, data map[string]any) message.Message {
	return message.Message{
		ID:        uuid.NewString(),
		Type:      t,
		From:      from,
		Text:      text,
		Priority:  priority,
		Data:      data,
		Timestamp: time.Now(),
	}
}
