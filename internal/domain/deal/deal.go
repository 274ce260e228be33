// Package deal defines the Deal domain entity and its lifecycle.
package deal

import (
	"fmt"
	"time"

	"github.com/Strob0t/DealFlow/internal/domain"
)

// Status represents a deal's position in the acquisition lifecycle.
type Status string

const (
	StatusDiscovered        Status = "discovered"
	StatusAnalyzing         Status = "analyzing"
	StatusAnalyzed          Status = "analyzed"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusOutreachInitiated Status = "outreach_initiated"
	StatusInNegotiation     Status = "in_negotiation"
	StatusUnderContract     Status = "under_contract"
	StatusClosing           Status = "closing"
	StatusClosed            Status = "closed"
	StatusDead              Status = "dead"
)

// IsTerminal reports whether the status is absorbing.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusClosed || s == StatusDead
}

// forward lists the allowed next statuses for each status. Transitions
// are monotonic except the explicit renegotiation loop-back
// under_contract -> in_negotiation. Every non-terminal status may also
// move to dead.
var forward = map[Status][]Status{
	StatusDiscovered:        {StatusAnalyzing, StatusAnalyzed},
	StatusAnalyzing:         {StatusAnalyzed},
	StatusAnalyzed:          {StatusApproved, StatusRejected},
	StatusApproved:          {StatusOutreachInitiated},
	StatusOutreachInitiated: {StatusInNegotiation},
	StatusInNegotiation:     {StatusUnderContract},
	StatusUnderContract:     {StatusClosing, StatusInNegotiation},
	StatusClosing:           {StatusClosed},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusDead {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Deal is a candidate acquisition moving through lifecycle statuses.
type Deal struct {
	ID           string  `json:"id"`
	Address      string  `json:"address"`
	City         string  `json:"city"`
	PropertyType string  `json:"property_type"`
	SquareFeet   int     `json:"square_feet"`

	AskingPrice    float64 `json:"asking_price"`
	EstimatedValue float64 `json:"estimated_value"`
	EstimatedRehab float64 `json:"estimated_rehab"`
	Score          float64 `json:"score"`

	Status            Status   `json:"status"`
	Analyzed          bool     `json:"analyzed"`
	OutreachInitiated bool     `json:"outreach_initiated"`
	Tags              []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the deal to the given status, enforcing the lifecycle.
func (d *Deal) Transition(to Status) error {
	if !CanTransition(d.Status, to) {
		return fmt.Errorf("deal %s: %s -> %s: %w", d.ID, d.Status, to, domain.ErrInvalidTransition)
	}
	d.Status = to
	d.UpdatedAt = time.Now()
	return nil
}

// Open reports whether the deal still needs orchestration attention.
func (d *Deal) Open() bool {
	return !d.Status.IsTerminal()
}
