package service

import (
	"testing"
	"time"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
)

func testMonitor(cfg config.Monitor) *Monitor {
	return NewMonitor(cfg, nil, nil)
}

func TestSweepAlertsOnSlowAgent(t *testing.T) {
	cfg := config.Monitor{MaxAvgExecution: 10 * time.Millisecond, MinSuccessRate: 0, AlertCooldown: time.Hour}
	m := testMonitor(cfg)
	m.Record(agent.NameScout, 50*time.Millisecond, true)

	raised := m.Sweep()
	if len(raised) != 1 {
		t.Fatalf("alerts = %d, want 1", len(raised))
	}
	if raised[0].Agent != agent.NameScout || raised[0].Metric != "avg_execution" {
		t.Fatalf("alert = %+v, want avg_execution for scout", raised[0])
	}
}

func TestSweepAlertsOnLowSuccessRate(t *testing.T) {
	cfg := config.Monitor{MaxAvgExecution: time.Hour, MinSuccessRate: 0.5, AlertCooldown: time.Hour}
	m := testMonitor(cfg)
	m.Record(agent.NameAnalyst, time.Millisecond, false)
	m.Record(agent.NameAnalyst, time.Millisecond, false)
	m.Record(agent.NameAnalyst, time.Millisecond, true)

	raised := m.Sweep()
	if len(raised) != 1 || raised[0].Metric != "success_rate" {
		t.Fatalf("alerts = %+v, want one success_rate alert", raised)
	}
}

func TestSweepCooldownSuppressesRepeatAlerts(t *testing.T) {
	cfg := config.Monitor{MaxAvgExecution: 10 * time.Millisecond, MinSuccessRate: 0, AlertCooldown: time.Hour}
	m := testMonitor(cfg)
	m.Record(agent.NameScout, 50*time.Millisecond, true)

	if got := len(m.Sweep()); got != 1 {
		t.Fatalf("first sweep alerts = %d, want 1", got)
	}
	// The agent is still slow, but the cooldown window has not passed.
	m.Record(agent.NameScout, 50*time.Millisecond, true)
	if got := len(m.Sweep()); got != 0 {
		t.Fatalf("second sweep alerts = %d, want 0 within cooldown", got)
	}
}

func TestSweepReAlertsAfterCooldown(t *testing.T) {
	cfg := config.Monitor{MaxAvgExecution: 10 * time.Millisecond, MinSuccessRate: 0, AlertCooldown: time.Millisecond}
	m := testMonitor(cfg)
	m.Record(agent.NameScout, 50*time.Millisecond, true)

	if got := len(m.Sweep()); got != 1 {
		t.Fatalf("first sweep alerts = %d, want 1", got)
	}
	time.Sleep(5 * time.Millisecond)
	if got := len(m.Sweep()); got != 1 {
		t.Fatalf("sweep after cooldown = %d alerts, want 1", got)
	}
}

func TestDrainPendingReturnsOnce(t *testing.T) {
	cfg := config.Monitor{MaxAvgExecution: 10 * time.Millisecond, MinSuccessRate: 0, AlertCooldown: time.Hour}
	m := testMonitor(cfg)
	m.Record(agent.NameCloser, 50*time.Millisecond, true)
	m.Sweep()

	if got := len(m.DrainPending()); got != 1 {
		t.Fatalf("first drain = %d, want 1", got)
	}
	if got := len(m.DrainPending()); got != 0 {
		t.Fatalf("second drain = %d, want 0", got)
	}
}

func TestSummaryListsTrackedAgentsInOrder(t *testing.T) {
	m := testMonitor(config.Defaults().Monitor)
	m.Record(agent.NameAnalyst, time.Millisecond, true)
	m.Record(agent.NameScout, time.Millisecond, true)

	sum := m.Summary()
	if len(sum) != 2 {
		t.Fatalf("summary = %d entries, want 2", len(sum))
	}
	// Fixed agent order, not map order.
	if sum[0].Agent != agent.NameScout || sum[1].Agent != agent.NameAnalyst {
		t.Fatalf("order = %s, %s, want scout then analyst", sum[0].Agent, sum[1].Agent)
	}
}
