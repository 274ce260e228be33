package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWhenNoFileNoEnv(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Workflow.MaxCycles != 100 {
		t.Errorf("expected default max_cycles 100, got %d", cfg.Workflow.MaxCycles)
	}
	if cfg.Engine.ConfidenceThreshold != 0.8 {
		t.Errorf("expected default confidence threshold 0.8, got %f", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Monitor.MaxAvgExecution != 300*time.Second {
		t.Errorf("expected default monitor ceiling 300s, got %s", cfg.Monitor.MaxAvgExecution)
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dealflow.yaml")
	yaml := `
server:
  port: "9090"
workflow:
  max_cycles: 25
  agent_timeout: 45s
  batch_communications: true
engine:
  min_open_deals: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Workflow.MaxCycles != 25 {
		t.Errorf("expected max_cycles 25, got %d", cfg.Workflow.MaxCycles)
	}
	if cfg.Workflow.AgentTimeout != 45*time.Second {
		t.Errorf("expected agent_timeout 45s, got %s", cfg.Workflow.AgentTimeout)
	}
	if !cfg.Workflow.BatchCommunications {
		t.Error("expected batch_communications true")
	}
	if cfg.Engine.MinOpenDeals != 5 {
		t.Errorf("expected min_open_deals 5, got %d", cfg.Engine.MinOpenDeals)
	}
	// Untouched sections keep defaults.
	if cfg.Workflow.MaxConcurrentDeals != 10 {
		t.Errorf("expected default max_concurrent_deals 10, got %d", cfg.Workflow.MaxConcurrentDeals)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dealflow.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DEALFLOW_PORT", "7070")
	t.Setenv("DEALFLOW_MAX_RETRIES_PER_AGENT", "7")
	t.Setenv("DEALFLOW_MAX_EXECUTION_TIME", "90m")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected env port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Workflow.MaxRetriesPerAgent != 7 {
		t.Errorf("expected max_retries 7, got %d", cfg.Workflow.MaxRetriesPerAgent)
	}
	if cfg.Workflow.MaxExecutionTime != 90*time.Minute {
		t.Errorf("expected max_execution_time 90m, got %s", cfg.Workflow.MaxExecutionTime)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_cycles", func(c *Config) { c.Workflow.MaxCycles = 0 }},
		{"zero max_execution_time", func(c *Config) { c.Workflow.MaxExecutionTime = 0 }},
		{"zero agent_timeout", func(c *Config) { c.Workflow.AgentTimeout = 0 }},
		{"negative retries", func(c *Config) { c.Workflow.MaxRetriesPerAgent = -1 }},
		{"confidence above 1", func(c *Config) { c.Engine.ConfidenceThreshold = 1.5 }},
		{"success rate below 0", func(c *Config) { c.Monitor.MinSuccessRate = -0.1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
