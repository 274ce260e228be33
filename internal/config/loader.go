package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "dealflow.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "DEALFLOW_PORT")
	setString(&cfg.Server.CORSOrigin, "DEALFLOW_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "DEALFLOW_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "DEALFLOW_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "DEALFLOW_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "DEALFLOW_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "DEALFLOW_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "DEALFLOW_NATS_ENABLED")
	setString(&cfg.Logging.Level, "DEALFLOW_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DEALFLOW_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DEALFLOW_LOG_ASYNC")
	setInt(&cfg.Logging.Buffer, "DEALFLOW_LOG_BUFFER")
	setInt(&cfg.Logging.Workers, "DEALFLOW_LOG_WORKERS")
	setInt(&cfg.Breaker.MaxFailures, "DEALFLOW_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DEALFLOW_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxCostBytes, "DEALFLOW_CACHE_MAX_COST_BYTES")
	setDuration(&cfg.Cache.TTL, "DEALFLOW_CACHE_TTL")
	setBool(&cfg.Otel.Enabled, "DEALFLOW_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "DEALFLOW_OTEL_ENDPOINT")

	setInt(&cfg.Workflow.MaxConcurrentDeals, "DEALFLOW_MAX_CONCURRENT_DEALS")
	setDuration(&cfg.Workflow.MaxExecutionTime, "DEALFLOW_MAX_EXECUTION_TIME")
	setInt(&cfg.Workflow.MaxCycles, "DEALFLOW_MAX_CYCLES")
	setFloat64(&cfg.Workflow.AutoApproveThreshold, "DEALFLOW_AUTO_APPROVE_THRESHOLD")
	setFloat64(&cfg.Workflow.HumanEscalationThreshold, "DEALFLOW_HUMAN_ESCALATION_THRESHOLD")
	setDuration(&cfg.Workflow.AgentTimeout, "DEALFLOW_AGENT_TIMEOUT")
	setInt(&cfg.Workflow.MaxRetriesPerAgent, "DEALFLOW_MAX_RETRIES_PER_AGENT")
	setBool(&cfg.Workflow.BatchCommunications, "DEALFLOW_BATCH_COMMUNICATIONS")
	setDuration(&cfg.Workflow.MetricsCollectionInterval, "DEALFLOW_METRICS_INTERVAL")

	setInt(&cfg.Engine.MinOpenDeals, "DEALFLOW_MIN_OPEN_DEALS")
	setFloat64(&cfg.Engine.ConfidenceThreshold, "DEALFLOW_CONFIDENCE_THRESHOLD")
	setInt(&cfg.Engine.HealthWindow, "DEALFLOW_HEALTH_WINDOW")

	setDuration(&cfg.Monitor.MaxAvgExecution, "DEALFLOW_MONITOR_MAX_AVG_EXECUTION")
	setFloat64(&cfg.Monitor.MinSuccessRate, "DEALFLOW_MONITOR_MIN_SUCCESS_RATE")
	setDuration(&cfg.Monitor.AlertCooldown, "DEALFLOW_MONITOR_ALERT_COOLDOWN")
}

// validate rejects configurations the orchestrator cannot run with.
func validate(cfg *Config) error {
	if cfg.Workflow.MaxCycles <= 0 {
		return errors.New("workflow.max_cycles must be positive")
	}
	if cfg.Workflow.MaxExecutionTime <= 0 {
		return errors.New("workflow.max_execution_time must be positive")
	}
	if cfg.Workflow.AgentTimeout <= 0 {
		return errors.New("workflow.agent_timeout must be positive")
	}
	if cfg.Workflow.MaxRetriesPerAgent < 0 {
		return errors.New("workflow.max_retries_per_agent must not be negative")
	}
	if cfg.Engine.ConfidenceThreshold < 0 || cfg.Engine.ConfidenceThreshold > 1 {
		return errors.New("engine.confidence_threshold must be in [0,1]")
	}
	if cfg.Monitor.MinSuccessRate < 0 || cfg.Monitor.MinSuccessRate > 1 {
		return errors.New("monitor.min_success_rate must be in [0,1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
