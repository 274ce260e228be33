package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/DealFlow/internal/adapter/cachedstore"
	dfhttp "github.com/Strob0t/DealFlow/internal/adapter/http"
	dfnats "github.com/Strob0t/DealFlow/internal/adapter/nats"
	dfotel "github.com/Strob0t/DealFlow/internal/adapter/otel"
	"github.com/Strob0t/DealFlow/internal/adapter/postgres"
	"github.com/Strob0t/DealFlow/internal/adapter/ristretto"
	"github.com/Strob0t/DealFlow/internal/adapter/ws"
	"github.com/Strob0t/DealFlow/internal/agents"
	"github.com/Strob0t/DealFlow/internal/bus"
	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/logger"
	"github.com/Strob0t/DealFlow/internal/port/checkpoint"
	"github.com/Strob0t/DealFlow/internal/port/messagebus"
	"github.com/Strob0t/DealFlow/internal/resilience"
	"github.com/Strob0t/DealFlow/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_enabled", cfg.NATS.Enabled,
		"max_cycles", cfg.Workflow.MaxCycles,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := dfotel.Init(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	var metrics *dfotel.Metrics
	if cfg.Otel.Enabled {
		metrics, err = dfotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	l1, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()

	var store checkpoint.Store = cachedstore.New(postgres.NewStore(pool), l1, cfg.Cache.TTL)

	// --- Message bus ---
	busOpts := []bus.Option{}
	var relay messagebus.Relay
	if cfg.NATS.Enabled {
		r, err := dfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		relay = r
		defer func() { _ = r.Close() }()

		breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		busOpts = append(busOpts, bus.WithRelay(relay, breaker))
	}
	if cfg.Workflow.BatchCommunications {
		busOpts = append(busOpts, bus.WithBatching())
	}
	msgBus := bus.New(busOpts...)
	msgBus.StartFlusher(ctx, cfg.Workflow.MetricsCollectionInterval)
	defer msgBus.StopFlusher()

	// --- Orchestration core ---
	hub := ws.NewHub()
	monitor := service.NewMonitor(cfg.Monitor, hub, log)
	engine := service.NewEngine(cfg.Engine)
	resolver := service.NewConflictResolver(log)
	supervisor := service.NewSupervisor(engine, resolver, monitor, store, msgBus, log)
	harness := service.NewHarness(msgBus, monitor, cfg.Workflow.AgentTimeout, log)
	registry := agents.New(cfg.Workflow, log)

	orchestrator, err := service.NewOrchestrator(
		cfg.Workflow, cfg.Engine,
		supervisor, harness, resolver, monitor, registry,
		store, msgBus, hub, metrics, log,
	)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	defer orchestrator.Shutdown()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	monitor.StartLoop(monitorCtx, cfg.Workflow.MetricsCollectionInterval)

	// External human responses arrive over the relay.
	if relay != nil {
		cancelHuman, err := relay.Subscribe(ctx, messagebus.SubjectHumanResponse, func(_ context.Context, _ string, data []byte) error {
			var resp struct {
				WorkflowID string `json:"workflow_id"`
				Action     string `json:"action"`
				Note       string `json:"note"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("decode human response: %w", err)
			}
			if !orchestrator.ResolveEscalation(resp.WorkflowID, service.HumanDecision{Action: resp.Action, Note: resp.Note}) {
				slog.Warn("human response without pending escalation", "workflow", resp.WorkflowID)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("human response subscriber: %w", err)
		}
		defer cancelHuman()
	}

	// --- HTTP ---
	handlers := &dfhttp.Handlers{
		Orchestrator: orchestrator,
		Supervisor:   supervisor,
		Bus:          msgBus,
	}

	r := chi.NewRouter()
	r.Use(dfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(dfhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(cfg))
	r.Get("/ws", hub.HandleWS)
	dfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(r, "dealflow-http"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status string `json:"status"`
		NATS   string `json:"nats"`
		Otel   bool   `json:"otel"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{Status: "ok", Otel: cfg.Otel.Enabled}
		if cfg.NATS.Enabled {
			status.NATS = cfg.NATS.URL
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
