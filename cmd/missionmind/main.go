package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acarin/missionmind/internal/api"
	"github.com/acarin/missionmind/internal/bus"
	"github.com/acarin/missionmind/internal/config"
	"github.com/acarin/missionmind/internal/engine"
	"github.com/acarin/missionmind/internal/store"
	"github.com/acarin/missionmind/internal/summarizer"
	"github.com/acarin/missionmind/internal/sweep"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	// Events (optional)
	var events bus.Client
	if cfg.Events.URL != "" {
		nc, err := bus.NewNATSClient(ctx, cfg.Events.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to NATS, running without events", "error", err)
		} else {
			events = nc
			defer nc.Close()
			logger.Info("connected to NATS")
		}
	}

	// Summarizer
	var sumClient summarizer.Client
	if cfg.Summarizer.URL != "" {
		sumClient = summarizer.NewHTTPClient(cfg.Summarizer.URL)
	}

	// Evaluators
	eval := api.Evaluators{
		Scorer: engine.NewPriorityScorer(engine.PriorityWeights{
			Urgency:         cfg.Scoring.Weights.Urgency,
			Originator:      cfg.Scoring.Weights.Originator,
			Keyword:         cfg.Scoring.Weights.Keyword,
			Escalation:      cfg.Scoring.Weights.Escalation,
			WorkloadPenalty: cfg.Scoring.Weights.WorkloadPenalty,
			ExpediteBonus:   cfg.Scoring.Weights.ExpediteBonus,
		}, cfg.Scoring.HorizonDays, logger),
		Assessor: engine.NewRiskAssessor(engine.RiskWeights{
			Schedule:     cfg.Risk.Weights.Schedule,
			Dependencies: cfg.Risk.Weights.Dependencies,
			OwnerHistory: cfg.Risk.Weights.OwnerHistory,
			Approver:     cfg.Risk.Weights.Approver,
		}, engine.RiskThresholds{
			Amber: cfg.Risk.AmberThreshold,
			Red:   cfg.Risk.RedThreshold,
		}, cfg.Risk.DriverShare, logger),
		Router:      engine.NewRoutingEngine(logger),
		Authorities: engine.NewAuthorityRecommender(logger),
		Quality:     engine.NewQualityChecker(cfg.Quality.MinDescriptionLen),
	}

	// Risk sweep
	runner := sweep.New(db, events, eval.Assessor, cfg, logger)
	runner.SetupSubscriptions()
	runner.Start(ctx)
	defer runner.Stop()
	logger.Info("risk sweep started", "interval", cfg.SweepInterval())

	// API server
	router := api.NewRouter(db, eval, events, sumClient, runner, cfg.Server.AdminToken, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
