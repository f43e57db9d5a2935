package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-autopilot/internal/agents"
	"github.com/miradorstack/mirador-autopilot/internal/api"
	"github.com/miradorstack/mirador-autopilot/internal/config"
	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/guardrails"
	"github.com/miradorstack/mirador-autopilot/internal/llm"
	"github.com/miradorstack/mirador-autopilot/internal/metrics"
	"github.com/miradorstack/mirador-autopilot/internal/runbooks"
	"github.com/miradorstack/mirador-autopilot/internal/services"
	"github.com/miradorstack/mirador-autopilot/internal/simulator"
	"github.com/miradorstack/mirador-autopilot/internal/state"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting mirador-autopilot", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	fetcher, err := runbooks.NewFetcher(cfg.Runbooks, logger)
	if err != nil {
		logger.Error("failed to initialise runbook fetcher", slog.Any("error", err))
		os.Exit(1)
	}
	defer fetcher.Stop()

	guardrailEngine := guardrails.NewEngine(cfg.Guardrails)
	selector := engine.NewSelector(engine.ScaleLimits{
		MaxReplicas: cfg.Guardrails.MaxScaleReplicas,
		MaxFactor:   cfg.Guardrails.MaxScaleFactor,
	}, cfg.Executor.MaxUnavailable)

	var generator engine.HypothesisGenerator = agents.NewRuleHypothesizer(logger)
	if llmGen, err := llm.NewHypothesizer(logger); err != nil {
		logger.Warn("llm hypothesizer unavailable", slog.Any("error", err))
	} else if llmGen != nil {
		logger.Info("using llm-backed hypothesis generation")
		generator = llmGen
	}

	store := state.NewStore()
	pipeline := engine.NewPipeline(
		logger,
		store,
		guardrailEngine,
		selector,
		engine.NewVerifier(),
		agents.NewScout(logger, fetcher),
		agents.NewTriage(logger),
		generator,
		agents.NewExperimenter(logger),
		agents.NewApplier(logger),
		simulator.RecoveredProber{},
	)

	autopilot := services.NewAutopilot(logger, store, pipeline, cfg.Executor.AutoApprove)
	server := api.NewServer(logger, autopilot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api server listening", slog.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("shutdown complete")
}
