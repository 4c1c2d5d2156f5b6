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

	"github.com/remedystack/calibration-engine/internal/api"
	"github.com/remedystack/calibration-engine/internal/cache"
	"github.com/remedystack/calibration-engine/internal/config"
	"github.com/remedystack/calibration-engine/internal/engine"
	"github.com/remedystack/calibration-engine/internal/metrics"
	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/services"
	"github.com/remedystack/calibration-engine/internal/store"
	"github.com/remedystack/calibration-engine/internal/utils"
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

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting calibration engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	predictionStore, err := store.Open(store.StoreOptions{
		Path:       cfg.Storage.Path,
		InMemory:   cfg.Storage.InMemory,
		SyncWrites: cfg.Storage.SyncWrites,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to open prediction store", slog.Any("error", err))
		os.Exit(1)
	}
	defer predictionStore.Close()

	rules, err := engine.NewRulePack(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	archive := store.NewReportArchive(cfg.Archive.Dir)
	history := store.NewThresholdHistory(cfg.Archive.HistoryFile, logger)

	generator := engine.NewReportGenerator(predictionStore, archive, rules, logger)
	trends := engine.NewTrendAnalyzer(logger)
	optimizer := engine.NewThresholdOptimizer(models.Thresholds{
		Autonomous: cfg.Thresholds.Autonomous,
		Assisted:   cfg.Thresholds.Assisted,
	}, history, logger)
	calibrator := engine.NewCalibrator(predictionStore, cache.NewMemoryProvider(), engine.CalibratorOptions{
		RefreshAfter: cfg.Calibration.RefreshAfter,
		MaxAge:       cfg.Calibration.MaxAge,
		CacheTTL:     cfg.Calibration.CacheTTL,
	}, logger)

	service := services.NewCalibrationService(
		logger,
		predictionStore,
		generator,
		trends,
		optimizer,
		calibrator,
		history,
		cfg.Trend.WindowDays,
	)

	server, err := api.NewServer(cfg.Server, api.NewHandler(logger, service))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("calibration engine stopped")
}
