package main

import (
	"context"
	"database/sql"
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
	_ "modernc.org/sqlite"

	"github.com/saludstack/anemia-triage/internal/api"
	"github.com/saludstack/anemia-triage/internal/cache"
	"github.com/saludstack/anemia-triage/internal/config"
	"github.com/saludstack/anemia-triage/internal/engine"
	"github.com/saludstack/anemia-triage/internal/metrics"
	"github.com/saludstack/anemia-triage/internal/repo"
	"github.com/saludstack/anemia-triage/internal/services"
	"github.com/saludstack/anemia-triage/internal/utils"
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
	logger.Info("starting triage engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	// A missing or mismatched artifact prevents the service from starting;
	// it is never a per-request error.
	classifier, err := engine.LoadClassifier(cfg.Model.Path, logger)
	if err != nil {
		logger.Error("failed to load classification model", slog.String("path", cfg.Model.Path), slog.Any("error", err))
		os.Exit(1)
	}

	limits := repo.Limits{Default: cfg.History.DefaultLimit, Max: cfg.History.MaxLimit}
	var store repo.HistoryStore
	switch cfg.History.Backend {
	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", slog.Any("error", err))
			os.Exit(1)
		}
		store, err = repo.NewSQLiteStore(db, limits, logger)
		if err != nil {
			logger.Error("failed to initialise history database", slog.Any("error", err))
			os.Exit(1)
		}
	default:
		store, err = repo.NewCSVStore(cfg.History.Path, limits, logger)
		if err != nil {
			logger.Error("failed to open history file", slog.Any("error", err))
			os.Exit(1)
		}
	}
	defer store.Close()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider()
	}
	defer cacheProvider.Close()

	svc := services.NewTriageService(logger, classifier, store, services.Options{
		Cache:    cacheProvider,
		CacheTTL: cfg.Cache.HistoryTTL,
		Limits:   limits,
	})

	server, err := api.NewServer(cfg.Server, svc, logger)
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

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("triage engine stopped")
}
