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

	"github.com/podwatch/anomaly-engine/internal/api"
	"github.com/podwatch/anomaly-engine/internal/cache"
	"github.com/podwatch/anomaly-engine/internal/config"
	"github.com/podwatch/anomaly-engine/internal/engine"
	"github.com/podwatch/anomaly-engine/internal/exporter"
	"github.com/podwatch/anomaly-engine/internal/features"
	"github.com/podwatch/anomaly-engine/internal/metrics"
	"github.com/podwatch/anomaly-engine/internal/repo"
	"github.com/podwatch/anomaly-engine/internal/utils"
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
	logger.Info("starting anomaly-engine",
		slog.String("address", cfg.Server.Address),
		slog.String("prometheus", cfg.Prometheus.URL),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	scoreExporter := exporter.New()
	if err := scoreExporter.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register score exporter", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cfg.Cache)
		if err != nil {
			logger.Warn("result cache unavailable, continuing without it", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}
	cacheTTL := time.Duration(0)
	if cfg.Cache.Enabled {
		cacheTTL = cfg.Cache.ResultTTL
	}

	promClient, err := repo.NewPrometheusClient(cfg.Prometheus)
	if err != nil {
		logger.Error("failed to create prometheus client", slog.Any("error", err))
		os.Exit(1)
	}

	manager := engine.NewManager(logger, cfg.Training, cfg.Forest)
	detector := engine.NewDetector(logger, promClient, features.NewBuilder(), manager)

	handler := api.NewHandler(logger, detector, manager, scoreExporter, cacheProvider, cacheTTL, cfg.Prometheus.URL)
	server := api.NewServer(cfg.Server, logger, handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed := detector.TrainingFeed(cfg.Training.Lookback, cfg.Training.Step)
	go manager.RunRefreshLoop(ctx, feed)

	go func() {
		if serveErr := server.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)
	logger.Info("anomaly-engine stopped")
}
