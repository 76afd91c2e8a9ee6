package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/adapter/http"
	kafkaadapter "github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/adapter/kafka"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/adapter/mapbox"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/adapter/memory"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/adapter/postgres"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/alert"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/config"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/ingest"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/risk"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/threshold"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, storeReady, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	policy, err := domain.ParseEscalation(cfg.AlertEscalation)
	if err != nil {
		logger.Error("invalid alert escalation", "error", err)
		os.Exit(1)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	evaluator := threshold.NewEvaluator(st, policy)
	generator := alert.NewGenerator(st, writer, cfg.KafkaAlertTopic, logger, metrics)
	ingestor := ingest.NewIngestor(st, evaluator, generator, ingest.Topics{
		Telemetry: cfg.KafkaTelemetryTopic,
		Status:    cfg.KafkaStatusTopic,
	}, logger, metrics)
	commands := ingest.NewCommandService(st, writer, cfg.KafkaCommandTopic, generator, logger, metrics)
	engine := risk.NewEngine(st, geocoder, cfg.RiskWindow, logger, metrics)

	p := ingest.NewPipeline(reader, ingestor, logger, metrics, cfg.BatchSize, cfg.IngestWorkers)

	checks := httpadapter.Checks{p}
	if storeReady != nil {
		checks = append(checks, storeReady)
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, httpadapter.API{
		Risk:       engine,
		Alerts:     generator,
		Thresholds: evaluator,
		Gates:      commands,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingestion pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	// Start risk scheduler.
	if cfg.RiskInterval > 0 && cfg.KafkaRiskTopic != "" {
		scheduler := risk.NewScheduler(engine, st, writer, cfg.KafkaRiskTopic, cfg.RiskInterval, clockwork.NewRealClock(), logger, metrics)
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logger.Error("risk scheduler error", "error", err)
			}
		}()
	} else {
		logger.Info("risk scheduler disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openStore returns the configured store, an optional readiness check and a
// close function.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, sharedobs.ReadinessChecker, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		s := memory.New()
		for _, deviceID := range cfg.SeedStations {
			station := s.AddStation(domain.Station{DeviceID: deviceID, Name: deviceID})
			logger.Info("seeded station", "device_id", station.DeviceID, "station_id", station.ID)
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return s, nil, func() {}, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.DBMigrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, nil, nil, err
			}
			logger.Info("database schema applied")
		}
		return s, s, s.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
