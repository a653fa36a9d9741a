package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/petalpost/location-service/internal/adapter/backendapi"
	"github.com/petalpost/location-service/internal/adapter/googlegeo"
	"github.com/petalpost/location-service/internal/adapter/httpapi"
	"github.com/petalpost/location-service/internal/adapter/ipgeo"
	kafkaadapter "github.com/petalpost/location-service/internal/adapter/kafka"
	"github.com/petalpost/location-service/internal/adapter/ws"
	"github.com/petalpost/location-service/internal/config"
	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/geocode"
	"github.com/petalpost/location-service/internal/location"
	"github.com/petalpost/location-service/internal/observability"
	"github.com/petalpost/location-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	backend := backendapi.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, logger, metrics)

	// Provider chain: primary places API when a key is configured, then the
	// storefront backend as fallback.
	var providers []domain.GeocodeProvider
	if cfg.GeocoderEnabled() {
		providers = append(providers, googlegeo.NewClient(cfg.GeocoderAPIKey, cfg.GeocoderBaseURL, cfg.GeocoderTimeout, logger, metrics))
		logger.Info("primary geocoder enabled", "base_url", cfg.GeocoderBaseURL)
	} else {
		logger.Info("primary geocoder disabled, using backend fallback only")
	}
	providers = append(providers, backend)

	cache := geocode.NewCache(cfg.GeocodeCacheTTL, cfg.GeocodeCacheSize, clock)
	resolver := geocode.NewResolver(providers, cache, logger, metrics)

	position := ipgeo.NewProvider(cfg.PositionBaseURL, clock, logger, metrics)
	checker := backendapi.NewServiceability(backend, logger, metrics)

	locStore, err := store.NewSQLiteStore(cfg.StorePath, cfg.LocationRetention, clock, metrics)
	if err != nil {
		logger.Error("failed to open location store", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(cfg.CORSOrigins, logger, metrics)
	publishers := []domain.Publisher{hub}

	var eventPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		eventPublisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic, logger, metrics)
		publishers = append(publishers, eventPublisher)
		logger.Info("analytics events enabled", "topic", cfg.KafkaEventsTopic)
	}

	posOpts := domain.PositionOptions{
		HighAccuracy: cfg.PositionHighAccuracy,
		Timeout:      cfg.PositionTimeout,
		MaxAge:       cfg.PositionMaxAge,
	}

	orch := location.New(position, resolver, locStore, checker, publishers, posOpts, clock, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed session state from the persisted location, if any survives.
	if err := orch.Restore(ctx); err != nil {
		logger.Warn("restore persisted location failed", "error", err)
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, orch, hub.HandleWS, cfg.CORSOrigins, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	hub.Close()
	if eventPublisher != nil {
		if err := eventPublisher.Close(); err != nil {
			logger.Error("event publisher close error", "error", err)
		}
	}
	if err := locStore.Close(); err != nil {
		logger.Error("location store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
