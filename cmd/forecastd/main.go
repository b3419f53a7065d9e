package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/solarsentry/space-weather-forecast/internal/adapter/donki"
	"github.com/solarsentry/space-weather-forecast/internal/adapter/httpapi"
	kafkaadapter "github.com/solarsentry/space-weather-forecast/internal/adapter/kafka"
	"github.com/solarsentry/space-weather-forecast/internal/adapter/openai"
	"github.com/solarsentry/space-weather-forecast/internal/adapter/ws"
	"github.com/solarsentry/space-weather-forecast/internal/config"
	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/export"
	"github.com/solarsentry/space-weather-forecast/internal/forecast"
	"github.com/solarsentry/space-weather-forecast/internal/history"
	"github.com/solarsentry/space-weather-forecast/internal/hub"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// DONKI event source, optionally wrapped in a short-lived cache.
	var source domain.EventSource = donki.NewClient(
		cfg.DONKIBaseURL, cfg.NASAAPIKey, cfg.FetchTimeout,
		cfg.DONKIRateLimit, cfg.DONKIRateBurst, logger, metrics)
	if cfg.DONKICacheTTL > 0 {
		source = donki.NewCachedSource(source, cfg.DONKICacheTTL, metrics)
	}

	// Narrative generator (feature-flagged via NARRATIVE_ENABLED / OPENAI_API_KEY).
	var narrative domain.NarrativeGenerator
	if cfg.NarrativeEnabled {
		narrative = openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.NarrativeTimeout, logger)
		metrics.NarrativeEnabled.Set(1)
		logger.Info("ai narrative generation enabled", "model", cfg.OpenAIModel, "timeout", cfg.NarrativeTimeout)
	} else {
		logger.Info("ai narrative generation disabled, using template fallback")
	}

	synthesizer := forecast.NewSynthesizer(narrative, cfg.NarrativeTimeout, logger, metrics)
	pipeline := forecast.New(source, synthesizer, cfg.LookbackDays, cfg.FetchTimeout, logger, metrics)
	h := hub.New(pipeline, cfg.PollInterval, logger, metrics)

	// Export sinks (feature-flagged via HISTORY_ENABLED / KAFKA_ENABLED).
	var sinks []export.Sink
	var store *history.Store
	if cfg.HistoryEnabled {
		store, err = history.Open(cfg.HistoryDBPath, logger)
		if err != nil {
			logger.Error("failed to open history store", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, store)
		logger.Info("forecast history enabled", "path", cfg.HistoryDBPath)
	}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		sinks = append(sinks, publisher)
		logger.Info("kafka export enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	runner := export.NewRunner(h.Feed(), sinks, logger, metrics)

	var hist httpapi.HistoryReader
	if store != nil {
		hist = store
	}
	srv := httpapi.NewServer(cfg.HTTPAddr, h, pipeline, hist, ws.NewHandler(h, logger), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start broadcast hub and export runner.
	go func() {
		if err := h.Run(ctx); err != nil {
			logger.Error("hub error", "error", err)
		}
	}()
	go func() {
		if err := runner.Run(ctx); err != nil {
			logger.Error("export runner error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("history store close error", "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
