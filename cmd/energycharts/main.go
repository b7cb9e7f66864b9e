package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Philra94/homeassistant-energy-charts/internal/config"
	"github.com/Philra94/homeassistant-energy-charts/internal/coordinator"
	"github.com/Philra94/homeassistant-energy-charts/internal/energycharts"
	"github.com/Philra94/homeassistant-energy-charts/internal/scheduler"
	"github.com/Philra94/homeassistant-energy-charts/internal/server"
)

// Command energycharts polls the public Energy-Charts electricity
// generation API for one configured country, aggregates the series into
// per-source, total and category values, and serves the latest snapshot
// over a read-only JSON API.
//
// Usage:
//
//	energycharts [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"country":  cfg.Country,
		"interval": cfg.UpdateInterval,
	}).Info("Starting energycharts")

	client, err := energycharts.NewClient(energycharts.ClientConfig{
		BaseURL:       cfg.API.BaseURL,
		Country:       cfg.Country,
		Timeout:       time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		Retries:       cfg.API.Retries,
		BackoffFactor: time.Duration(cfg.API.BackoffSeconds * float64(time.Second)),
		CacheSize:     cfg.API.CacheSize,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create API client: %v", err)
	}

	registry := prometheus.NewRegistry()

	coord := coordinator.New(client, coordinator.Options{
		HistoricalRange: cfg.HistoricalRange,
		EnableForecasts: cfg.Sensors.Forecasts,
	}, logger, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first refresh must succeed; without a prior snapshot there is
	// nothing to fall back to.
	firstCtx, firstCancel := context.WithTimeout(ctx, 2*time.Minute)
	err = coord.Refresh(firstCtx)
	firstCancel()
	if err != nil {
		logger.Fatalf("Initial refresh failed: %v", err)
	}

	handler, responseCache, err := server.SetupServer(coord, client, server.Config{
		CacheSize:        cfg.Server.CacheSize,
		RateLimit:        cfg.Server.RateLimit,
		RateLimitBurst:   cfg.Server.RateLimitBurst,
		EnableIndividual: cfg.Sensors.Individual,
		EnableAggregated: cfg.Sensors.Aggregated,
		EnableCategories: cfg.Sensors.Categories,
		EnableForecasts:  cfg.Sensors.Forecasts,
		EnableHistory:    cfg.HistoricalRange != config.HistoricalRangeNone,
	}, logger, registry)
	if err != nil {
		logger.Fatalf("Failed to set up server: %v", err)
	}
	coord.OnPublish(responseCache.Purge)

	sched := scheduler.New(ctx, coord, time.Duration(cfg.UpdateInterval)*time.Minute, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: handler,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errChan:
		logger.WithError(err).Error("Server error, shutting down")
	}

	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	logger.Info("Stopped")
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}
