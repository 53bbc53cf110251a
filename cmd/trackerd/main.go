package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/a-re/ledgerx-go/internal/api"
	"github.com/a-re/ledgerx-go/internal/config"
	"github.com/a-re/ledgerx-go/internal/feed"
	"github.com/a-re/ledgerx-go/internal/indicator"
	"github.com/a-re/ledgerx-go/internal/state"
	"github.com/a-re/ledgerx-go/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/tracker.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration first; logging setup depends on it.
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting tracker",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.LegacyRestURL,
		cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithPageDelay(cfg.API.PageDelay),
	)

	indicators := indicator.New(
		indicator.APIFetcher{Client: apiClient},
		indicator.WithLogger(logger),
	)

	engine := state.New(
		state.Config{
			SkipExpired:       cfg.Engine.SkipExpired,
			ExpiryPreemptive:  cfg.Engine.ExpiryPreemptive,
			BasisDelayTicks:   cfg.Engine.BasisDelayTicks,
			BasisMaxRetries:   cfg.Engine.BasisMaxRetries,
			MaxReloadsPerTick: cfg.Engine.MaxReloadsPerTick,
			TaskBatchTimeout:  cfg.Engine.TaskBatchTimeout,
			LateHeartbeat:     cfg.Engine.LateHeartbeat,
			BulkLoadParallel:  cfg.Engine.BulkLoadParallel,
		},
		apiClient,
		state.WithLogger(logger),
		state.WithIndicators(indicators),
	)

	stream := feed.New(
		feed.Config{
			URL:   cfg.Stream.URL,
			Token: cfg.API.APIKey,
			Client: feed.ClientConfig{
				PingTimeout:  cfg.Stream.PingTimeout,
				WriteTimeout: cfg.Stream.WriteTimeout,
				BufferSize:   cfg.Stream.BufferSize,
			},
			ReconnectBaseWait: cfg.Stream.ReconnectBaseWait,
			ReconnectMaxWait:  cfg.Stream.ReconnectMaxWait,
		},
		feed.WithLogger(logger),
	)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: newHealthHandler(cfg.Health.Path, engine),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port, "path", cfg.Health.Path)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	go func() {
		if err := stream.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("stream stopped", "error", err)
		}
	}()

	exitCode := 0
	// The stream injects a WebsocketStarting event on connect, which triggers
	// the initial market load inside the engine.
	for ev := range stream.Events() {
		if _, err := engine.Apply(ctx, ev); err != nil {
			if errors.Is(err, state.ErrIrregularHeartbeat) {
				// The event stream can no longer be trusted; restart clean.
				logger.Error("irregular heartbeat, shutting down", "error", err)
				exitCode = 1
				break
			}
			logger.Error("apply failed", "kind", ev.Kind(), "error", err)
		}
	}

	logger.Info("shutting down...")
	cancel()
	stream.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("tracker stopped")
	os.Exit(exitCode)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// newHealthHandler serves engine statistics for liveness checks.
func newHealthHandler(path string, engine *state.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		stats := engine.Stats()

		health := struct {
			Status string      `json:"status"`
			Stats  state.Stats `json:"stats"`
		}{
			Status: "healthy",
			Stats:  stats,
		}
		if !stats.Active {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if !stats.Active {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
