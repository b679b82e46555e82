// Package main is the entry point for the Storm Surge scaling middleware.
//
// It loads configuration (failing fast with a non-zero exit on any invalid or
// missing value), builds the structured logger, wires the flag provider,
// signature verifier, Spot capacity client, telemetry sink, and control loop,
// and runs the HTTP server and the business-hours schedule trigger side by
// side until a shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM);
// buffered telemetry is flushed before exit.
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
	"time"

	"golang.org/x/sync/errgroup"

	"stormsurge/internal/api/handlers"
	"stormsurge/internal/config"
	"stormsurge/internal/controller"
	"stormsurge/internal/core"
	"stormsurge/internal/engine"
	"stormsurge/internal/flag"
	"stormsurge/internal/schedule"
	"stormsurge/internal/spot"
	"stormsurge/internal/telemetry"
)

// shutdownTimeout bounds graceful HTTP drain and the final telemetry flush.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit
// non-zero on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("storm surge middleware starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"provider", cfg.Flag.Provider,
		"cluster_id", cfg.Spot.ClusterID,
		"port", cfg.Server.Port,
	)

	provider, err := flag.NewProvider(cfg.Flag.Provider)
	if err != nil {
		return fmt.Errorf("creating flag provider: %w", err)
	}
	verifier := flag.NewVerifier(cfg.Flag.WebhookSecret, logger)

	spotClient := spot.NewClient(
		cfg.Spot.APIBaseURL,
		cfg.Spot.ClusterID,
		cfg.Spot.APIToken,
		cfg.Spot.RequestTimeout,
		spot.RetryPolicy{
			MaxRetries:  cfg.Spot.MaxRetries,
			BackoffBase: cfg.Spot.BackoffBase,
			BackoffCap:  cfg.Spot.BackoffCap,
		},
		logger,
	)

	sink := telemetry.NewSink(
		cfg.Telemetry.Provider,
		provider.Kind(),
		cfg.Telemetry.LaunchDarklySDKKey,
		cfg.Telemetry.StatsigServerKey,
		telemetry.Config{
			BatchSize:    cfg.Telemetry.BatchSize,
			FlushTimeout: cfg.Telemetry.FlushTimeout,
			Logger:       logger,
		},
	)
	// Deferred so buffered telemetry survives every exit path out of run,
	// including a panic unwinding through the run group.
	defer flushTelemetry(sink, logger)

	loop := controller.NewLoop(controller.LoopConfig{
		Client: spotClient,
		Sink:   sink,
		Policy: engine.Policy{
			MinReplicas:         cfg.Policy.MinReplicas,
			MaxReplicas:         cfg.Policy.MaxReplicas,
			ScaleDownFactor:     cfg.Policy.ScaleDownFactor,
			ScaleUpFactor:       cfg.Policy.ScaleUpFactor,
			CostImpactThreshold: cfg.Policy.CostImpactThreshold,
		},
		ClusterID:   cfg.Spot.ClusterID,
		DedupWindow: cfg.Loop.DedupWindow,
		LockWait:    cfg.Loop.LockWait,
		Logger:      logger,
	})

	trigger, err := schedule.New(
		loop,
		cfg.Schedule.BusinessStart,
		cfg.Schedule.BusinessEnd,
		cfg.Schedule.Timezone,
		logger,
	)
	if err != nil {
		return fmt.Errorf("creating schedule trigger: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	webhookHandler := handlers.NewWebhookHandler(provider, verifier, loop, sink, logger)
	statusHandler := handlers.NewStatusHandler(spotClient, cfg.Spot.ClusterID, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars,
		webhookHandler.RegisterRoutes,
		statusHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	sink.LogCustomEvent("application_startup", map[string]any{
		"provider":   cfg.Flag.Provider,
		"cluster_id": cfg.Spot.ClusterID,
		"version":    cfg.Build.Version,
	})

	return serve(srv, trigger, cfg, logger)
}

// flushTelemetry synchronously delivers any buffered telemetry, bounded by
// the shutdown timeout. Failures are logged; at this point there is nowhere
// else to report them.
func flushTelemetry(sink telemetry.Sink, logger *slog.Logger) {
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sink.Flush(flushCtx); err != nil {
		logger.Error("final telemetry flush failed", "error", err)
	}
}

// serve runs the HTTP server and the schedule trigger until a shutdown
// signal arrives or either component fails.
func serve(srv *core.Server, trigger *schedule.Trigger, cfg *config.Config, logger *slog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() (retErr error) {
		// A panic here would bypass run's deferred telemetry flush; convert
		// it into an error so shutdown still goes through g.Wait.
		defer func() {
			if rvr := recover(); rvr != nil {
				logger.Error("schedule trigger panicked", "panic", fmt.Sprintf("%v", rvr))
				retErr = fmt.Errorf("schedule trigger panic: %v", rvr)
			}
		}()
		if err := trigger.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("schedule trigger: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
