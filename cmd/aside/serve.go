package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/eugener/aside/internal/config"
	"github.com/eugener/aside/internal/telemetry"
	"github.com/eugener/aside/internal/worker"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override server.addr")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	slog.Info("starting aside", "version", version, "addr", cfg.Server.Addr, "store", cfg.Store.Driver)

	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	comps, err := build(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}()

	if err := comps.engine.Ping(ctx); err != nil {
		slog.Warn("store not reachable at startup", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           comps.handler(cfg, metrics, metricsHandler),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// Background workers
	runner := worker.NewRunner(comps.workers(cfg, metrics)...)
	workerErr := make(chan error, 1)
	go func() { workerErr <- runner.Run(ctx) }()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("aside ready", "addr", cfg.Server.Addr, "workers", runner.Len())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var (
		runErr      error
		workersDone bool
	)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case runErr = <-errCh:
	case runErr = <-workerErr:
		workersDone = true
		slog.Error("worker failed", "error", runErr)
	case <-parent.Done():
		slog.Info("shutting down", "reason", parent.Err())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	// Workers must be done with the store before the deferred Close.
	cancel()
	if !workersDone {
		if err := <-workerErr; err != nil && runErr == nil {
			runErr = err
		}
	}

	slog.Info("aside stopped")
	return errors.Join(runErr, shutdownErr)
}
