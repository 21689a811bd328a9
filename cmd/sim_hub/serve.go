package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eval-hub/sim-hub/cmd/sim_hub/server"
	"github.com/eval-hub/sim-hub/internal/connectors"
	"github.com/eval-hub/sim-hub/internal/handlers"
	"github.com/eval-hub/sim-hub/internal/scheduler"
)

// serveCmd runs the HTTP API and the background scheduler
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the run scheduler",
	Long: `Run the HTTP API and, unless it is disabled in the configuration, the scheduler
that claims queued runs and executes them.

Examples:
  # Serve with config/config.yaml
  sim-hub serve

  # Serve with a different configuration directory
  sim-hub serve --config-dir /etc/sim-hub`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	svc := newService(cmd.Context())
	logger := svc.logger
	serviceConfig := svc.config

	invoker, err := connectors.NewInvoker(connectors.NewRegistry(), serviceConfig.Connectors, logger)
	if err != nil {
		startUpFailed(serviceConfig, err, "Failed to create connector invoker", logger)
	}

	var sched *scheduler.Scheduler
	var reporter handlers.Scheduler
	if serviceConfig.Scheduler.Enabled {
		sched = scheduler.New(svc.storage, svc.runtime, serviceConfig.Scheduler, logger)
		reporter = sched
	}

	srv, err := server.NewServer(logger, serviceConfig, svc.storage, svc.validate, invoker, reporter)
	if err != nil {
		startUpFailed(serviceConfig, err, "Failed to create server", logger)
	}

	logger.Info("Server starting",
		"server_port", srv.GetPort(),
		"version", serviceConfig.Service.Version,
		"build", serviceConfig.Service.Build,
		"build_date", serviceConfig.Service.BuildDate,
		"local", serviceConfig.Service.LocalMode,
		"scheduler", sched != nil,
	)

	if sched != nil {
		if err := sched.Start(context.Background()); err != nil {
			startUpFailed(serviceConfig, err, "Failed to start scheduler", logger)
		}
	}

	go func() {
		if err := srv.Start(); err != nil {
			if errors.Is(err, &server.ServerClosedError{}) {
				logger.Info("Server closed gracefully")
				return
			}
			// we do this as no point trying to continue
			startUpFailed(serviceConfig, err, "Server failed to start", logger)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	waitForShutdown := 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), waitForShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error(), "timeout", waitForShutdown)
	} else {
		logger.Info("Server shutdown gracefully")
	}

	// the active runs finish before the storage is closed
	if sched != nil {
		logger.Info("Waiting for the active runs", "active", sched.Active())
		sched.Stop()
	}

	svc.close(ctx)
	return nil
}
