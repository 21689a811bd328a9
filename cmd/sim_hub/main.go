// Package main implements the sim-hub service and its batch processing command.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/eval-hub/sim-hub/cmd/sim_hub/server"
	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/llm"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/runtimes"
	"github.com/eval-hub/sim-hub/internal/storage"
	"github.com/eval-hub/sim-hub/internal/tracing"
	"github.com/eval-hub/sim-hub/internal/validation"
)

var (
	// Version can be set during the compilation
	Version string = "0.0.1"
	// Build is set during the compilation
	Build string
	// BuildDate is set during the compilation
	BuildDate string

	// configDir overrides the directories searched for config.yaml
	configDir string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sim-hub",
	Short: "Simulated conversation evaluation service",
	Long: `sim-hub drives simulated users through conversations with agents under test
and judges the transcripts against the success and failure criteria of a scenario.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory containing config.yaml")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
}

// service holds what both commands need to execute runs
type service struct {
	logger          *slog.Logger
	config          *config.Config
	validate        *validator.Validate
	storage         abstractions.Storage
	runtime         abstractions.Runtime
	logShutdown     logging.ShutdownFunc
	tracingShutdown tracing.ShutdownFunc
}

func newService(ctx context.Context) *service {
	// the log level is in the config file so the config is loaded with the fallback logger
	dirs := []string{}
	if configDir != "" {
		dirs = append(dirs, configDir)
	}
	serviceConfig, err := config.LoadConfig(logging.FallbackLogger(), Version, Build, BuildDate, dirs...)
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(nil, err, "Failed to create service config", logging.FallbackLogger())
	}

	logger, logShutdown, err := logging.NewLogger(serviceConfig.Service.LogLevel)
	if err != nil {
		startUpFailed(serviceConfig, err, "Failed to create service logger", logging.FallbackLogger())
	}

	tracingShutdown, err := tracing.Setup(ctx, serviceConfig.Tracing, Version, logger)
	if err != nil {
		startUpFailed(serviceConfig, err, "Failed to set up tracing", logger)
	}

	validate, err := validation.NewValidator()
	if err != nil {
		startUpFailed(serviceConfig, err, "Failed to create validator", logger)
	}

	store, err := storage.NewStorage(serviceConfig.Database, logger)
	if err != nil {
		startUpFailed(serviceConfig, err, "Failed to create storage", logger)
	}

	resolver := llm.NewResolver(serviceConfig.LLM.Default, serviceConfig.LLM.Projects, logger)
	runtime, err := runtimes.NewRuntime(logger, serviceConfig, resolver)
	if err != nil {
		startUpFailed(serviceConfig, err, "Failed to create runtime", logger)
	}
	logger.Info("Runtime created", "runtime", runtime.Name())

	return &service{
		logger:          logger,
		config:          serviceConfig,
		validate:        validate,
		storage:         store,
		runtime:         runtime,
		logShutdown:     logShutdown,
		tracingShutdown: tracingShutdown,
	}
}

// close releases the storage and flushes the traces and the logs
func (s *service) close(ctx context.Context) {
	if err := s.storage.Close(); err != nil {
		s.logger.Error("Failed to close storage", "error", err.Error())
	}
	if err := s.tracingShutdown(ctx); err != nil {
		s.logger.Error("Failed to flush traces", "error", err.Error())
	}
	_ = s.logShutdown() // ignore the error
}

func startUpFailed(conf *config.Config, err error, msg string, logger *slog.Logger) {
	termErr := server.SetTerminationMessage(server.GetTerminationFile(conf, logger), fmt.Sprintf("%s: %s", msg, err.Error()), logger)
	if termErr != nil {
		logger.Error("Failed to set termination message", "message", msg, "error", termErr.Error())
		log.Println(termErr.Error())
	}
	log.Fatal(err)
}
