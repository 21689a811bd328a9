package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eval-hub/sim-hub/internal/scheduler"
)

var recoverRuns bool

// processCmd executes one batch of queued runs and exits
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Execute one batch of queued runs and exit",
	Long: `Claim up to scheduler.max_concurrent queued runs, execute them and exit once
they have all reached a terminal status. This is meant for cron jobs and CI pipelines.

Examples:
  # Process one batch
  sim-hub process

  # Put orphaned running runs back in the queue first
  sim-hub process --recover`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().BoolVar(&recoverRuns, "recover", false, "requeue runs left running by a crashed process before claiming")
}

func runProcess(cmd *cobra.Command, args []string) error {
	svc := newService(cmd.Context())
	defer svc.close(context.Background())

	sched := scheduler.New(svc.storage, svc.runtime, svc.config.Scheduler, svc.logger)
	if recoverRuns {
		recovered, err := sched.Recover()
		if err != nil {
			return fmt.Errorf("recovering runs: %w", err)
		}
		svc.logger.Info("Recovered runs", "count", recovered)
	}

	processed, err := sched.ProcessOnce(context.Background())
	if err != nil {
		return fmt.Errorf("processing runs: %w", err)
	}
	svc.logger.Info("Processed runs", "count", processed)
	fmt.Fprintf(cmd.OutOrStdout(), "processed %d run(s)\n", processed)
	return nil
}
