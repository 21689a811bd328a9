package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/ids"
	"github.com/eval-hub/sim-hub/internal/metrics"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// Scheduler discovers the queued runs of all the projects, claims them within the
// concurrency budget and executes each claimed run on its own goroutine.
type Scheduler struct {
	storage        abstractions.Storage
	runtime        abstractions.Runtime
	interval       time.Duration
	maxConcurrent  int
	recoverOnStart bool
	logger         *slog.Logger

	mu      sync.Mutex
	running bool
	active  int
	ticker  *time.Ticker
	stop    chan struct{}
	done    chan struct{}

	// tickMu serialises the ticks so that the budget is computed against settled counters
	tickMu sync.Mutex
	runs   sync.WaitGroup
}

func New(storage abstractions.Storage, runtime abstractions.Runtime, schedulerConfig *config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if schedulerConfig == nil {
		schedulerConfig = &config.SchedulerConfig{}
	}
	interval := schedulerConfig.Interval
	if interval <= 0 {
		interval = config.DefaultSchedulerInterval
	}
	maxConcurrent := schedulerConfig.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = config.DefaultMaxConcurrent
	}
	return &Scheduler{
		storage:        storage,
		runtime:        runtime,
		interval:       interval,
		maxConcurrent:  maxConcurrent,
		recoverOnStart: schedulerConfig.RecoverOnStart,
		logger:         logger.With("component", "scheduler"),
	}
}

// Start recovers the orphaned runs and starts the periodic discovery
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if s.recoverOnStart {
		if _, err := s.Recover(); err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return err
		}
	}

	s.mu.Lock()
	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker, stop, done := s.ticker, s.stop, s.done
	s.mu.Unlock()

	s.logger.Info("Scheduler started", "interval", s.interval.String(), "max_concurrent", s.maxConcurrent)
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.isRunning() {
					return
				}
				if _, err := s.tick(ctx); err != nil {
					s.logger.Error("Scheduler tick failed", "error", err.Error())
				}
			}
		}
	}()
	return nil
}

// Stop ends the discovery and waits for the active runs, in-flight calls are not interrupted
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.runs.Wait()
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	s.logger.Info("Scheduler stopping, waiting for the active runs", "active", s.Active())
	s.runs.Wait()
	s.logger.Info("Scheduler stopped")
}

// ProcessOnce runs exactly one discovery tick and waits for the runs it started
func (s *Scheduler) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := s.tick(ctx)
	batch.Wait()
	return batch.count, err
}

// Active returns the number of runs currently executing
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Recover puts every running run back in the queue, the process that owned it is assumed dead.
// The conversation restarts from the beginning on a fresh thread.
func (s *Scheduler) Recover() (int, error) {
	projects, err := s.storage.ListProjects()
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, project := range projects {
		running, err := s.storage.Runs(project).FindBy(abstractions.Filter{"status": api.RunStatusRunning})
		if err != nil {
			return recovered, err
		}
		for i := range running {
			run := &running[i]
			run.Status = api.RunStatusQueued
			run.ThreadID = ids.NewThreadID()
			run.StartedAt = nil
			if err := s.storage.Runs(project).Save(run); err != nil {
				return recovered, err
			}
			recovered++
			metrics.RunsRecovered.Inc()
			s.logger.Info("Recovered orphaned run", constants.LOG_PROJECT, project, constants.LOG_RUN_ID, run.ID)
		}
	}
	return recovered, nil
}

// launched tracks the runs started by one tick
type launched struct {
	sync.WaitGroup
	count int
}

func (s *Scheduler) tick(ctx context.Context) (*launched, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	batch := &launched{}
	available := s.maxConcurrent - s.Active()
	if available <= 0 {
		return batch, nil
	}

	projects, err := s.storage.ListProjects()
	if err != nil {
		return batch, err
	}
	for _, project := range projects {
		if available <= 0 {
			break
		}
		queued, err := s.storage.Runs(project).FindBy(abstractions.Filter{"status": api.RunStatusQueued})
		if err != nil {
			s.logger.Error("Failed to list queued runs", constants.LOG_PROJECT, project, "error", err.Error())
			continue
		}
		for _, candidate := range queued {
			if available <= 0 {
				break
			}
			run, claimed, err := s.storage.ClaimRun(project, candidate.ID)
			if err != nil {
				s.logger.Error("Failed to claim run", constants.LOG_PROJECT, project, constants.LOG_RUN_ID, candidate.ID, "error", err.Error())
				continue
			}
			if !claimed {
				metrics.ClaimConflicts.Inc()
				continue
			}
			metrics.RunsClaimed.Inc()
			available--
			s.launch(ctx, run, batch)
		}
	}
	if batch.count > 0 {
		s.logger.Info("Scheduler tick started runs", "started", batch.count, "active", s.Active())
	}
	return batch, nil
}

func (s *Scheduler) launch(ctx context.Context, run *api.Run, batch *launched) {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
	metrics.ActiveRuns.Inc()
	s.runs.Add(1)
	batch.Add(1)
	batch.count++

	// stopping the scheduler must not interrupt the run
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
			metrics.ActiveRuns.Dec()
			batch.Done()
			s.runs.Done()
		}()
		if err := s.runtime.ExecuteRun(runCtx, run, s.storage); err != nil {
			s.logger.Error("Failed to execute run", constants.LOG_PROJECT, run.Project, constants.LOG_RUN_ID, run.ID, "error", err.Error())
		}
	}()
}
