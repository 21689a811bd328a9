package scheduler_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/config"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/scheduler"
	"github.com/eval-hub/sim-hub/internal/storage"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// countingRuntime completes every run it is given and records the executions
type countingRuntime struct {
	mu       sync.Mutex
	executed map[string]int
	order    []string
	delay    time.Duration
}

func newCountingRuntime(delay time.Duration) *countingRuntime {
	return &countingRuntime{executed: map[string]int{}, delay: delay}
}

func (r *countingRuntime) Name() string {
	return "counting"
}

func (r *countingRuntime) ExecuteRun(ctx context.Context, run *api.Run, store abstractions.Storage) error {
	r.mu.Lock()
	r.executed[run.ID]++
	r.order = append(r.order, run.ID)
	r.mu.Unlock()
	time.Sleep(r.delay)
	run.Status = api.RunStatusCompleted
	run.Result = &api.RunResult{Success: true, Score: 1}
	return store.Runs(run.Project).Save(run)
}

func (r *countingRuntime) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, count := range r.executed {
		total += count
	}
	return total
}

func newStorage(t *testing.T) abstractions.Storage {
	t.Helper()
	databaseConfig := map[string]any{
		"driver": "sqlite",
		"url":    "file:" + filepath.Join(t.TempDir(), "scheduler.db"),
	}
	store, err := storage.NewStorage(&databaseConfig, logging.FallbackLogger())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func queueRuns(t *testing.T, store abstractions.Storage, project string, n int) []api.Run {
	t.Helper()
	runs := []api.Run{}
	for i := 0; i < n; i++ {
		run := api.Run{ScenarioID: "s1", Status: api.RunStatusQueued}
		if err := store.Runs(project).Save(&run); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
		runs = append(runs, run)
	}
	return runs
}

func TestProcessOnce(t *testing.T) {
	t.Run("max concurrent bounds the runs started per tick", func(t *testing.T) {
		store := newStorage(t)
		runs := queueRuns(t, store, "acme", 5)
		runtime := newCountingRuntime(0)
		s := scheduler.New(store, runtime, &config.SchedulerConfig{MaxConcurrent: 2}, logging.FallbackLogger())

		started, err := s.ProcessOnce(context.Background())
		if err != nil {
			t.Fatalf("Failed to process: %v", err)
		}
		if started != 2 || runtime.total() != 2 {
			t.Fatalf("Expected exactly 2 runs, got %d started and %d executed", started, runtime.total())
		}
		// oldest first
		if runtime.executed[runs[0].ID] != 1 || runtime.executed[runs[1].ID] != 1 {
			t.Fatalf("Expected the two oldest runs, got %v", runtime.order)
		}
		queued, err := store.Runs("acme").FindBy(abstractions.Filter{"status": api.RunStatusQueued})
		if err != nil {
			t.Fatalf("Failed to list runs: %v", err)
		}
		if len(queued) != 3 {
			t.Fatalf("Expected 3 runs left in the queue, got %d", len(queued))
		}
	})

	t.Run("the budget is shared by all the projects", func(t *testing.T) {
		store := newStorage(t)
		acme := queueRuns(t, store, "acme", 2)
		queueRuns(t, store, "beta", 2)
		runtime := newCountingRuntime(0)
		s := scheduler.New(store, runtime, &config.SchedulerConfig{MaxConcurrent: 3}, logging.FallbackLogger())

		started, err := s.ProcessOnce(context.Background())
		if err != nil {
			t.Fatalf("Failed to process: %v", err)
		}
		if started != 3 {
			t.Fatalf("Expected 3 runs, got %d", started)
		}
		if runtime.executed[acme[0].ID] != 1 || runtime.executed[acme[1].ID] != 1 {
			t.Fatalf("Expected the first project to be served first, got %v", runtime.order)
		}
	})

	t.Run("concurrent schedulers start a run at most once", func(t *testing.T) {
		store := newStorage(t)
		runs := queueRuns(t, store, "acme", 3)
		runtime := newCountingRuntime(20 * time.Millisecond)
		first := scheduler.New(store, runtime, &config.SchedulerConfig{MaxConcurrent: 10}, logging.FallbackLogger())
		second := scheduler.New(store, runtime, &config.SchedulerConfig{MaxConcurrent: 10}, logging.FallbackLogger())

		var wg sync.WaitGroup
		for _, s := range []*scheduler.Scheduler{first, second} {
			wg.Add(1)
			go func(s *scheduler.Scheduler) {
				defer wg.Done()
				if _, err := s.ProcessOnce(context.Background()); err != nil {
					t.Errorf("Failed to process: %v", err)
				}
			}(s)
		}
		wg.Wait()

		for _, run := range runs {
			if runtime.executed[run.ID] != 1 {
				t.Fatalf("Expected run %s to be executed once, got %d", run.ID, runtime.executed[run.ID])
			}
		}
	})
}

func TestRecovery(t *testing.T) {
	t.Run("running runs go back to the queue with a new thread", func(t *testing.T) {
		store := newStorage(t)
		started := time.Now()
		orphan := &api.Run{ScenarioID: "s1", Status: api.RunStatusRunning, ThreadID: "old-thread", StartedAt: &started}
		if err := store.Runs("acme").Save(orphan); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
		s := scheduler.New(store, newCountingRuntime(0), &config.SchedulerConfig{MaxConcurrent: 1}, logging.FallbackLogger())
		recovered, err := s.Recover()
		if err != nil {
			t.Fatalf("Failed to recover: %v", err)
		}
		if recovered != 1 {
			t.Fatalf("Expected 1 recovered run, got %d", recovered)
		}
		stored, err := store.Runs("acme").FindByID(orphan.ID)
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if stored.Status != api.RunStatusQueued || stored.ThreadID == "old-thread" || stored.StartedAt != nil {
			t.Fatalf("Unexpected recovered run %s %s %v", stored.Status, stored.ThreadID, stored.StartedAt)
		}
	})

	t.Run("Start recovers and executes, Stop waits for the active runs", func(t *testing.T) {
		store := newStorage(t)
		orphan := &api.Run{ScenarioID: "s1", Status: api.RunStatusRunning}
		if err := store.Runs("acme").Save(orphan); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
		runtime := newCountingRuntime(50 * time.Millisecond)
		s := scheduler.New(store, runtime, &config.SchedulerConfig{
			Interval:       10 * time.Millisecond,
			MaxConcurrent:  1,
			RecoverOnStart: true,
		}, logging.FallbackLogger())
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Failed to start: %v", err)
		}

		deadline := time.Now().Add(5 * time.Second)
		for runtime.total() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		s.Stop()

		if runtime.total() != 1 {
			t.Fatalf("Expected the recovered run to be executed once, got %d", runtime.total())
		}
		if s.Active() != 0 {
			t.Fatalf("Expected no active runs after Stop, got %d", s.Active())
		}
		stored, err := store.Runs("acme").FindByID(orphan.ID)
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if stored.Status != api.RunStatusCompleted {
			t.Fatalf("Expected Stop to wait for the run to complete, got %s", stored.Status)
		}
	})
}
