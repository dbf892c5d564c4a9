package resilience

import (
	"context"
	"time"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/lifecycle"
)

// Sweeper periodically dead-letters tasks stuck in InProgress past their
// timeout plus a grace period — the durable-log analogue of a process
// crashing mid-attempt and never writing a terminal transition.
type Sweeper struct {
	log    lifecycle.Log
	grace  time.Duration
	logger core.Logger
}

// NewSweeper builds a Sweeper. grace is added on top of the maxAge passed
// to Sweep before a stuck task is considered orphaned, so a slow but
// still-running attempt isn't dead-lettered out from under itself.
func NewSweeper(log lifecycle.Log, grace time.Duration) *Sweeper {
	return &Sweeper{log: log, grace: grace, logger: &core.NoOpLogger{}}
}

// SetLogger wires a component-tagged logger.
func (s *Sweeper) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		s.logger = cal.WithComponent("orchestrator/retry")
		return
	}
	s.logger = logger
}

// Sweep runs one cleanup pass: any InProgress task whose last transition is
// older than maxAge is dead-lettered with a BackendFailure detail. Returns
// the number of tasks cleaned.
func (s *Sweeper) Sweep(ctx context.Context, maxAge time.Duration) int {
	tasks, err := s.log.ListInProgressTasks(ctx)
	if err != nil {
		s.logger.Warn("sweep: failed to list in-progress tasks", map[string]interface{}{"error": err.Error()})
		return 0
	}

	cutoff := maxAge + s.grace
	cleaned := 0
	now := time.Now()
	for _, task := range tasks {
		age := now.Sub(task.LastTransitionAt())
		if age < cutoff {
			continue
		}
		if err := s.log.TaskTransition(ctx, task.TaskID, lifecycle.TaskDeadLettered, "BackendFailure: orphaned, no transition within timeout+grace", task.AttemptCount); err != nil {
			s.logger.Warn("sweep: failed to dead-letter orphaned task", map[string]interface{}{
				"task_id": task.TaskID, "error": err.Error(),
			})
			continue
		}
		s.logger.Warn("sweep: dead-lettered orphaned task", map[string]interface{}{
			"task_id": task.TaskID, "plan_id": task.PlanID, "age": age.String(),
		})
		cleaned++
	}
	return cleaned
}

// Run calls Sweep every interval, using maxAge as the per-task staleness
// threshold, until stop is closed.
func (s *Sweeper) Run(ctx context.Context, interval, maxAge time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, maxAge)
		}
	}
}
