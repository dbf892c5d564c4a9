package lifecycle

import (
	"context"
	"encoding/json"
	"time"
)

// Log is the Lifecycle Log contract (spec section 4.5): durable plan and
// task state machines with ordered transitions, each flushed before the
// caller observes its effect.
type Log interface {
	// CreatePlan creates a new plan record in PlanDraft, keyed by planID.
	CreatePlan(ctx context.Context, planID, correlationID string, now time.Time) (PlanRecord, error)

	// CreateTask creates a new task record in TaskQueued, keyed by taskID,
	// as a child of planID.
	CreateTask(ctx context.Context, taskID, planID, targetAgent string, payload json.RawMessage) (TaskRecord, error)

	// PlanTransition appends a transition to newStatus for planID. Reapplying
	// an identical terminal transition is a no-op. An illegal edge returns
	// core.ErrInvalidTransition; an unknown planID returns core.ErrPlanNotFound.
	PlanTransition(ctx context.Context, planID string, newStatus PlanStatus, detail, correlationID string) error

	// TaskTransition is the task analogue of PlanTransition.
	TaskTransition(ctx context.Context, taskID string, newStatus TaskStatus, detail string, attempt int) error

	// GetPlan returns the current record for planID.
	GetPlan(ctx context.Context, planID string) (PlanRecord, error)

	// GetTask returns the current record for taskID.
	GetTask(ctx context.Context, taskID string) (TaskRecord, error)

	// ListInProgressTasks returns every task currently in TaskInProgress, so
	// a background sweep can find work orphaned by a process crash.
	ListInProgressTasks(ctx context.Context) ([]TaskRecord, error)
}
