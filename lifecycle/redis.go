package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// RedisLog is a durable Log backed by core.RedisClient against
// core.RedisDBLifecycle. As with health.RedisStore, a single orchestrator
// process is the sole writer to a given Redis DB, so an in-process mutex
// around each read-modify-write satisfies the log's durability and ordering
// requirements without a Redis-side transaction.
type RedisLog struct {
	client *core.RedisClient
	mu     sync.Mutex
	logger core.Logger
}

// NewRedisLog wraps client as a Log. client should be opened against
// core.RedisDBLifecycle.
func NewRedisLog(client *core.RedisClient) *RedisLog {
	return &RedisLog{client: client, logger: &core.NoOpLogger{}}
}

// SetLogger wires a component-tagged logger.
func (r *RedisLog) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("orchestrator/lifecycle")
		return
	}
	r.logger = logger
}

// inProgressIndexKey is a Redis set tracking every task currently
// InProgress, so ListInProgressTasks can enumerate them without a
// namespace-wide SCAN.
const inProgressIndexKey = "tasks:inprogress"

func planKey(planID string) string { return "plan:" + planID }
func taskKey(taskID string) string { return "task:" + taskID }

func (r *RedisLog) readPlan(ctx context.Context, planID string) (*PlanRecord, error) {
	raw, err := r.client.Get(ctx, planKey(planID))
	if err != nil || raw == "" {
		return nil, core.ErrPlanNotFound
	}
	var record PlanRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, core.NewFrameworkError("lifecycle.RedisLog", "Internal", err)
	}
	return &record, nil
}

func (r *RedisLog) writePlan(ctx context.Context, record *PlanRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, planKey(record.PlanID), string(data), 0)
}

func (r *RedisLog) readTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	raw, err := r.client.Get(ctx, taskKey(taskID))
	if err != nil || raw == "" {
		return nil, core.ErrTaskNotFound
	}
	var record TaskRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, core.NewFrameworkError("lifecycle.RedisLog", "Internal", err)
	}
	return &record, nil
}

func (r *RedisLog) writeTask(ctx context.Context, record *TaskRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, taskKey(record.TaskID), string(data), 0)
}

func (r *RedisLog) CreatePlan(ctx context.Context, planID, correlationID string, now time.Time) (PlanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := &PlanRecord{
		PlanID:        planID,
		CorrelationID: correlationID,
		CreatedAt:     now,
		Status:        PlanDraft,
		History:       []PlanTransitionEntry{{Status: PlanDraft, At: now}},
	}
	if err := r.writePlan(ctx, record); err != nil {
		return PlanRecord{}, core.NewFrameworkError("lifecycle.RedisLog.CreatePlan", "Internal", err)
	}
	return *record, nil
}

func (r *RedisLog) CreateTask(ctx context.Context, taskID, planID, targetAgent string, payload json.RawMessage) (TaskRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.readPlan(ctx, planID); err != nil {
		return TaskRecord{}, core.NewFrameworkError("lifecycle.RedisLog.CreateTask", "ValidationError", core.ErrPlanNotFound)
	}

	now := time.Now()
	record := &TaskRecord{
		TaskID:         taskID,
		PlanID:         planID,
		TargetAgent:    targetAgent,
		RequestPayload: payload,
		Status:         TaskQueued,
		History:        []TaskTransitionEntry{{Status: TaskQueued, At: now}},
	}
	if err := r.writeTask(ctx, record); err != nil {
		return TaskRecord{}, core.NewFrameworkError("lifecycle.RedisLog.CreateTask", "Internal", err)
	}
	return *record, nil
}

func (r *RedisLog) PlanTransition(ctx context.Context, planID string, newStatus PlanStatus, detail, correlationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.readPlan(ctx, planID)
	if err != nil {
		return core.NewFrameworkError("lifecycle.RedisLog.PlanTransition", "ValidationError", err)
	}

	if record.Status == newStatus && newStatus.IsTerminal() {
		return nil
	}
	if !ValidPlanTransition(record.Status, newStatus) {
		return core.NewFrameworkError("lifecycle.RedisLog.PlanTransition", "ValidationError",
			fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, record.Status, newStatus))
	}

	now := time.Now()
	record.Status = newStatus
	record.StatusDetail = detail
	if correlationID != "" {
		record.CorrelationID = correlationID
	}
	record.History = append(record.History, PlanTransitionEntry{Status: newStatus, Detail: detail, At: now})

	if err := r.writePlan(ctx, record); err != nil {
		return core.NewFrameworkError("lifecycle.RedisLog.PlanTransition", "Internal", err)
	}
	return nil
}

func (r *RedisLog) TaskTransition(ctx context.Context, taskID string, newStatus TaskStatus, detail string, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.readTask(ctx, taskID)
	if err != nil {
		return core.NewFrameworkError("lifecycle.RedisLog.TaskTransition", "ValidationError", err)
	}

	if record.Status == newStatus && newStatus.IsTerminal() {
		return nil
	}
	if !ValidTaskTransition(record.Status, newStatus) {
		return core.NewFrameworkError("lifecycle.RedisLog.TaskTransition", "ValidationError",
			fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, record.Status, newStatus))
	}

	now := time.Now()
	record.Status = newStatus
	if detail != "" {
		record.LastError = detail
	}
	if attempt > record.AttemptCount {
		record.AttemptCount = attempt
	}
	record.History = append(record.History, TaskTransitionEntry{Status: newStatus, Detail: detail, Attempt: attempt, At: now})

	if err := r.writeTask(ctx, record); err != nil {
		return core.NewFrameworkError("lifecycle.RedisLog.TaskTransition", "Internal", err)
	}

	if newStatus == TaskInProgress {
		if err := r.client.SAdd(ctx, inProgressIndexKey, taskID); err != nil {
			r.logger.Warn("lifecycle: failed to index in-progress task", map[string]interface{}{"task_id": taskID, "error": err.Error()})
		}
	} else {
		if err := r.client.SRem(ctx, inProgressIndexKey, taskID); err != nil {
			r.logger.Warn("lifecycle: failed to unindex in-progress task", map[string]interface{}{"task_id": taskID, "error": err.Error()})
		}
	}
	return nil
}

func (r *RedisLog) ListInProgressTasks(ctx context.Context) ([]TaskRecord, error) {
	ids, err := r.client.SMembers(ctx, inProgressIndexKey)
	if err != nil {
		return nil, core.NewFrameworkError("lifecycle.RedisLog.ListInProgressTasks", "Internal", err)
	}
	out := make([]TaskRecord, 0, len(ids))
	for _, id := range ids {
		record, err := r.readTask(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *record)
	}
	return out, nil
}

func (r *RedisLog) GetPlan(ctx context.Context, planID string) (PlanRecord, error) {
	record, err := r.readPlan(ctx, planID)
	if err != nil {
		return PlanRecord{}, core.NewFrameworkError("lifecycle.RedisLog.GetPlan", "ValidationError", err)
	}
	return *record, nil
}

func (r *RedisLog) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	record, err := r.readTask(ctx, taskID)
	if err != nil {
		return TaskRecord{}, core.NewFrameworkError("lifecycle.RedisLog.GetTask", "ValidationError", err)
	}
	return *record, nil
}
