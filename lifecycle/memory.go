package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// MemoryLog is an in-process Log backed by mutex-protected maps. It is the
// fallback backend when Redis is disabled, and the backend used by tests.
type MemoryLog struct {
	mu     sync.Mutex
	plans  map[string]*PlanRecord
	tasks  map[string]*TaskRecord
	logger core.Logger
}

// NewMemoryLog creates an empty in-memory lifecycle log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		plans:  make(map[string]*PlanRecord),
		tasks:  make(map[string]*TaskRecord),
		logger: &core.NoOpLogger{},
	}
}

// SetLogger wires a component-tagged logger.
func (m *MemoryLog) SetLogger(logger core.Logger) {
	if logger == nil {
		m.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		m.logger = cal.WithComponent("orchestrator/lifecycle")
		return
	}
	m.logger = logger
}

func (m *MemoryLog) CreatePlan(ctx context.Context, planID, correlationID string, now time.Time) (PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := &PlanRecord{
		PlanID:        planID,
		CorrelationID: correlationID,
		CreatedAt:     now,
		Status:        PlanDraft,
		History:       []PlanTransitionEntry{{Status: PlanDraft, At: now}},
	}
	m.plans[planID] = record
	m.logger.Debug("plan created", map[string]interface{}{"plan_id": planID, "correlation_id": correlationID})
	return *record, nil
}

func (m *MemoryLog) CreateTask(ctx context.Context, taskID, planID, targetAgent string, payload json.RawMessage) (TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plans[planID]; !ok {
		return TaskRecord{}, core.NewFrameworkError("lifecycle.CreateTask", "ValidationError", core.ErrPlanNotFound)
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
	m.tasks[taskID] = record
	m.logger.Debug("task created", map[string]interface{}{"task_id": taskID, "plan_id": planID, "target_agent": targetAgent})
	return *record, nil
}

func (m *MemoryLog) PlanTransition(ctx context.Context, planID string, newStatus PlanStatus, detail, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.plans[planID]
	if !ok {
		return core.NewFrameworkError("lifecycle.PlanTransition", "ValidationError", core.ErrPlanNotFound)
	}

	if record.Status == newStatus && newStatus.IsTerminal() {
		m.logger.Debug("plan terminal transition replayed, no-op", map[string]interface{}{
			"plan_id": planID, "status": string(newStatus),
		})
		return nil
	}
	if !ValidPlanTransition(record.Status, newStatus) {
		return core.NewFrameworkError("lifecycle.PlanTransition", "ValidationError",
			fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, record.Status, newStatus))
	}

	now := time.Now()
	record.Status = newStatus
	record.StatusDetail = detail
	if correlationID != "" {
		record.CorrelationID = correlationID
	}
	record.History = append(record.History, PlanTransitionEntry{Status: newStatus, Detail: detail, At: now})

	m.logger.Info("plan transitioned", map[string]interface{}{
		"plan_id": planID, "status": string(newStatus), "detail": detail,
	})
	return nil
}

func (m *MemoryLog) TaskTransition(ctx context.Context, taskID string, newStatus TaskStatus, detail string, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.tasks[taskID]
	if !ok {
		return core.NewFrameworkError("lifecycle.TaskTransition", "ValidationError", core.ErrTaskNotFound)
	}

	if record.Status == newStatus && newStatus.IsTerminal() {
		m.logger.Debug("task terminal transition replayed, no-op", map[string]interface{}{
			"task_id": taskID, "status": string(newStatus),
		})
		return nil
	}
	if !ValidTaskTransition(record.Status, newStatus) {
		return core.NewFrameworkError("lifecycle.TaskTransition", "ValidationError",
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

	m.logger.Info("task transitioned", map[string]interface{}{
		"task_id": taskID, "status": string(newStatus), "attempt": attempt,
	})
	return nil
}

func (m *MemoryLog) GetPlan(ctx context.Context, planID string) (PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.plans[planID]
	if !ok {
		return PlanRecord{}, core.NewFrameworkError("lifecycle.GetPlan", "ValidationError", core.ErrPlanNotFound)
	}
	return *record, nil
}

func (m *MemoryLog) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.tasks[taskID]
	if !ok {
		return TaskRecord{}, core.NewFrameworkError("lifecycle.GetTask", "ValidationError", core.ErrTaskNotFound)
	}
	return *record, nil
}

func (m *MemoryLog) ListInProgressTasks(ctx context.Context) ([]TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TaskRecord, 0)
	for _, record := range m.tasks {
		if record.Status == TaskInProgress {
			out = append(out, *record)
		}
	}
	return out, nil
}
