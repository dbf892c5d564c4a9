// Package lifecycle implements the durable Plan/Task Lifecycle Log: ordered
// state machines for plans and tasks, with the transition tables and
// idempotency rules the orchestration core depends on for crash recovery.
package lifecycle

import (
	"encoding/json"
	"time"
)

// PlanStatus is one state in a plan's lifecycle.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "Draft"
	PlanPending   PlanStatus = "Pending"
	PlanRunning   PlanStatus = "Running"
	PlanSucceeded PlanStatus = "Succeeded"
	PlanFailed    PlanStatus = "Failed"
)

// TaskStatus is one state in a task's lifecycle.
type TaskStatus string

const (
	TaskQueued       TaskStatus = "Queued"
	TaskDispatched   TaskStatus = "Dispatched"
	TaskInProgress   TaskStatus = "InProgress"
	TaskRetried      TaskStatus = "Retried"
	TaskSucceeded    TaskStatus = "Succeeded"
	TaskDeadLettered TaskStatus = "DeadLettered"
)

// IsTerminal reports whether a plan status is terminal (Succeeded/Failed).
func (s PlanStatus) IsTerminal() bool {
	return s == PlanSucceeded || s == PlanFailed
}

// IsTerminal reports whether a task status is terminal
// (Succeeded/DeadLettered).
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskDeadLettered
}

// planTransitions enumerates every allowed direct move:
// Draft -> Pending -> Running -> Succeeded | Failed, plus the dispatcher's
// pre-flight short-circuit Draft -> Failed for a plan refused before any
// task is created (the circuit was already open for its target agent).
// Backward transitions, and any transition not listed here, are rejected.
var planTransitions = map[PlanStatus]map[PlanStatus]bool{
	PlanDraft:   {PlanPending: true, PlanFailed: true},
	PlanPending: {PlanRunning: true},
	PlanRunning: {PlanSucceeded: true, PlanFailed: true},
}

// taskTransitions enumerates every allowed direct move:
// Queued -> Dispatched -> InProgress -> (Retried -> InProgress)* ->
// Succeeded | DeadLettered.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskQueued:     {TaskDispatched: true},
	TaskDispatched: {TaskInProgress: true},
	TaskInProgress: {TaskRetried: true, TaskSucceeded: true, TaskDeadLettered: true},
	TaskRetried:    {TaskInProgress: true},
}

// ValidPlanTransition reports whether moving from `from` to `to` is a legal
// direct edge in the plan state machine. A transition from a status to
// itself is always legal when that status is terminal (idempotent replay of
// a terminal transition is a no-op, not an error); it is illegal otherwise.
func ValidPlanTransition(from, to PlanStatus) bool {
	if from == to {
		return from.IsTerminal()
	}
	return planTransitions[from][to]
}

// ValidTaskTransition is the task-state-machine analogue of
// ValidPlanTransition.
func ValidTaskTransition(from, to TaskStatus) bool {
	if from == to {
		return from.IsTerminal()
	}
	return taskTransitions[from][to]
}

// PlanTransitionEntry is one recorded move in a plan's history.
type PlanTransitionEntry struct {
	Status PlanStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
	At     time.Time  `json:"at"`
}

// TaskTransitionEntry is one recorded move in a task's history.
type TaskTransitionEntry struct {
	Status  TaskStatus `json:"status"`
	Detail  string     `json:"detail,omitempty"`
	Attempt int        `json:"attempt,omitempty"`
	At      time.Time  `json:"at"`
}

// PlanRecord is the durable view of one plan.
type PlanRecord struct {
	PlanID        string                `json:"plan_id"`
	CorrelationID string                `json:"correlation_id"`
	CreatedAt     time.Time             `json:"created_at"`
	Status        PlanStatus            `json:"status"`
	StatusDetail  string                `json:"status_detail,omitempty"`
	History       []PlanTransitionEntry `json:"history"`
}

// TaskRecord is the durable view of one task.
type TaskRecord struct {
	TaskID         string                `json:"task_id"`
	PlanID         string                `json:"plan_id"`
	TargetAgent    string                `json:"target_agent"`
	RequestPayload json.RawMessage       `json:"request_payload,omitempty"`
	AttemptCount   int                   `json:"attempt_count"`
	Status         TaskStatus            `json:"status"`
	LastError      string                `json:"last_error,omitempty"`
	History        []TaskTransitionEntry `json:"history"`
}

// LastTransitionAt returns the timestamp of the most recent entry in
// History, or the zero time if the task has no history yet.
func (t TaskRecord) LastTransitionAt() time.Time {
	if len(t.History) == 0 {
		return time.Time{}
	}
	return t.History[len(t.History)-1].At
}
