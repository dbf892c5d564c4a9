package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/agentcore/orchestrator/core"
)

func setupLifecycleTestRedis(t *testing.T) *core.RedisClient {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBLifecycle,
		Namespace: "test:lifecycle",
		Logger:    &core.NoOpLogger{},
	})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestRedisLogHappyPath(t *testing.T) {
	client := setupLifecycleTestRedis(t)
	log := NewRedisLog(client)
	ctx := context.Background()
	now := time.Now()

	if _, err := log.CreatePlan(ctx, "plan-1", "corr-1", now); err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if _, err := log.CreateTask(ctx, "task-1", "plan-1", "echo", nil); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	for _, s := range []PlanStatus{PlanPending, PlanRunning, PlanSucceeded} {
		if err := log.PlanTransition(ctx, "plan-1", s, "", ""); err != nil {
			t.Fatalf("PlanTransition(%s) error = %v", s, err)
		}
	}
	for _, s := range []TaskStatus{TaskDispatched, TaskInProgress, TaskSucceeded} {
		if err := log.TaskTransition(ctx, "task-1", s, "", 1); err != nil {
			t.Fatalf("TaskTransition(%s) error = %v", s, err)
		}
	}

	plan, err := log.GetPlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if plan.Status != PlanSucceeded {
		t.Errorf("plan status = %v, want Succeeded", plan.Status)
	}

	task, err := log.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Status != TaskSucceeded {
		t.Errorf("task status = %v, want Succeeded", task.Status)
	}
	if len(task.History) != 4 {
		t.Errorf("history length = %d, want 4", len(task.History))
	}
}

func TestRedisLogRejectsInvalidTransition(t *testing.T) {
	client := setupLifecycleTestRedis(t)
	log := NewRedisLog(client)
	ctx := context.Background()

	if _, err := log.CreatePlan(ctx, "plan-2", "corr-2", time.Now()); err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if err := log.PlanTransition(ctx, "plan-2", PlanSucceeded, "", ""); err == nil {
		t.Error("PlanTransition(Draft->Succeeded) expected error, got nil")
	}
}

func TestRedisLogListInProgressTasks(t *testing.T) {
	client := setupLifecycleTestRedis(t)
	log := NewRedisLog(client)
	ctx := context.Background()

	if _, err := log.CreatePlan(ctx, "plan-3", "corr-3", time.Now()); err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	for _, taskID := range []string{"task-stuck", "task-done"} {
		if _, err := log.CreateTask(ctx, taskID, "plan-3", "echo", nil); err != nil {
			t.Fatalf("CreateTask(%s) error = %v", taskID, err)
		}
		if err := log.TaskTransition(ctx, taskID, TaskDispatched, "", 0); err != nil {
			t.Fatalf("TaskTransition(Dispatched) error = %v", err)
		}
		if err := log.TaskTransition(ctx, taskID, TaskInProgress, "", 1); err != nil {
			t.Fatalf("TaskTransition(InProgress) error = %v", err)
		}
	}
	if err := log.TaskTransition(ctx, "task-done", TaskSucceeded, "", 1); err != nil {
		t.Fatalf("TaskTransition(Succeeded) error = %v", err)
	}

	inProgress, err := log.ListInProgressTasks(ctx)
	if err != nil {
		t.Fatalf("ListInProgressTasks() error = %v", err)
	}
	if len(inProgress) != 1 || inProgress[0].TaskID != "task-stuck" {
		t.Fatalf("ListInProgressTasks() = %+v, want only task-stuck", inProgress)
	}
}

func TestRedisLogPersistsAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	opts := core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBLifecycle,
		Namespace: "test:lifecycle",
		Logger:    &core.NoOpLogger{},
	}

	first, err := core.NewRedisClient(opts)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	log1 := NewRedisLog(first)
	ctx := context.Background()
	if _, err := log1.CreatePlan(ctx, "plan-durable", "corr", time.Now()); err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if err := log1.PlanTransition(ctx, "plan-durable", PlanPending, "", ""); err != nil {
		t.Fatalf("PlanTransition() error = %v", err)
	}
	_ = first.Close()

	second, err := core.NewRedisClient(opts)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer second.Close()
	log2 := NewRedisLog(second)

	plan, err := log2.GetPlan(ctx, "plan-durable")
	if err != nil {
		t.Fatalf("GetPlan() after reconnect error = %v", err)
	}
	if plan.Status != PlanPending {
		t.Errorf("status after reconnect = %v, want Pending (crash-recovery durability)", plan.Status)
	}
}
