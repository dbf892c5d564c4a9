// Package dispatcher implements the Plan Dispatcher: the entry point that
// turns one inbound chat request into a plan, a pre-flight circuit check,
// a task handed to the Retry Controller, and a response.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/orchestrator/agentproto"
	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/health"
	"github.com/agentcore/orchestrator/lifecycle"
	"github.com/agentcore/orchestrator/planner"
	"github.com/agentcore/orchestrator/resilience"
)

// Request is one inbound chat request.
type Request struct {
	Message       string
	CorrelationID string
	APIVersion    string
}

// ErrorInfo is the structured error surfaced to callers on a failed
// dispatch.
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Response is the outcome of one dispatch.
type Response struct {
	APIVersion    string     `json:"api_version,omitempty"`
	Status        string     `json:"status"`
	Output        string     `json:"output,omitempty"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id"`
	PlanID        string     `json:"plan_id,omitempty"`
}

// Dispatcher wires the Planning Strategy, Agent Executor, Health & Circuit
// Store, Lifecycle Log, and concurrency governor into one end-to-end
// dispatch.
type Dispatcher struct {
	strategy  planner.Strategy
	executor  *agentproto.Executor
	health    health.Store
	lifecycle lifecycle.Log
	governor  *resilience.Governor
	agentsMu  sync.RWMutex
	agents    core.AgentsConfig
	logger    core.Logger
}

// New builds a Dispatcher from its collaborators.
func New(
	strategy planner.Strategy,
	executor *agentproto.Executor,
	healthStore health.Store,
	lifecycleLog lifecycle.Log,
	governor *resilience.Governor,
	agents core.AgentsConfig,
) *Dispatcher {
	return &Dispatcher{
		strategy:  strategy,
		executor:  executor,
		health:    healthStore,
		lifecycle: lifecycleLog,
		governor:  governor,
		agents:    agents,
		logger:    &core.NoOpLogger{},
	}
}

// SetLogger attaches a logger, wrapping it with a component tag when the
// logger supports one.
func (d *Dispatcher) SetLogger(logger core.Logger) {
	if logger == nil {
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		d.logger = cal.WithComponent("orchestrator/dispatcher")
		return
	}
	d.logger = logger
}

// SetAgentsConfig swaps in a freshly reloaded set of retry policies without
// interrupting in-flight dispatches. Wired to core.ConfigWatcher so
// retry tuning can be adjusted without a restart.
func (d *Dispatcher) SetAgentsConfig(agents core.AgentsConfig) {
	d.agentsMu.Lock()
	defer d.agentsMu.Unlock()
	d.agents = agents
}

func (d *Dispatcher) agentsConfig() core.AgentsConfig {
	d.agentsMu.RLock()
	defer d.agentsMu.RUnlock()
	return d.agents
}

// Dispatch runs one chat request end to end, per section 4.1's behavior:
// assign a correlation id, plan the target agent, pre-flight circuit
// check, lifecycle transitions, and hand-off to the Retry Controller.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	apiVersion := req.APIVersion
	if apiVersion == "" {
		apiVersion = "v1"
	}
	resp := Response{APIVersion: apiVersion, CorrelationID: correlationID}

	plan, err := d.strategy.Plan(req.Message)
	if err != nil {
		resp.Status = "error"
		resp.Error = errorInfoFrom(err, "PlanningFailed")
		return resp
	}

	now := time.Now()
	planID := uuid.New().String()
	if _, err := d.lifecycle.CreatePlan(ctx, planID, correlationID, now); err != nil {
		resp.Status = "error"
		resp.Error = &ErrorInfo{Code: "Internal", Message: err.Error()}
		return resp
	}
	resp.PlanID = planID

	summary, err := d.health.Get(ctx, plan.AgentName)
	if err != nil {
		resp.Status = "error"
		resp.Error = &ErrorInfo{Code: "Internal", Message: err.Error()}
		return resp
	}
	if summary.State == health.Unhealthy && summary.CircuitOpen(now) {
		return d.refusePreFlight(ctx, planID, correlationID, plan.AgentName, summary, resp)
	}

	if err := d.lifecycle.PlanTransition(ctx, planID, lifecycle.PlanPending, "", correlationID); err != nil {
		resp.Status = "error"
		resp.Error = &ErrorInfo{Code: "Internal", Message: err.Error()}
		return resp
	}
	if err := d.lifecycle.PlanTransition(ctx, planID, lifecycle.PlanRunning, "", correlationID); err != nil {
		resp.Status = "error"
		resp.Error = &ErrorInfo{Code: "Internal", Message: err.Error()}
		return resp
	}

	taskID := uuid.New().String()
	if _, err := d.lifecycle.CreateTask(ctx, taskID, planID, plan.AgentName, plan.Payload); err != nil {
		resp.Status = "error"
		resp.Error = &ErrorInfo{Code: "Internal", Message: err.Error()}
		return resp
	}

	policy := d.agentsConfig().PolicyFor(plan.AgentName)
	outcome := d.runTask(ctx, taskID, planID, correlationID, req.Message, plan, policy)

	if outcome.err == nil {
		_ = d.lifecycle.PlanTransition(ctx, planID, lifecycle.PlanSucceeded, "", correlationID)
		resp.Status = "success"
		resp.Output = outcome.output
		return resp
	}

	_ = d.lifecycle.PlanTransition(ctx, planID, lifecycle.PlanFailed, outcome.err.Error(), correlationID)
	resp.Status = "error"
	resp.Error = errorInfoFrom(outcome.err, "BackendFailure")
	if outcome.rawOutput != "" {
		if resp.Error.Details == nil {
			resp.Error.Details = map[string]interface{}{}
		}
		resp.Error.Details["raw_output"] = outcome.rawOutput
	}
	return resp
}

func (d *Dispatcher) refusePreFlight(ctx context.Context, planID, correlationID, agentName string, summary health.Summary, resp Response) Response {
	const detail = "agent temporarily unavailable"
	_ = d.lifecycle.PlanTransition(ctx, planID, lifecycle.PlanFailed, detail, correlationID)

	d.logger.Warn("pre-flight refused dispatch", map[string]interface{}{
		"agent":       agentName,
		"plan_id":     planID,
		"correlation": correlationID,
	})

	details := map[string]interface{}{}
	if summary.CircuitOpenUntil != nil {
		details["circuit_open_until"] = summary.CircuitOpenUntil.Format(time.RFC3339)
	}
	resp.Status = "error"
	resp.Error = &ErrorInfo{Code: "AgentUnavailable", Message: detail, Details: details}
	return resp
}

// taskOutcome is the terminal result of running one task through the Retry
// Controller loop.
type taskOutcome struct {
	output    string
	err       error
	rawOutput string
}

// runTask implements the Retry Controller (section 4.2): dispatch once,
// InProgress before each attempt, exponential backoff between retryable
// failures, and health/lifecycle updates on every attempt.
func (d *Dispatcher) runTask(ctx context.Context, taskID, planID, correlationID, message string, plan planner.Plan, policy core.RetryPolicy) taskOutcome {
	var lastResp agentproto.ActionResponse
	var lastErr error
	var lastErrText string
	circuitPolicy := health.PolicyFrom(policy)

	doErr := resilience.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			_ = d.lifecycle.TaskTransition(ctx, taskID, lifecycle.TaskDispatched, "", 0)
		} else {
			_ = d.lifecycle.TaskTransition(ctx, taskID, lifecycle.TaskRetried, lastErrText, attempt-1)
		}
		_ = d.lifecycle.TaskTransition(ctx, taskID, lifecycle.TaskInProgress, "", attempt)

		if err := d.governor.Acquire(ctx); err != nil {
			lastErr, lastErrText = err, err.Error()
			return err
		}
		actionReq := agentproto.NewActionRequest(plan.AgentName, plan.Action, message, planID, taskID, correlationID, plan.Payload)
		resp, execErr := d.executor.Invoke(ctx, plan.AgentName, actionReq, policy.Timeout)
		d.governor.Release()

		now := time.Now()
		if execErr != nil {
			lastErr, lastErrText = execErr, execErr.Error()
			if _, hErr := d.health.RecordFailure(ctx, plan.AgentName, now, circuitPolicy); hErr != nil {
				d.logger.Error("failed to record agent failure", map[string]interface{}{"agent": plan.AgentName, "error": hErr.Error()})
			}
			return execErr
		}

		lastResp = resp
		if hErr := d.health.RecordSuccess(ctx, plan.AgentName, now); hErr != nil {
			d.logger.Error("failed to record agent success", map[string]interface{}{"agent": plan.AgentName, "error": hErr.Error()})
		}
		return nil
	})

	if doErr == nil {
		_ = d.lifecycle.TaskTransition(ctx, taskID, lifecycle.TaskSucceeded, "", 0)
		output := ""
		if lastResp.Result != nil {
			output = lastResp.Result.Data
		}
		return taskOutcome{output: output}
	}

	_ = d.lifecycle.TaskTransition(ctx, taskID, lifecycle.TaskDeadLettered, lastErrText, 0)

	rawOutput := ""
	var fe *core.FrameworkError
	if errors.As(lastErr, &fe) {
		rawOutput = fe.Message
	}
	return taskOutcome{err: lastErr, rawOutput: rawOutput}
}

// errorInfoFrom derives an ErrorInfo from err, preferring the kind carried
// by a *core.FrameworkError and falling back to defaultCode.
func errorInfoFrom(err error, defaultCode string) *ErrorInfo {
	code := defaultCode
	var fe *core.FrameworkError
	if errors.As(err, &fe) && fe.Kind != "" {
		code = fe.Kind
	}
	return &ErrorInfo{Code: code, Message: err.Error()}
}
