package agentproto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// Executor invokes agents as one-shot child processes: one ActionRequest in
// on stdin, one ActionResponse out on stdout, bounded by a wall-clock
// timeout. Each invocation spawns a fresh process; there is no long-lived
// agent connection to manage.
type Executor struct {
	registry Registry
	logger   core.Logger
}

// NewExecutor builds an Executor that resolves agent names through registry.
func NewExecutor(registry Registry) *Executor {
	return &Executor{registry: registry, logger: &core.NoOpLogger{}}
}

// SetLogger attaches a logger, wrapping it with a component tag when the
// logger supports one.
func (e *Executor) SetLogger(logger core.Logger) {
	if logger == nil {
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		e.logger = cal.WithComponent("orchestrator/executor")
		return
	}
	e.logger = logger
}

// Invoke runs one action against agentName and waits for its response or
// for timeout to elapse, whichever comes first.
func (e *Executor) Invoke(ctx context.Context, agentName string, req ActionRequest, timeout time.Duration) (ActionResponse, error) {
	executable, err := e.registry.Resolve(agentName)
	if err != nil {
		return ActionResponse{}, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		// An internal executor bug per the classification table; retryable
		// like any other BackendFailure since it carries no caller fault.
		return ActionResponse{}, core.NewFrameworkError("executor.Invoke", "Internal",
			fmt.Errorf("%w: marshal request: %v", core.ErrBackendFailure, err))
	}

	childCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(childCtx, executable)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if childCtx.Err() == context.DeadlineExceeded {
		e.logger.Warn("agent invocation timed out", map[string]interface{}{
			"agent":      agentName,
			"request_id": req.RequestID,
			"timeout":    timeout.String(),
		})
		return ActionResponse{}, core.NewFrameworkError("executor.Invoke", "Timeout",
			fmt.Errorf("%w: agent %q exceeded %s", core.ErrTimeout, agentName, timeout))
	}

	if runErr != nil {
		if _, isExitErr := runErr.(*exec.ExitError); !isExitErr {
			// Process never started or an I/O error occurred around it,
			// not a normal termination we can parse stdout from.
			return ActionResponse{}, core.NewFrameworkError("executor.Invoke", "BackendFailure",
				fmt.Errorf("%w: failed to run agent %q: %v", core.ErrBackendFailure, agentName, runErr))
		}
		// A non-zero exit is still normal termination; fall through and
		// parse whatever the agent wrote to stdout.
	}

	resp, err := parseResponse(stdout.Bytes())
	if err != nil {
		e.logger.Warn("agent emitted an unparseable response", map[string]interface{}{
			"agent":      agentName,
			"request_id": req.RequestID,
			"stdout":     stdout.String(),
			"stderr":     stderr.String(),
		})
		return ActionResponse{}, &core.FrameworkError{
			Op:      "executor.Invoke",
			Kind:    "BackendFailure",
			Message: stdout.String(),
			Err:     fmt.Errorf("%w: %v", core.ErrBackendFailure, err),
		}
	}

	if resp.Succeeded() {
		return resp, nil
	}
	return resp, ClassifyCode(resp.Code)
}

// parseResponse decodes exactly one JSON value as an ActionResponse and
// rejects trailing bytes, malformed JSON, and responses missing their
// required fields.
func parseResponse(raw []byte) (ActionResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ActionResponse{}, fmt.Errorf("empty agent response")
	}

	var resp ActionResponse
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&resp); err != nil {
		return ActionResponse{}, fmt.Errorf("invalid JSON response: %w", err)
	}
	if dec.More() {
		return ActionResponse{}, fmt.Errorf("agent emitted more than one JSON value")
	}
	if resp.RequestID == "" || resp.Status == "" {
		return ActionResponse{}, fmt.Errorf("response missing required fields (request_id, status)")
	}

	return resp, nil
}
