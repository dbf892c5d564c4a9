package agentproto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/agentcore/orchestrator/core"
)

func TestNewActionRequestAssignsRequestID(t *testing.T) {
	req := NewActionRequest("echo", "greet", "hello", "", "", "", json.RawMessage(`{}`))
	if req.RequestID == "" {
		t.Fatal("RequestID is empty")
	}
	if req.Tool != "echo" || req.Action != "greet" {
		t.Errorf("got tool=%q action=%q, want echo/greet", req.Tool, req.Action)
	}
	if req.PlanID != nil || req.TaskID != nil || req.CorrelationID != nil {
		t.Error("empty plan/task/correlation IDs must encode as null, not a pointer to \"\"")
	}
}

func TestNewActionRequestCarriesOptionalIDs(t *testing.T) {
	req := NewActionRequest("echo", "greet", "hi", "plan-1", "task-1", "corr-1", nil)
	if req.PlanID == nil || *req.PlanID != "plan-1" {
		t.Errorf("PlanID = %v, want plan-1", req.PlanID)
	}
	if req.TaskID == nil || *req.TaskID != "task-1" {
		t.Errorf("TaskID = %v, want task-1", req.TaskID)
	}
	if req.CorrelationID == nil || *req.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %v, want corr-1", req.CorrelationID)
	}
}

func TestActionResponseSucceeded(t *testing.T) {
	cases := []struct {
		name string
		resp ActionResponse
		want bool
	}{
		{"success and zero code", ActionResponse{Status: "success", Code: 0}, true},
		{"success but nonzero code", ActionResponse{Status: "success", Code: 500}, false},
		{"error status zero code", ActionResponse{Status: "error", Code: 0}, false},
		{"error and nonzero code", ActionResponse{Status: "error", Code: 500}, false},
	}
	for _, c := range cases {
		if got := c.resp.Succeeded(); got != c.want {
			t.Errorf("%s: Succeeded() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestClassifyCode(t *testing.T) {
	cases := []struct {
		code       int
		wantErr    error
		retryable  bool
	}{
		{400, core.ErrInvalidRequest, false},
		{404, core.ErrInvalidRequest, false},
		{499, core.ErrInvalidRequest, false},
		{501, core.ErrActionNotSupported, false},
		{504, core.ErrTimeout, true},
		{500, core.ErrBackendFailure, true},
		{503, core.ErrBackendFailure, true},
		{0, core.ErrBackendFailure, true},
	}
	for _, c := range cases {
		err := ClassifyCode(c.code)
		if !errors.Is(err, c.wantErr) {
			t.Errorf("ClassifyCode(%d) = %v, want wrapping %v", c.code, err, c.wantErr)
		}
		if got := core.IsRetryable(err); got != c.retryable {
			t.Errorf("ClassifyCode(%d): IsRetryable() = %v, want %v", c.code, got, c.retryable)
		}
	}
}
