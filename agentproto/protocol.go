// Package agentproto implements the agent wire protocol and the Agent
// Executor: the one-shot, one-request-one-response JSON-over-stdio contract
// between the orchestration core and an external agent process.
package agentproto

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/agentcore/orchestrator/core"
)

// ActionRequest is the single JSON object written to an agent's standard
// input for one invocation.
type ActionRequest struct {
	RequestID     string          `json:"request_id"`
	APIVersion    *string         `json:"api_version"`
	Tool          string          `json:"tool"`
	Action        string          `json:"action"`
	Context       string          `json:"context"`
	PlanID        *string         `json:"plan_id"`
	TaskID        *string         `json:"task_id"`
	CorrelationID *string         `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Result is the payload an agent returns on success.
type Result struct {
	OutputType string          `json:"output_type"`
	Data       string          `json:"data"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// ActionResponse is the single JSON object read from an agent's standard
// output for one invocation.
type ActionResponse struct {
	RequestID     string  `json:"request_id"`
	APIVersion    *string `json:"api_version,omitempty"`
	Status        string  `json:"status"`
	Code          int     `json:"code"`
	Result        *Result `json:"result,omitempty"`
	Error         *string `json:"error,omitempty"`
	PlanID        *string `json:"plan_id,omitempty"`
	TaskID        *string `json:"task_id,omitempty"`
	CorrelationID *string `json:"correlation_id,omitempty"`
}

// Succeeded reports whether the response satisfies the success contract:
// status "success" AND a zero numeric code. Both conditions are required;
// a "success" status with a non-zero code is treated as failure.
func (r ActionResponse) Succeeded() bool {
	return r.Status == "success" && r.Code == 0
}

// apiVersionV1 is the only api_version this core emits on outbound requests.
var apiVersionV1 = "v1"

// NewActionRequest builds a request for one invocation of agentName,
// assigning a fresh request_id. planID, taskID, and correlationID are
// omitted (encoded as JSON null) when empty.
func NewActionRequest(agentName, action, userContext, planID, taskID, correlationID string, payload json.RawMessage) ActionRequest {
	req := ActionRequest{
		RequestID:  uuid.New().String(),
		APIVersion: &apiVersionV1,
		Tool:       agentName,
		Action:     action,
		Context:    userContext,
		Payload:    payload,
	}
	if planID != "" {
		req.PlanID = &planID
	}
	if taskID != "" {
		req.TaskID = &taskID
	}
	if correlationID != "" {
		req.CorrelationID = &correlationID
	}
	return req
}

// ClassifyCode derives a core error from an ActionResponse's numeric code,
// per the Retry Controller's error classification table (spec section 4.2).
// It must only be called when the response did not satisfy Succeeded().
func ClassifyCode(code int) error {
	switch {
	case code >= 400 && code < 500:
		return core.NewFrameworkError("agentproto.ClassifyCode", "InvalidRequest", core.ErrInvalidRequest)
	case code == 501:
		return core.NewFrameworkError("agentproto.ClassifyCode", "ActionNotSupported", core.ErrActionNotSupported)
	case code == 504:
		return core.NewFrameworkError("agentproto.ClassifyCode", "Timeout", core.ErrTimeout)
	default:
		return core.NewFrameworkError("agentproto.ClassifyCode", "BackendFailure", core.ErrBackendFailure)
	}
}
