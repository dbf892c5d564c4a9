// Command agent-echo is a sample agent worker exercising the wire
// protocol end to end: it reads exactly one ActionRequest from stdin and
// writes exactly one ActionResponse to stdout, echoing the request's
// context back as its result data. It is a real executable for local smoke
// tests; the orchestrator's own tests dispatch against shell-script
// stand-ins instead.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentcore/orchestrator/agentproto"
)

func main() {
	var req agentproto.ActionRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(agentproto.ActionResponse{
			RequestID: req.RequestID,
			Status:    "error",
			Code:      400,
			Error:     strPtr(fmt.Sprintf("malformed request: %v", err)),
		})
		os.Exit(0)
	}

	resp := agentproto.ActionResponse{
		RequestID:     req.RequestID,
		APIVersion:    req.APIVersion,
		Status:        "success",
		Code:          0,
		PlanID:        req.PlanID,
		TaskID:        req.TaskID,
		CorrelationID: req.CorrelationID,
		Result: &agentproto.Result{
			OutputType: "text",
			Data:       echoData(req),
		},
	}
	writeResponse(resp)
}

func echoData(req agentproto.ActionRequest) string {
	if req.Context != "" {
		return req.Context
	}
	return "hi"
}

func writeResponse(resp agentproto.ActionResponse) {
	if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "agent-echo: failed to write response: %v\n", err)
		os.Exit(1)
	}
}

func strPtr(s string) *string { return &s }
