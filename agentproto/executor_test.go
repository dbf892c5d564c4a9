package agentproto

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// writeTestAgent writes an executable shell script to a temp dir and
// returns its path. Scripts play the role of a one-shot agent process:
// they read (and discard) stdin, then print a canned response.
func writeTestAgent(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestExecutorInvokeSuccess(t *testing.T) {
	script := "#!/bin/sh\ncat >/dev/null\ncat <<'EOF'\n" +
		`{"request_id":"r1","status":"success","code":0,"result":{"output_type":"text","data":"hi"}}` +
		"\nEOF\n"
	reg := NewStaticRegistry(map[string]string{"echo": writeTestAgent(t, script)})
	exec := NewExecutor(reg)

	req := NewActionRequest("echo", "greet", "hello", "", "", "", json.RawMessage(`{}`))
	resp, err := exec.Invoke(context.Background(), "echo", req, time.Second)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !resp.Succeeded() {
		t.Errorf("response did not report success: %+v", resp)
	}
	if resp.Result == nil || resp.Result.Data != "hi" {
		t.Errorf("Result = %+v, want Data=hi", resp.Result)
	}
}

func TestExecutorInvokeUnknownAgent(t *testing.T) {
	reg := NewStaticRegistry(nil)
	exec := NewExecutor(reg)

	req := NewActionRequest("ghost", "greet", "hi", "", "", "", nil)
	_, err := exec.Invoke(context.Background(), "ghost", req, time.Second)
	if !errors.Is(err, core.ErrAgentUnknown) {
		t.Errorf("Invoke(unknown agent) error = %v, want ErrAgentUnknown", err)
	}
}

func TestExecutorInvokeTimeout(t *testing.T) {
	script := "#!/bin/sh\ncat >/dev/null\nsleep 2\necho '{}'\n"
	reg := NewStaticRegistry(map[string]string{"slow": writeTestAgent(t, script)})
	exec := NewExecutor(reg)

	req := NewActionRequest("slow", "greet", "hi", "", "", "", nil)
	_, err := exec.Invoke(context.Background(), "slow", req, 50*time.Millisecond)
	if !errors.Is(err, core.ErrTimeout) {
		t.Errorf("Invoke(slow agent) error = %v, want ErrTimeout", err)
	}
}

func TestExecutorInvokeMalformedOutput(t *testing.T) {
	script := "#!/bin/sh\ncat >/dev/null\necho 'not json'\n"
	reg := NewStaticRegistry(map[string]string{"broken": writeTestAgent(t, script)})
	exec := NewExecutor(reg)

	req := NewActionRequest("broken", "greet", "hi", "", "", "", nil)
	_, err := exec.Invoke(context.Background(), "broken", req, time.Second)
	if !errors.Is(err, core.ErrBackendFailure) {
		t.Errorf("Invoke(malformed output) error = %v, want ErrBackendFailure", err)
	}
}

func TestExecutorInvokeRejectsTrailingJSON(t *testing.T) {
	script := "#!/bin/sh\ncat >/dev/null\n" +
		`echo '{"request_id":"r1","status":"success","code":0}{"extra":true}'` + "\n"
	reg := NewStaticRegistry(map[string]string{"chatty": writeTestAgent(t, script)})
	exec := NewExecutor(reg)

	req := NewActionRequest("chatty", "greet", "hi", "", "", "", nil)
	_, err := exec.Invoke(context.Background(), "chatty", req, time.Second)
	if !errors.Is(err, core.ErrBackendFailure) {
		t.Errorf("Invoke(trailing JSON) error = %v, want ErrBackendFailure", err)
	}
}

func TestExecutorInvokeNonZeroExitStillParsesStdout(t *testing.T) {
	script := "#!/bin/sh\ncat >/dev/null\n" +
		`echo '{"request_id":"r1","status":"error","code":500,"error":"boom"}'` + "\n" +
		"exit 1\n"
	reg := NewStaticRegistry(map[string]string{"failing": writeTestAgent(t, script)})
	exec := NewExecutor(reg)

	req := NewActionRequest("failing", "greet", "hi", "", "", "", nil)
	resp, err := exec.Invoke(context.Background(), "failing", req, time.Second)
	if !errors.Is(err, core.ErrBackendFailure) {
		t.Errorf("Invoke() error = %v, want ErrBackendFailure", err)
	}
	if resp.RequestID != "r1" {
		t.Errorf("response was not parsed despite non-zero exit: %+v", resp)
	}
}

func TestExecutorInvokeClassifiesActionNotSupported(t *testing.T) {
	script := "#!/bin/sh\ncat >/dev/null\n" +
		`echo '{"request_id":"r1","status":"error","code":501,"error":"no such action"}'` + "\n"
	reg := NewStaticRegistry(map[string]string{"limited": writeTestAgent(t, script)})
	exec := NewExecutor(reg)

	req := NewActionRequest("limited", "greet", "hi", "", "", "", nil)
	_, err := exec.Invoke(context.Background(), "limited", req, time.Second)
	if !errors.Is(err, core.ErrActionNotSupported) {
		t.Errorf("Invoke() error = %v, want ErrActionNotSupported", err)
	}
	if core.IsRetryable(err) {
		t.Error("ActionNotSupported must not be retryable")
	}
}
