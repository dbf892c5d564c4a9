package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentcore/orchestrator/agentproto"
	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/dispatcher"
	"github.com/agentcore/orchestrator/health"
	"github.com/agentcore/orchestrator/lifecycle"
	"github.com/agentcore/orchestrator/planner"
	"github.com/agentcore/orchestrator/resilience"
)

func newTestRouter(t *testing.T, authSecret string) http.Handler {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\ncat >/dev/null\n" +
		`echo '{"request_id":"r","status":"success","code":0,"result":{"output_type":"text","data":"hi"}}'` + "\n"
	path := filepath.Join(dir, "agent.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	reg := agentproto.NewStaticRegistry(map[string]string{"echo": path})
	exec := agentproto.NewExecutor(reg)
	healthStore := health.NewMemoryStore()
	lifecycleLog := lifecycle.NewMemoryLog()
	governor := resilience.NewGovernor(4)
	strategy := planner.NewTableStrategy(nil, nil, "echo", "handle")
	agents := core.AgentsConfig{Default: core.RetryPolicy{
		Timeout:          time.Second,
		MaxAttempts:      1,
		InitialBackoff:   10 * time.Millisecond,
		MaxBackoff:       50 * time.Millisecond,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	}}

	d := dispatcher.New(strategy, exec, healthStore, lifecycleLog, governor, agents)
	return NewRouter(d, Config{AuthSecret: authSecret})
}

func TestDispatchEndpointHappyPath(t *testing.T) {
	router := newTestRouter(t, "")

	body, _ := json.Marshal(map[string]string{"message": "ping"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp dispatcher.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.Status != "success" || resp.Output != "hi" {
		t.Errorf("response = %+v, want success/hi", resp)
	}
}

func TestDispatchEndpointRejectsEmptyMessage(t *testing.T) {
	router := newTestRouter(t, "")

	body, _ := json.Marshal(map[string]string{"message": ""})
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDispatchEndpointRequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, "test-secret")

	body, _ := json.Marshal(map[string]string{"message": "ping"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDispatchEndpointAcceptsValidBearerToken(t *testing.T) {
	router := newTestRouter(t, "test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "test-caller",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	body, _ := json.Marshal(map[string]string{"message": "ping"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	router := newTestRouter(t, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
