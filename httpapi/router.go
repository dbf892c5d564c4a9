// Package httpapi is the thin HTTP adapter spec.md calls a collaborator:
// it exposes the Plan Dispatcher over a JSON request/response contract,
// guards it with bearer-token auth, and serves the metrics endpoint and
// static frontend alongside it. None of the orchestration semantics live
// here; every request is a direct translation to and from
// dispatcher.Request/dispatcher.Response.
package httpapi

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/dispatcher"
)

//go:embed static/index.html
var staticFS embed.FS

const maxRequestBody = 1 << 20 // 1 MiB; a chat message has no business being larger.

// Config controls how the router is assembled.
type Config struct {
	// AuthSecret, when non-empty, requires a valid bearer JWT signed with
	// this HMAC secret on POST /v1/dispatch; /healthz, /metrics and the
	// static page are served without one.
	AuthSecret string
	// MetricsHandler serves the Prometheus exposition endpoint. Nil
	// disables /metrics.
	MetricsHandler http.Handler
	Logger         core.Logger
}

// NewRouter builds the chi router: POST /v1/dispatch is the one
// operational endpoint, GET /healthz is an unauthenticated liveness
// probe, GET /metrics exposes Prometheus metrics, and / serves a small
// static status page.
func NewRouter(d *dispatcher.Dispatcher, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(otelhttp.NewMiddleware("agentcore-orchestrator"))

	r.Get("/healthz", handleHealthz)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthSecret != "" {
			r.Use(AuthMiddleware(cfg.AuthSecret))
		}
		r.Post("/v1/dispatch", handleDispatch(d, logger))
	})

	fileServer := http.FileServer(http.FS(mustSub(staticFS, "static")))
	r.Handle("/*", fileServer)

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dispatchRequest is the inbound wire shape from section 6: a message, an
// optional correlation id supplied by the caller, and an optional API
// version echoed back unchanged.
type dispatchRequest struct {
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
	APIVersion    string `json:"api_version,omitempty"`
}

func handleDispatch(d *dispatcher.Dispatcher, logger core.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, maxRequestBody)
		defer body.Close()

		var req dispatchRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body: " + err.Error()})
			return
		}
		if req.Message == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "message is required"})
			return
		}

		resp := d.Dispatch(r.Context(), dispatcher.Request{
			Message:       req.Message,
			CorrelationID: req.CorrelationID,
			APIVersion:    req.APIVersion,
		})

		status := http.StatusOK
		if resp.Status != "success" {
			status = statusForErrorCode(resp.Error)
		}

		logger.Info("dispatch completed", map[string]interface{}{
			"plan_id":        resp.PlanID,
			"correlation_id": resp.CorrelationID,
			"status":         resp.Status,
		})

		writeJSON(w, status, resp)
	}
}

// statusForErrorCode maps the orchestration error taxonomy onto HTTP
// status codes for the response envelope's outer status line; the body
// always carries the full ErrorInfo regardless.
func statusForErrorCode(errInfo *dispatcher.ErrorInfo) int {
	if errInfo == nil {
		return http.StatusInternalServerError
	}
	switch errInfo.Code {
	case "ValidationError", "InvalidRequest", "PlanningFailed":
		return http.StatusBadRequest
	case "ActionNotSupported":
		return http.StatusNotImplemented
	case "AgentUnavailable":
		return http.StatusServiceUnavailable
	case "Timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mustSub(fsys embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
