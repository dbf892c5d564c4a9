package core

import (
	"context"
	"sync"
)

// Logger is the minimal structured logging interface every package in this
// module depends on instead of the stdlib log package.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a component tag that is carried
// into every log line, so logs from separate subsystems can be filtered:
//
//	kubectl logs ... | jq 'select(.component == "orchestrator/dispatcher")'
//
// Component naming convention:
//   - "orchestrator/dispatcher" - Plan Dispatcher
//   - "orchestrator/executor"   - Agent Executor
//   - "orchestrator/health"     - Health & Circuit Store
//   - "orchestrator/lifecycle"  - Plan/Task Lifecycle Log
//   - "orchestrator/retry"      - Retry Controller
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional tracing/metrics hook components may accept.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a single telemetry span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpLogger discards everything. It is the zero-value default so every
// component works without explicit logger wiring.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry discards spans and metrics.
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan discards everything recorded on it.
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}

// ============================================================================
// Global registry pattern for telemetry integration
// ============================================================================

// MetricsRegistry lets the telemetry package register itself with core
// without core importing telemetry, avoiding an import cycle between the
// ambient logging layer and the metrics exposition layer.
type MetricsRegistry interface {
	Counter(name string, labels ...string)
	Gauge(name string, value float64, labels ...string)
	Histogram(name string, value float64, labels ...string)
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)
}

var globalMetricsRegistry MetricsRegistry

// SetMetricsRegistry registers the process-wide metrics sink. Called once
// during startup by telemetry.Init.
func SetMetricsRegistry(registry MetricsRegistry) {
	globalMetricsRegistry = registry
	enableMetricsOnExistingLoggers()
}

// GetGlobalMetricsRegistry returns the registered sink, or nil if telemetry
// has not been initialized yet.
func GetGlobalMetricsRegistry() MetricsRegistry {
	return globalMetricsRegistry
}

var createdLoggers []*ProductionLogger
var loggersMutex sync.RWMutex

func trackLogger(logger *ProductionLogger) {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	createdLoggers = append(createdLoggers, logger)
	if globalMetricsRegistry != nil {
		logger.EnableMetrics()
	}
}

func enableMetricsOnExistingLoggers() {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	for _, logger := range createdLoggers {
		logger.EnableMetrics()
	}
}
