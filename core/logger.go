package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProductionLogger is the default Logger/ComponentAwareLogger implementation.
// It emits JSON in containerized environments and human-readable text
// locally, auto-detected via KUBERNETES_SERVICE_HOST and overridable via
// AGENTCORE_LOG_FORMAT. Error-level logs are rate-limited per process so a
// storm of correlated failures (e.g. an agent stuck in a crash loop) cannot
// flood stdout.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	metricsEnabled bool

	errLimiter *rateLimiter
}

// NewProductionLogger creates a logger from LoggingConfig. serviceName
// identifies the process (e.g. "agentcore-orchestrator") across every log
// line it emits.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	format := logging.Format
	if v := os.Getenv(EnvLogFormat); v != "" {
		format = v
	} else if os.Getenv(EnvKubernetesHost) != "" {
		format = "json"
	}

	logger := &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		format:      format,
		output:      output,
		errLimiter:  newRateLimiter(20, time.Second),
	}
	return logger
}

// WithComponent returns a logger that tags every line with component,
// leaving the receiver's other settings (format, output, rate limiter)
// untouched.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// EnableMetrics is called by telemetry.Init once a MetricsRegistry is
// available, turning on per-log-line metric emission.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if !p.errLimiter.Allow() {
		return
	}
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !p.errLimiter.Allow() {
		return
	}
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)
	component := p.component
	if component == "" {
		component = "orchestrator"
	}

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": component,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		var fieldStr strings.Builder
		for k, v := range fields {
			fieldStr.WriteString(fmt.Sprintf(" %s=%v", k, v))
		}
		fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s\n",
			timestamp, level, p.serviceName, component, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitMetric(level, component, ctx)
	}
}

func (p *ProductionLogger) emitMetric(level, component string, ctx context.Context) {
	labels := []string{"level", level, "service", p.serviceName, "component", component}
	if ctx != nil {
		emitMetricWithContext(ctx, "agentcore.log.events", 1.0, labels...)
	} else {
		emitMetric("agentcore.log.events", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

// rateLimiter is a simple fixed-window limiter: at most max events are
// allowed per window, after which Allow returns false until the window
// rolls over.
type rateLimiter struct {
	mu          sync.Mutex
	max         int
	window      time.Duration
	windowStart time.Time
	count       int
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{max: max, window: window, windowStart: time.Now()}
}

func (r *rateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.windowStart) > r.window {
		r.windowStart = now
		r.count = 0
	}
	if r.count >= r.max {
		return false
	}
	r.count++
	return true
}
