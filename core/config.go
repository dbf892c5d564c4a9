package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the orchestration core needs to run. It is
// resolved in four layers of increasing priority:
//  1. DefaultConfig() values
//  2. a base.yaml document overlaid with <APP_ENV>.yaml
//  3. environment variables: only AGENTCORE_PORT, NAMESPACE, REDIS_URL,
//     AGENTCORE_LOG_FORMAT, AGENTCORE_LOG_LEVEL, AGENTCORE_MAX_IN_FLIGHT,
//     AGENTCORE_TELEMETRY_EXPORTER and AGENTCORE_JWT_SIGNING_KEY are read
//     (see loadFromEnv); the env tags on the other fields are not read
//  4. functional Options (highest priority, used mainly by tests)
//
// Example:
//
//	cfg, err := LoadConfig(
//	    WithPort(9090),
//	    WithMaxInFlight(128),
//	)
type Config struct {
	Port         int    `json:"port" env:"AGENTCORE_PORT" default:"8080"`
	Address      string `json:"address" env:"AGENTCORE_ADDRESS"`
	Namespace    string `json:"namespace" env:"NAMESPACE" default:"default"`

	HTTP       HTTPConfig       `json:"http"`
	Redis      RedisConfig      `json:"redis"`
	Logging    LoggingConfig    `json:"logging"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	Concurrency ConcurrencyConfig `json:"concurrency"`
	Agents     AgentsConfig     `json:"agents"`
	Auth       AuthConfig       `json:"auth"`
	Development DevelopmentConfig `json:"development"`

	logger Logger `json:"-"`
}

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	ReadTimeout     time.Duration `json:"read_timeout" env:"AGENTCORE_HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"AGENTCORE_HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"AGENTCORE_HTTP_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"AGENTCORE_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	// HealthCheckPath is not read by httpapi.NewRouter, which always serves
	// the liveness probe at /healthz.
	HealthCheckPath string        `json:"health_check_path" env:"AGENTCORE_HTTP_HEALTH_PATH" default:"/health"`
}

// RedisConfig configures the durable backend for the health store and
// lifecycle log. When Enabled is false, both fall back to in-memory
// implementations, useful for local development and tests.
type RedisConfig struct {
	Enabled bool   `json:"enabled" env:"AGENTCORE_REDIS_ENABLED" default:"false"`
	URL     string `json:"url" env:"REDIS_URL" default:"redis://localhost:6379"`
	DB      int    `json:"db" env:"AGENTCORE_REDIS_DB" default:"0"`
}

// LoggingConfig controls the ambient structured logger.
type LoggingConfig struct {
	Level  string `json:"level" env:"AGENTCORE_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"AGENTCORE_LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"AGENTCORE_LOG_OUTPUT" default:"stdout"`
}

// TelemetryConfig controls the optional tracing/metrics layer.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" env:"AGENTCORE_TELEMETRY_ENABLED" default:"false"`
	Exporter       string  `json:"exporter" env:"AGENTCORE_TELEMETRY_EXPORTER" default:"stdout"`
	OTLPEndpoint   string  `json:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" env:"OTEL_SERVICE_NAME" default:"agentcore-orchestrator"`
	SamplingRate   float64 `json:"sampling_rate" env:"AGENTCORE_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	// PrometheusPath is not read by httpapi.NewRouter, which always serves
	// metrics at /metrics.
	PrometheusPath string  `json:"prometheus_path" env:"AGENTCORE_METRICS_PATH" default:"/metrics"`
}

// ConcurrencyConfig bounds the number of live agent child processes.
type ConcurrencyConfig struct {
	MaxInFlight int `json:"max_in_flight" yaml:"max_in_flight" env:"AGENTCORE_MAX_IN_FLIGHT" default:"64"`
}

// RetryPolicy is the per-agent (or default) retry and circuit configuration
// loaded from the config overlay documents, matching spec section 6's
// "agents.default.*" / "agents.<name>.*" shape.
type RetryPolicy struct {
	Timeout             time.Duration `json:"timeout" yaml:"timeout" default:"10s"`
	MaxAttempts         int           `json:"max_attempts" yaml:"max_attempts" default:"3"`
	InitialBackoff      time.Duration `json:"initial_backoff" yaml:"initial_backoff" default:"100ms"`
	MaxBackoff          time.Duration `json:"max_backoff" yaml:"max_backoff" default:"10s"`
	FailureThreshold    int           `json:"failure_threshold" yaml:"failure_threshold" default:"5"`
	Cooldown            time.Duration `json:"cooldown" yaml:"cooldown" default:"30s"`
}

// AgentsConfig carries the default retry/circuit policy and any per-agent
// overrides, plus the executable each named agent resolves to.
type AgentsConfig struct {
	Default   RetryPolicy            `json:"default" yaml:"default"`
	Overrides map[string]RetryPolicy `json:"overrides" yaml:"overrides"`
	// Executables maps an agent name to the executable path or command the
	// Agent Executor spawns for it.
	Executables map[string]string `json:"executables" yaml:"executables"`
}

// PolicyFor returns the effective retry policy for agent, falling back to
// AgentsConfig.Default when no override exists.
func (a AgentsConfig) PolicyFor(agent string) RetryPolicy {
	if p, ok := a.Overrides[agent]; ok {
		return p
	}
	return a.Default
}

// AuthConfig configures bearer-token authentication on the HTTP API.
type AuthConfig struct {
	Enabled    bool   `json:"enabled" env:"AGENTCORE_AUTH_ENABLED" default:"false"`
	SigningKey string `json:"-" env:"AGENTCORE_JWT_SIGNING_KEY"`
}

// DevelopmentConfig holds settings only meant for local iteration.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" env:"DEV_MODE" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" env:"AGENTCORE_PRETTY_LOGS" default:"false"`
	DebugLogging bool `json:"debug_logging" env:"AGENTCORE_DEBUG" default:"false"`
}

// Option is a functional option applied after defaults, overlay documents,
// and environment variables have all been resolved.
type Option func(*Config) error

// WithPort overrides the HTTP listen port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, port)
		}
		c.Port = port
		return nil
	}
}

// WithMaxInFlight overrides the concurrency governor's permit count.
func WithMaxInFlight(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: max_in_flight must be positive", ErrInvalidConfiguration)
		}
		c.Concurrency.MaxInFlight = n
		return nil
	}
}

// WithLogger attaches a logger used while loading configuration, so loading
// itself is observable.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// DefaultConfig returns a configuration with sensible defaults, adjusted by
// DetectEnvironment for Kubernetes vs. local execution.
func DefaultConfig() *Config {
	cfg := &Config{
		Port:      8080,
		Namespace: "default",
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			HealthCheckPath: "/health",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Exporter:       "stdout",
			ServiceName:    "agentcore-orchestrator",
			SamplingRate:   1.0,
			PrometheusPath: "/metrics",
		},
		Concurrency: ConcurrencyConfig{
			MaxInFlight: 64,
		},
		Agents: AgentsConfig{
			Default: RetryPolicy{
				Timeout:          10 * time.Second,
				MaxAttempts:      3,
				InitialBackoff:   100 * time.Millisecond,
				MaxBackoff:       10 * time.Second,
				FailureThreshold: 5,
				Cooldown:         30 * time.Second,
			},
			Overrides:   map[string]RetryPolicy{},
			Executables: map[string]string{},
		},
	}

	cfg.DetectEnvironment()
	return cfg
}

// DetectEnvironment adjusts defaults for the environment the process is
// running in, mirroring the auto-detection every component relies on for
// log format selection.
func (c *Config) DetectEnvironment() {
	if os.Getenv(EnvKubernetesHost) != "" {
		c.Address = "0.0.0.0"
		c.Logging.Format = "json"
		return
	}
	c.Address = "localhost"
	if os.Getenv(EnvAppEnv) == "" || os.Getenv(EnvAppEnv) == "dev" {
		c.Development.Enabled = true
		c.Development.PrettyLogs = true
		c.Logging.Format = "text"
	}
}

// overlayDoc is the on-disk shape of base.yaml / <env>.yaml.
type overlayDoc struct {
	Concurrency *ConcurrencyConfig     `yaml:"concurrency"`
	Agents      *agentsOverlayDoc      `yaml:"agents"`
}

type agentsOverlayDoc struct {
	Default RetryPolicy            `yaml:"default"`
	Named   map[string]RetryPolicy `yaml:",inline"`
	// Executables is the agents.<name>.executable registry: agent name to
	// the executable path or command the Agent Executor spawns for it. It
	// has its own tag so it binds here instead of falling into Named's
	// inline catch-all.
	Executables map[string]string `yaml:"executables"`
}

// LoadConfig resolves configuration in priority order: defaults, then the
// base+environment YAML overlay pair (selected by APP_ENV) read from
// AGENTCORE_CONFIG_DIR, then environment variables, then opts. A .env file
// in the working directory is loaded first via godotenv for local
// development convenience; its absence is not an error.
func LoadConfig(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if dir := os.Getenv(EnvConfigDir); dir != "" {
		if err := applyOverlay(cfg, dir); err != nil {
			return nil, NewFrameworkError("config.Load", "ValidationError", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, NewFrameworkError("config.Load", "ValidationError", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, NewFrameworkError("config.Load", "ValidationError", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.Logging, cfg.Development, "agentcore-orchestrator")
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}
		cfg.logger = logger
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger returns the logger resolved during LoadConfig, so callers can
// reuse it instead of constructing a second one.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return &NoOpLogger{}
	}
	return c.logger
}

func applyOverlay(cfg *Config, dir string) error {
	env := os.Getenv(EnvAppEnv)
	if env == "" {
		env = "dev"
	}

	base := filepath.Join(dir, "base.yaml")
	if data, err := os.ReadFile(base); err == nil {
		var doc overlayDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", base, err)
		}
		mergeOverlay(cfg, &doc)
	}

	overlay := filepath.Join(dir, env+".yaml")
	if data, err := os.ReadFile(overlay); err == nil {
		var doc overlayDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", overlay, err)
		}
		mergeOverlay(cfg, &doc)
	}
	return nil
}

func mergeOverlay(cfg *Config, doc *overlayDoc) {
	if doc.Concurrency != nil {
		cfg.Concurrency = *doc.Concurrency
	}
	if doc.Agents != nil {
		if doc.Agents.Default != (RetryPolicy{}) {
			cfg.Agents.Default = doc.Agents.Default
		}
		for name, policy := range doc.Agents.Named {
			if cfg.Agents.Overrides == nil {
				cfg.Agents.Overrides = map[string]RetryPolicy{}
			}
			cfg.Agents.Overrides[name] = policy
		}
		for name, executable := range doc.Agents.Executables {
			if cfg.Agents.Executables == nil {
				cfg.Agents.Executables = map[string]string{}
			}
			cfg.Agents.Executables[name] = executable
		}
	}
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, ErrInvalidConfiguration)
		}
		c.Port = port
	}
	if v := os.Getenv(EnvNamespace); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvMaxInFlight); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxInFlight, ErrInvalidConfiguration)
		}
		c.Concurrency.MaxInFlight = n
	}
	if v := os.Getenv(EnvTelemetryExp); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := os.Getenv(EnvJWTSigningKey); v != "" {
		c.Auth.SigningKey = v
		c.Auth.Enabled = true
	}
	if c.logger != nil {
		c.logger.Info("configuration loaded from environment", map[string]interface{}{
			"app_env": os.Getenv(EnvAppEnv),
		})
	}
	return nil
}

// Validate checks the resolved configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return NewFrameworkError("config.Validate", "ValidationError",
			fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, c.Port))
	}
	if c.Concurrency.MaxInFlight <= 0 {
		return NewFrameworkError("config.Validate", "ValidationError",
			fmt.Errorf("%w: concurrency.max_in_flight must be positive", ErrInvalidConfiguration))
	}
	if c.Agents.Default.MaxAttempts <= 0 {
		return NewFrameworkError("config.Validate", "ValidationError",
			fmt.Errorf("%w: agents.default.retry.max_attempts must be positive", ErrInvalidConfiguration))
	}
	if c.Agents.Default.InitialBackoff <= 0 || c.Agents.Default.MaxBackoff <= 0 {
		return NewFrameworkError("config.Validate", "ValidationError",
			fmt.Errorf("%w: backoff durations must be positive", ErrInvalidConfiguration))
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.SigningKey) == "" {
		return NewFrameworkError("config.Validate", "ValidationError",
			fmt.Errorf("%w: auth enabled but no signing key configured", ErrMissingConfiguration))
	}
	return nil
}
