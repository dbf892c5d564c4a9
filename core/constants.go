package core

// Environment variable names recognized by LoadConfig.
const (
	EnvAppEnv        = "APP_ENV"              // dev | staging | prod, selects the config overlay
	EnvConfigDir     = "AGENTCORE_CONFIG_DIR"  // directory holding base.yaml + <env>.yaml
	EnvRedisURL      = "REDIS_URL"
	EnvNamespace     = "NAMESPACE"
	EnvPort          = "AGENTCORE_PORT"
	EnvLogFormat     = "AGENTCORE_LOG_FORMAT" // json | text, overrides auto-detection
	EnvLogLevel      = "AGENTCORE_LOG_LEVEL"
	EnvMaxInFlight   = "AGENTCORE_MAX_IN_FLIGHT"
	EnvTelemetryExp  = "AGENTCORE_TELEMETRY_EXPORTER" // stdout | otlp
	EnvJWTSigningKey = "AGENTCORE_JWT_SIGNING_KEY"

	// EnvKubernetesHost is set by the kubelet in every pod; its presence is
	// used to auto-select JSON logging over human-readable text.
	EnvKubernetesHost = "KUBERNETES_SERVICE_HOST"
)
