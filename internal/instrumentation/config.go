package instrumentation

import (
	"os"
	"strconv"
)

// Config controls the observability setup.
type Config struct {
	// Enabled turns metrics collection on. When false the provider hands
	// out no-op recorders.
	Enabled bool

	// ServiceName and ServiceVersion identify the process in the
	// exported resource attributes.
	ServiceName    string
	ServiceVersion string

	// DetailedLabels adds high-cardinality labels (per-user hashes) to
	// metrics. Off by default to protect Prometheus.
	DetailedLabels bool

	// AuditEnabled turns the structured audit log on.
	AuditEnabled bool
}

// ConfigFromEnv builds a Config from CLAUDIA_OTEL_* environment variables,
// with metrics enabled by default.
func ConfigFromEnv(serviceName, serviceVersion string) Config {
	return Config{
		Enabled:        envBool("CLAUDIA_OTEL_ENABLED", true),
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		DetailedLabels: envBool("CLAUDIA_OTEL_DETAILED_LABELS", false),
		AuditEnabled:   envBool("CLAUDIA_AUDIT_ENABLED", true),
	}
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
