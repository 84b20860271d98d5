package config

// LoggingConfig controls the slog-based structured logger (adapted from
// internal/observability.LogConfig).
type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"` // "json" | "text"
	Output         string   `yaml:"output"` // "stdout" | "stderr" | a file path
	AddSource      bool     `yaml:"add_source"`
	RedactPatterns []string `yaml:"redact_patterns"`
	RotationPath   string   `yaml:"rotation_path"`
	MaxSizeMB      int      `yaml:"max_size_mb"`
	MaxBackups     int      `yaml:"max_backups"`
	MaxAgeDays     int      `yaml:"max_age_days"`
}

// ObservabilityConfig configures tracing and metrics export.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
