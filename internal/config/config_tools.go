package config

import "time"

// ToolsConfig configures the tool registry and dispatch behavior
// (spec.md §4.3 C3 ToolRegistry, §4.9 C9 Orchestrator).
type ToolsConfig struct {
	// RegistryPath points at the declarative tool registry document
	// (YAML or JSON5, loaded via internal/registryconfig).
	RegistryPath string `yaml:"registry_path"`

	// WatchForChanges enables fsnotify-based hot reload of RegistryPath.
	WatchForChanges bool `yaml:"watch_for_changes"`

	Execution ToolExecutionConfig `yaml:"execution"`
}

// ToolExecutionConfig controls runtime tool dispatch behavior.
type ToolExecutionConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	Parallelism    int           `yaml:"parallelism"`
}
