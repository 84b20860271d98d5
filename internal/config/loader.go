package config

import (
	"fmt"

	"github.com/haasonsaas/assistant-core/internal/registryconfig"
)

// Load reads path (resolving $include directives and ${VAR} environment
// references, see internal/registryconfig) into a Config and validates it.
func Load(path string) (*Config, error) {
	cfg, err := registryconfig.Load[Config](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
