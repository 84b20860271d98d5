package sessionstore

import (
	"log/slog"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/config"
)

// New builds the Store backend named by cfg.Backend ("memory" or "sql").
func New(cfg config.SessionConfig, db config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		mc := MemoryConfigFromAppConfig(cfg)
		mc.Logger = logger
		return NewMemoryStore(mc), nil
	case "sql":
		return NewSQLStore(SQLConfigFromAppConfig(db, cfg))
	default:
		return nil, &assistanterrors.ConfigurationError{Source: "sessionstore", Message: "unknown backend: " + cfg.Backend}
	}
}
