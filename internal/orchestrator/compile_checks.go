package orchestrator

import (
	"github.com/haasonsaas/assistant-core/internal/progress"
	"github.com/haasonsaas/assistant-core/internal/toolregistry"
	"github.com/haasonsaas/assistant-core/internal/toolrouter"
)

var _ Dispatcher = (*toolrouter.Router)(nil)
var _ Resolver = (*toolregistry.Registry)(nil)
var _ Tracker = (*progress.Tracker)(nil)
