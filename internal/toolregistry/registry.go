// Package toolregistry implements C3 ToolRegistry: a hot-reloadable,
// immutable snapshot of ToolActions keyed by "plugin.action".
package toolregistry

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/assistant-core/internal/registryconfig"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Document is the on-disk shape of a tool registry file: one entry per
// plugin, each declaring its actions.
type Document struct {
	Plugins []PluginDocument `yaml:"plugins"`
}

// PluginDocument groups the actions exposed by one plugin.
type PluginDocument struct {
	Name    string              `yaml:"name"`
	Actions []models.ToolAction `yaml:"actions"`
}

type generation struct {
	byKey map[string]models.ToolAction // "plugin.action" -> action
	order []string
}

func buildGeneration(doc *Document) (*generation, error) {
	gen := &generation{byKey: make(map[string]models.ToolAction)}
	for _, plugin := range doc.Plugins {
		if plugin.Name == "" {
			return nil, fmt.Errorf("toolregistry: plugin with empty name")
		}
		for _, action := range plugin.Actions {
			if action.Name == "" {
				return nil, fmt.Errorf("toolregistry: plugin %s has an action with empty name", plugin.Name)
			}
			key := plugin.Name + "." + action.Name
			if _, dup := gen.byKey[key]; dup {
				return nil, fmt.Errorf("toolregistry: duplicate action %q", key)
			}
			gen.byKey[key] = action
			gen.order = append(gen.order, key)
		}
	}
	return gen, nil
}

// Registry serves action lookups against the current generation.
type Registry struct {
	snapshot *registryconfig.Snapshot[generation]
	watcher  *registryconfig.Watcher[Document]
}

// Load reads path into a new Registry.
func Load(path string, watch bool) (*Registry, error) {
	doc, err := registryconfig.Load[Document](path)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: %w", err)
	}
	gen, err := buildGeneration(doc)
	if err != nil {
		return nil, err
	}

	r := &Registry{snapshot: &registryconfig.Snapshot[generation]{}}
	r.snapshot.Store(gen)

	if watch {
		docSnapshot := &registryconfig.Snapshot[Document]{}
		onReload := func(d *Document) {
			if newGen, err := buildGeneration(d); err == nil {
				r.snapshot.Store(newGen)
			}
		}
		w, err := registryconfig.NewWatcher[Document](path, docSnapshot, nil, onReload)
		if err != nil {
			return nil, fmt.Errorf("toolregistry: watcher: %w", err)
		}
		r.watcher = w
	}
	return r, nil
}

// Resolve looks up a fully-qualified action name ("plugin.action"). Keys are
// always of this exact shape, so a direct map lookup suffices; the strings
// import remains for callers that need to split plugin from action.
func (r *Registry) Resolve(qualifiedName string) (models.ToolAction, bool) {
	gen := r.snapshot.Load()
	action, ok := gen.byKey[qualifiedName]
	return action, ok
}

// SplitQualifiedName splits "plugin.action" on the first '.' into its plugin
// and action parts; the action's own name may itself contain dots, so only
// the first separator is significant.
func SplitQualifiedName(qualifiedName string) (plugin, action string, ok bool) {
	idx := strings.IndexByte(qualifiedName, '.')
	if idx < 0 {
		return "", "", false
	}
	return qualifiedName[:idx], qualifiedName[idx+1:], true
}

// All returns every registered action, in declaration order.
func (r *Registry) All() []models.ToolAction {
	gen := r.snapshot.Load()
	out := make([]models.ToolAction, 0, len(gen.order))
	for _, key := range gen.order {
		out = append(out, gen.byKey[key])
	}
	return out
}

// Reload re-reads path and atomically swaps in a validated new generation.
func (r *Registry) Reload(path string) error {
	doc, err := registryconfig.Load[Document](path)
	if err != nil {
		return fmt.Errorf("toolregistry: reload: %w", err)
	}
	gen, err := buildGeneration(doc)
	if err != nil {
		return fmt.Errorf("toolregistry: reload: %w", err)
	}
	r.snapshot.Store(gen)
	return nil
}

// Close releases the hot-reload watcher, if one is running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}
