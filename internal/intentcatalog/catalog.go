// Package intentcatalog implements C2 IntentCatalog: a hot-reloadable,
// immutable snapshot of IntentDefinitions loaded from a declarative
// registry document.
package intentcatalog

import (
	"fmt"

	"github.com/haasonsaas/assistant-core/internal/registryconfig"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Document is the on-disk shape of an intent registry file.
type Document struct {
	Intents []models.IntentDefinition `yaml:"intents"`
}

// generation is one immutable, validated catalog snapshot.
type generation struct {
	byID  map[string]models.IntentDefinition
	order []string
}

func buildGeneration(doc *Document) (*generation, error) {
	gen := &generation{byID: make(map[string]models.IntentDefinition, len(doc.Intents))}
	for _, intent := range doc.Intents {
		if intent.ID == "" {
			return nil, fmt.Errorf("intentcatalog: intent with empty id")
		}
		if _, dup := gen.byID[intent.ID]; dup {
			return nil, fmt.Errorf("intentcatalog: duplicate intent id %q", intent.ID)
		}
		if err := intent.Validate(); err != nil {
			return nil, fmt.Errorf("intentcatalog: %w", err)
		}
		gen.byID[intent.ID] = intent
		gen.order = append(gen.order, intent.ID)
	}
	return gen, nil
}

// Catalog serves lookups against the current generation, swapped atomically
// on reload so readers never observe a half-applied update.
type Catalog struct {
	snapshot *registryconfig.Snapshot[generation]
	watcher  *registryconfig.Watcher[Document]
}

// NewForTesting builds a Catalog directly from an in-memory intent list,
// bypassing file loading and hot-reload — for tests of components that
// depend on *Catalog but don't exercise reload behavior themselves.
func NewForTesting(intents []models.IntentDefinition) *Catalog {
	gen, err := buildGeneration(&Document{Intents: intents})
	if err != nil {
		panic(err)
	}
	c := &Catalog{snapshot: &registryconfig.Snapshot[generation]{}}
	c.snapshot.Store(gen)
	return c
}

// Load reads path into a new Catalog. If watch is true, the catalog stays
// open on an fsnotify watch of the containing directory; callers should
// call Close when done.
func Load(path string, watch bool) (*Catalog, error) {
	doc, err := registryconfig.Load[Document](path)
	if err != nil {
		return nil, fmt.Errorf("intentcatalog: %w", err)
	}
	gen, err := buildGeneration(doc)
	if err != nil {
		return nil, err
	}

	c := &Catalog{snapshot: &registryconfig.Snapshot[generation]{}}
	c.snapshot.Store(gen)

	if watch {
		docSnapshot := &registryconfig.Snapshot[Document]{}
		onReload := func(d *Document) {
			if newGen, err := buildGeneration(d); err == nil {
				c.snapshot.Store(newGen)
			}
		}
		w, err := registryconfig.NewWatcher[Document](path, docSnapshot, nil, onReload)
		if err != nil {
			return nil, fmt.Errorf("intentcatalog: watcher: %w", err)
		}
		c.watcher = w
	}
	return c, nil
}

// Lookup returns the intent definition for id, or false if unknown.
func (c *Catalog) Lookup(id string) (models.IntentDefinition, bool) {
	gen := c.snapshot.Load()
	d, ok := gen.byID[id]
	return d, ok
}

// All returns every catalog intent, in registry-declaration order.
func (c *Catalog) All() []models.IntentDefinition {
	gen := c.snapshot.Load()
	out := make([]models.IntentDefinition, 0, len(gen.order))
	for _, id := range gen.order {
		out = append(out, gen.byID[id])
	}
	return out
}

// Reload re-reads path and atomically swaps in a validated new generation.
// A failure leaves the current generation untouched.
func (c *Catalog) Reload(path string) error {
	doc, err := registryconfig.Load[Document](path)
	if err != nil {
		return fmt.Errorf("intentcatalog: reload: %w", err)
	}
	gen, err := buildGeneration(doc)
	if err != nil {
		return fmt.Errorf("intentcatalog: reload: %w", err)
	}
	c.snapshot.Store(gen)
	return nil
}

// Close releases the hot-reload watcher, if one is running.
func (c *Catalog) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}
