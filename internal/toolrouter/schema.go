package toolrouter

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles and caches jsonschema.Schema instances by a caller
// supplied key, so repeated dispatches of the same action don't recompile
// its InputSchema/OutputSchema on every call.
type schemaCache struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{cache: make(map[string]*jsonschema.Schema)}
}

// validate compiles (or reuses) the schema registered under key and checks
// payload against it. A nil/empty schema document is treated as "no
// constraint" and always passes, since not every ToolAction declares one.
func (c *schemaCache) validate(key string, schema map[string]any, payload any) error {
	if len(schema) == 0 {
		return nil
	}

	compiled, err := c.compile(key, schema)
	if err != nil {
		return fmt.Errorf("toolrouter: compiling schema %s: %w", key, err)
	}
	if err := compiled.Validate(payload); err != nil {
		return fmt.Errorf("toolrouter: %s failed schema validation: %w", key, err)
	}
	return nil
}

func (c *schemaCache) compile(key string, schema map[string]any) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.cache[key]; ok {
		return s, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString(key, string(raw))
	if err != nil {
		return nil, err
	}
	c.cache[key] = compiled
	return compiled, nil
}
