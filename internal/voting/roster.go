package voting

import (
	"fmt"

	"github.com/haasonsaas/assistant-core/internal/registryconfig"
)

// RosterDocument is the on-disk shape of a jury roster file: one entry per
// juror, grounded on toolregistry.Document/intentcatalog.Document's "one
// $include-able YAML document per registry" convention.
type RosterDocument struct {
	Jurors []RosterEntry `yaml:"jurors"`
}

// LoadRoster reads path into a RosterEntry list. Unlike ToolRegistry/
// IntentCatalog, a roster has no hot-reload requirement (spec.md §4.4 never
// asks for one) so this is a plain one-shot load through registryconfig's
// $include/env-var resolution rather than a Watcher-backed Registry type.
func LoadRoster(path string) ([]RosterEntry, error) {
	doc, err := registryconfig.Load[RosterDocument](path)
	if err != nil {
		return nil, fmt.Errorf("voting: loading roster: %w", err)
	}
	if len(doc.Jurors) == 0 {
		return nil, fmt.Errorf("voting: roster %s declares no jurors", path)
	}
	for _, entry := range doc.Jurors {
		if entry.ID == "" {
			return nil, fmt.Errorf("voting: roster %s has a juror with empty id", path)
		}
	}
	return doc.Jurors, nil
}
