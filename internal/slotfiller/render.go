package slotfiller

import (
	"fmt"
	"strings"
)

// fillPlaceholders substitutes "{{slot}}" placeholders in template with
// already-known slot values, the same ReplaceAll-per-placeholder approach
// the RAG context injector uses for its chunk templates.
func fillPlaceholders(template string, known map[string]any) string {
	out := template
	for key, value := range known {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(out, placeholder) {
			continue
		}
		out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", value))
	}
	return out
}
