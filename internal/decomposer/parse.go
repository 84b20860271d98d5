package decomposer

import (
	"encoding/json"
	"strings"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

type rawSubtask struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Entities  map[string]any `json:"entities,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Priority  int            `json:"priority,omitempty"`
}

// parseSubtasks extracts the decomposer's JSON array from a model
// response, tolerating surrounding prose the same way voting's vote
// parsing and slotfiller's extraction parsing do.
func parseSubtasks(text string) ([]rawSubtask, bool) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return nil, false
	}
	var raw []rawSubtask
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}
	return raw, true
}

// toModelSubtasks assigns stable fallback ids to any entry the model left
// blank, so dependency references and graph sorting always have something
// to key on.
func toModelSubtasks(raw []rawSubtask) []models.Subtask {
	used := make(map[string]bool, len(raw))
	out := make([]models.Subtask, len(raw))
	for i, r := range raw {
		id := r.ID
		if id == "" || used[id] {
			id = syntheticID(i)
		}
		used[id] = true
		out[i] = models.Subtask{
			ID:           id,
			Action:       r.Action,
			Entities:     r.Entities,
			Dependencies: r.DependsOn,
			Priority:     r.Priority,
			Status:       models.SubtaskPending,
		}
	}
	return out
}

func syntheticID(i int) string {
	return "t" + string(rune('0'+i%10)) + "-" + string(rune('a'+(i/10)%26))
}
