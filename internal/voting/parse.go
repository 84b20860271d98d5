package voting

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

type voteSubtask struct {
	Action       string         `json:"action"`
	Entities     map[string]any `json:"entities,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

type rawVote struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
	Subtasks   []voteSubtask  `json:"subtasks"`
}

// parseVote extracts a juror's {intent, confidence, entities, subtasks}
// JSON object from its response text, tolerating surrounding prose the same
// way ragclassifier's response parsing does.
func parseVote(text string) (models.Vote, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return models.Vote{}, fmt.Errorf("no JSON object in juror response")
	}
	var raw rawVote
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return models.Vote{}, err
	}
	if raw.Intent == "" {
		return models.Vote{}, fmt.Errorf("juror response has no intent")
	}

	subtasks := make([]models.Subtask, len(raw.Subtasks))
	for i, st := range raw.Subtasks {
		subtasks[i] = models.Subtask{
			Action:       st.Action,
			Entities:     st.Entities,
			Dependencies: st.Dependencies,
			Status:       models.SubtaskPending,
		}
	}

	return models.Vote{
		Intent:     raw.Intent,
		Confidence: clamp01(raw.Confidence),
		Entities:   raw.Entities,
		Subtasks:   subtasks,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
