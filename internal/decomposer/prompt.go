package decomposer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

const decomposeSystemPrompt = `You split a user request into an ordered set of subtasks.
Respond with exactly one JSON array, each element shaped:
{"id": "t1", "action": "plugin.action", "entities": {...}, "depends_on": ["t0"], "priority": 0}
"action" must be a tool action name the caller's registry would recognize. "depends_on" lists
the ids (from this same array) of subtasks that must finish first. Return [] if the request
is a single, undividable action. Do not add commentary outside the JSON array.`

// connectorPattern flags the sequencing/conditional connectors spec.md
// §4.8 calls out ("y/and", "luego/then", "si/if", "mientras/while") so the
// prompt can hint the model toward an ordered, dependency-bearing split
// instead of a flat list.
var connectorPattern = regexp.MustCompile(`(?i)\b(y|and|luego|then|si|if|mientras|while|after|después|despues|before|antes)\b`)

func detectConnectors(utterance string) []string {
	matches := connectorPattern.FindAllString(utterance, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		lower := strings.ToLower(m)
		if !seen[lower] {
			seen[lower] = true
			out = append(out, lower)
		}
	}
	return out
}

func (d *Decomposer) buildRequest(utterance string, intent models.IntentDefinition, entities map[string]any, sessionCtx models.SessionContext) llm.Request {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Intent: %s\n", intent.ID)
	fmt.Fprintf(&sb, "Utterance: %s\n", utterance)
	if len(entities) > 0 {
		fmt.Fprintf(&sb, "Known entities: %v\n", entities)
	}
	if intent.ToolAction != "" {
		fmt.Fprintf(&sb, "Default action if no split is needed: %s\n", intent.ToolAction)
	}
	if hints := detectConnectors(utterance); len(hints) > 0 {
		fmt.Fprintf(&sb, "Sequencing/conditional connectors present: %v\n", hints)
	}
	if sessionCtx.Summary != "" {
		fmt.Fprintf(&sb, "Conversation summary: %s\n", sessionCtx.Summary)
	}

	return llm.Request{
		System: decomposeSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: sb.String()},
		},
		MaxTokens:   600,
		Temperature: 0,
	}
}
