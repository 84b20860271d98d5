package slotfiller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/assistant-core/internal/llm"
)

const extractionSystemPrompt = `You extract a single named value from a user's message.
Respond with exactly one JSON object: {"value": <the extracted value, or null if not present>}.
Do not add commentary outside the JSON object.`

// extractWithLLM is the second extraction tier of spec.md §4.7: when no
// regex pattern resolves slot, ask the configured model to pull the value
// out of utterance directly.
func (f *Filler) extractWithLLM(ctx context.Context, slot, utterance string) (any, bool) {
	if f.client == nil {
		return nil, false
	}

	req := llm.Request{
		System: extractionSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("Slot to extract: %s\nUser message: %s", slot, utterance)},
		},
		MaxTokens:   200,
		Temperature: 0,
	}

	resp, err := f.client.Complete(ctx, req)
	if err != nil {
		return nil, false
	}

	value, ok := parseExtraction(resp.Text)
	if !ok {
		return nil, false
	}
	return value, true
}

type rawExtraction struct {
	Value any `json:"value"`
}

// parseExtraction pulls the {"value": ...} object out of a model response,
// tolerating surrounding prose the same way voting's vote parsing does.
func parseExtraction(text string) (any, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, false
	}
	var raw rawExtraction
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}
	if raw.Value == nil {
		return nil, false
	}
	if s, ok := raw.Value.(string); ok && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return raw.Value, true
}
