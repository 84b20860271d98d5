// Package voting implements C5 VotingEngine: a mixture-of-experts jury that
// fans out a classification prompt to multiple LLM jurors concurrently,
// resolves their votes into a consensus by a configurable algorithm, and
// runs further debate rounds when the jurors disagree.
package voting

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Juror is the minimal capability VotingEngine needs from one roster
// member — independently callable, and skippable if its backing client
// could not be constructed (missing credentials).
type Juror interface {
	ID() string
	ProposeIntent(ctx context.Context, prompt string) (models.Vote, error)
}

// RosterEntry declares one juror's configuration (spec.md §4.4).
type RosterEntry struct {
	ID             string  `yaml:"id"`
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	Role           string  `yaml:"role"`
	Weight         float64 `yaml:"weight"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	PromptTemplate string  `yaml:"prompt_template"`
}

// llmJuror adapts an llm.Client into a Juror, rendering the base prompt
// plus the entry's role preamble and parsing the client's response into a
// Vote.
type llmJuror struct {
	entry  RosterEntry
	client llm.Client
}

// NewJuror builds a Juror backed by client, or an error if client is nil —
// the roster builder treats that error as "skip this juror" rather than a
// fatal roster-construction failure (spec.md §4.4 "missing credentials
// cause that juror to be skipped").
func NewJuror(entry RosterEntry, client llm.Client) (Juror, error) {
	if client == nil {
		return nil, fmt.Errorf("voting: juror %s has no backing client", entry.ID)
	}
	weight := entry.Weight
	if weight <= 0 {
		weight = 1
	}
	entry.Weight = weight
	return &llmJuror{entry: entry, client: client}, nil
}

func (j *llmJuror) ID() string { return j.entry.ID }

func (j *llmJuror) ProposeIntent(ctx context.Context, prompt string) (models.Vote, error) {
	system := j.entry.PromptTemplate
	if j.entry.Role != "" {
		system = fmt.Sprintf("You are acting as: %s.\n%s", j.entry.Role, system)
	}

	resp, err := j.client.Complete(ctx, llm.Request{
		Model:       j.entry.Model,
		System:      system,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   j.entry.MaxTokens,
		Temperature: j.entry.Temperature,
	})
	if err != nil {
		return models.Vote{}, fmt.Errorf("voting: juror %s: %w", j.entry.ID, err)
	}

	vote, err := parseVote(resp.Text)
	if err != nil {
		return models.Vote{}, fmt.Errorf("voting: juror %s: parse: %w", j.entry.ID, err)
	}
	vote.JurorID = j.entry.ID
	vote.Weight = j.entry.Weight
	vote.RawText = resp.Text
	vote.Timestamp = time.Now()
	return vote, nil
}
