// Package slotfiller implements C7 SlotFiller: computing which of an
// intent's required slots are still missing, extracting candidate values
// for the next one from the user's utterance, and rendering the question
// to ask when extraction still leaves it unfilled.
package slotfiller

import (
	"context"
	"fmt"
	"sort"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Result is SlotFiller's outcome for one turn.
type Result struct {
	Complete  bool
	Slots     map[string]any
	Question  string
	SlotAsked string
}

// Filler extracts slot values for an intent against the session's
// accumulated slots and entity cache, per spec.md §4.7's extraction order:
// regex patterns, then an LLM extraction prompt, then the session entity
// cache.
type Filler struct {
	client     llm.Client
	patterns   map[string][]extractor // per-slot regex extractors
	maxAttempt int
}

// New builds a Filler. client is used for LLM-based extraction when regex
// patterns don't resolve a slot; it may be nil to disable that extraction
// tier (useful in tests, or deployments that only configure regex slots).
func New(client llm.Client, maxAttempts int) *Filler {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Filler{client: client, patterns: defaultPatterns(), maxAttempt: maxAttempts}
}

// RegisterPattern adds (or replaces) the regex extractor list for a named
// slot, for deployments that declare slot patterns via configuration rather
// than relying on this package's built-in defaults.
func (f *Filler) RegisterPattern(slot string, patterns ...extractor) {
	if f.patterns == nil {
		f.patterns = map[string][]extractor{}
	}
	f.patterns[slot] = patterns
}

// Missing returns the required slots of intent not yet present in
// session.Slots, preserving intent.RequiredSlots order unless a priority
// weight reorders them.
func Missing(intent models.IntentDefinition, slots map[string]any) []string {
	var missing []string
	for _, slot := range intent.RequiredSlots {
		if _, ok := slots[slot]; !ok {
			missing = append(missing, slot)
		}
	}
	sort.SliceStable(missing, func(i, j int) bool {
		pi, pj := intent.SlotPriority[missing[i]], intent.SlotPriority[missing[j]]
		return pi > pj
	})
	return missing
}

// attemptKey identifies one (intent, slot) extraction budget within a
// session's Context.SlotAttempts map. Attempts are scoped to the session
// itself (not passed separately) so the budget persists across turns and
// process restarts the same way the rest of the session does.
func attemptKey(intent, slot string) string {
	return intent + "::" + slot
}

// Fill computes the missing-slot set for intent and repeatedly tries to
// extract values for each missing slot (priority order) from the single
// utterance — a turn may supply more than one slot at once — stopping at
// the first slot it cannot resolve and reporting its question, or
// reporting completion once nothing is left missing (spec.md §4.7).
func (f *Filler) Fill(ctx context.Context, intent models.IntentDefinition, utterance string, session *models.Session) (Result, error) {
	for {
		missing := Missing(intent, session.Slots)
		if len(missing) == 0 {
			return Result{Complete: true, Slots: session.Slots}, nil
		}

		slot := missing[0]
		key := attemptKey(intent.ID, slot)
		if session.Context.SlotAttempts == nil {
			session.Context.SlotAttempts = map[string]int{}
		}
		session.Context.SlotAttempts[key]++
		if session.Context.SlotAttempts[key] > f.maxAttempt {
			return Result{}, &assistanterrors.ValidationError{
				Field:   slot,
				Message: fmt.Sprintf("exceeded max_attempts (%d) filling slot %q for intent %q", f.maxAttempt, slot, intent.ID),
			}
		}

		value, ok := f.extract(ctx, slot, utterance, session)
		if !ok {
			question := renderQuestion(intent, slot, session.Slots)
			return Result{Complete: false, Question: question, SlotAsked: slot}, nil
		}

		if session.Slots == nil {
			session.Slots = map[string]any{}
		}
		session.Slots[slot] = value
		delete(session.Context.SlotAttempts, key)
	}
}

// extract tries regex, then LLM, then the session entity cache, in the
// order spec.md §4.7 specifies, normalising the result before returning.
func (f *Filler) extract(ctx context.Context, slot, utterance string, session *models.Session) (any, bool) {
	if utterance != "" {
		if extractors, ok := f.patterns[slot]; ok {
			for _, ex := range extractors {
				if value, ok := ex(utterance); ok {
					return normalize(slot, value), true
				}
			}
		}
	}

	if utterance != "" && f.client != nil {
		if value, ok := f.extractWithLLM(ctx, slot, utterance); ok {
			return normalize(slot, value), true
		}
	}

	if session.Context.EntityCache != nil {
		if value, ok := session.Context.EntityCache[slot]; ok {
			return normalize(slot, value), true
		}
	}

	return nil, false
}

func renderQuestion(intent models.IntentDefinition, slot string, known map[string]any) string {
	template, ok := intent.SlotQuestions[slot]
	if !ok || template == "" {
		return fmt.Sprintf("Could you provide %s?", slot)
	}
	return fillPlaceholders(template, known)
}
