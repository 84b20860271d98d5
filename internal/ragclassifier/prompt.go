package ragclassifier

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// PromptStrategy names one of the five fixed prompt-construction approaches
// spec.md §4.3 step 3 enumerates. Unlike IntentCatalog/ToolRegistry, this
// set is fixed by spec and never extended at runtime, so a switch over a
// closed string enum is the right shape, not a registry.
type PromptStrategy string

const (
	StrategyAdaptive        PromptStrategy = "adaptive"
	StrategyFewShot         PromptStrategy = "few-shot"
	StrategyZeroShot        PromptStrategy = "zero-shot"
	StrategyChainOfThought  PromptStrategy = "chain-of-thought"
	StrategyExpertDomain    PromptStrategy = "expert-domain"
)

// promptInput bundles everything a strategy's render function needs.
type promptInput struct {
	Utterance      models.Utterance
	Examples       []models.ScoredDocument
	AdmissibleIDs  []string
	LastIntent     string
	CachedEntities map[string]any
}

// resolveAdaptive picks the concrete strategy "adaptive" maps to, per
// spec.md §4.3 step 3: few-shot when high-similarity examples exist,
// zero-shot when none do, expert-domain when retrieved examples share an
// expert_domain.
func resolveAdaptive(in promptInput, highSimilarityFloor float64, byID map[string]models.IntentDefinition) PromptStrategy {
	if len(in.Examples) == 0 {
		return StrategyZeroShot
	}

	domain := ""
	sameDomain := true
	highSim := false
	for _, ex := range in.Examples {
		if ex.Score >= highSimilarityFloor {
			highSim = true
		}
		intent, ok := byID[ex.Document.IntentID]
		if !ok || intent.ExpertDomain == "" {
			sameDomain = false
			continue
		}
		if domain == "" {
			domain = intent.ExpertDomain
		} else if domain != intent.ExpertDomain {
			sameDomain = false
		}
	}
	if sameDomain && domain != "" {
		return StrategyExpertDomain
	}
	if highSim {
		return StrategyFewShot
	}
	return StrategyZeroShot
}

// buildPrompt renders the full LLM-ready prompt string for the chosen
// strategy, grounded on the header+chunk template assembly style of
// internal/rag/context/injector.go, adapted from formatting retrieved
// document chunks to formatting retrieved intent exemplars.
func buildPrompt(strategy PromptStrategy, in promptInput) string {
	var b strings.Builder

	switch strategy {
	case StrategyChainOfThought:
		b.WriteString("Think step by step about which intent best matches the user's message, then state your conclusion.\n\n")
	case StrategyExpertDomain:
		b.WriteString("The retrieved examples below share a single expert domain; weigh that domain's conventions heavily.\n\n")
	case StrategyZeroShot:
		b.WriteString("No closely matching examples were found; classify from the intent list and the message alone.\n\n")
	default:
		b.WriteString("Classify the user's message against the intent catalog below, using the retrieved examples as guidance.\n\n")
	}

	if strategy != StrategyZeroShot && len(in.Examples) > 0 {
		b.WriteString("## Retrieved examples\n\n")
		for _, ex := range in.Examples {
			fmt.Fprintf(&b, "- (%s, score=%.3f) %q\n", ex.Document.IntentID, ex.Score, ex.Document.Text)
		}
		b.WriteString("\n")
	}

	if in.LastIntent != "" || len(in.CachedEntities) > 0 {
		b.WriteString("## Session hints\n\n")
		if in.LastIntent != "" {
			fmt.Fprintf(&b, "- last intent: %s\n", in.LastIntent)
		}
		for k, v := range in.CachedEntities {
			fmt.Fprintf(&b, "- cached entity %s: %v\n", k, v)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Admissible intents\n\n")
	for _, id := range in.AdmissibleIDs {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## User message\n\n%s\n\n", in.Utterance.Text)
	b.WriteString("Respond with a JSON object: {\"intent\": string, \"confidence\": number in [0,1], \"entities\": object, \"rationale\": string}.\n")
	return b.String()
}
