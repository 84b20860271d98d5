package ragclassifier

import (
	"context"
	"strings"
	"time"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// fallbackLevel is one rung of the graded fallback ladder (spec.md §4.3.1).
// Levels are tried in order, stopping at first success — the same
// first-success-wins shape as internal/agent/failover.go's provider
// failover ladder.
type fallbackLevel func(ctx context.Context, c *Classifier, req models.ClassificationRequest) (models.ClassificationResult, bool)

// fallbackLadder returns the five levels in the order spec.md §4.3.1
// defines them.
func fallbackLadder() []fallbackLevel {
	return []fallbackLevel{
		levelRelaxedSimilarity,
		levelGeneralDomain,
		levelKeywordMap,
		levelContextual,
		levelGeneric,
	}
}

// levelRelaxedSimilarity reruns retrieval with a relaxed min_similarity and
// applies a 20% penalty to the reported confidence.
func levelRelaxedSimilarity(ctx context.Context, c *Classifier, req models.ClassificationRequest) (models.ClassificationResult, bool) {
	if c.embeddings == nil {
		return models.ClassificationResult{}, false
	}
	query, err := c.embed(ctx, req.Text)
	if err != nil {
		return models.ClassificationResult{}, false
	}

	reduction := c.cfg.Fallback.RelaxedSimilarityFloor
	if reduction <= 0 {
		reduction = 0.5
	}
	opts := c.searchOptions(req)
	opts.MinScore *= (1 - reduction)

	res, err := c.embeddings.Search(ctx, query, opts)
	if err != nil || len(res.Matches) == 0 {
		return models.ClassificationResult{}, false
	}

	top := res.Matches[0]
	return models.ClassificationResult{
		IntentID:       top.Document.IntentID,
		Confidence:     top.Score * 0.8,
		FallbackUsed:   true,
		FallbackReason: "relaxed_similarity",
	}, true
}

// generalDomainIntents maps a small built-in keyword set to conversational
// housekeeping intents spec.md §4.3.1 L2 names explicitly.
var generalDomainIntents = map[string][]string{
	"help":     {"help", "assist", "support", "confused", "how do i"},
	"greeting": {"hello", "hi", "hey", "good morning", "good afternoon"},
	"thanks":   {"thank", "thanks", "appreciate"},
	"farewell": {"bye", "goodbye", "see you", "later"},
}

func levelGeneralDomain(_ context.Context, _ *Classifier, req models.ClassificationRequest) (models.ClassificationResult, bool) {
	text := strings.ToLower(req.Text)
	for intent, keywords := range generalDomainIntents {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return models.ClassificationResult{
					IntentID:       intent,
					Confidence:     0.40,
					FallbackUsed:   true,
					FallbackReason: "general_domain",
				}, true
			}
		}
	}
	return models.ClassificationResult{}, false
}

// keywordMap is a fixed keyword → intent table for domain intents that
// don't fit the general-domain housekeeping set.
var keywordMap = map[string]string{
	"order":   "order.status",
	"cancel":  "order.cancel",
	"refund":  "order.refund",
	"invoice": "billing.invoice",
	"payment": "billing.payment",
}

func levelKeywordMap(_ context.Context, _ *Classifier, req models.ClassificationRequest) (models.ClassificationResult, bool) {
	text := strings.ToLower(req.Text)
	bestIntent := ""
	bestScore := 0.0
	for kw, intent := range keywordMap {
		if !strings.Contains(text, kw) {
			continue
		}
		score := float64(len(kw)) / float64(len(text)+1)
		if score > bestScore {
			bestScore = score
			bestIntent = intent
		}
	}
	if bestIntent == "" {
		return models.ClassificationResult{}, false
	}
	confidence := bestScore
	if confidence > 0.50 {
		confidence = 0.50
	}
	return models.ClassificationResult{
		IntentID:       bestIntent,
		Confidence:     confidence,
		FallbackUsed:   true,
		FallbackReason: "keyword_map",
	}, true
}

// levelContextual infers an intent from session context (last intent,
// device/location/time-of-day hints) when retrieval and keyword matching
// both come up empty.
func levelContextual(_ context.Context, _ *Classifier, req models.ClassificationRequest) (models.ClassificationResult, bool) {
	lastIntent, _ := req.ContextMetadata["last_intent"].(string)
	if lastIntent == "" {
		return models.ClassificationResult{}, false
	}
	return models.ClassificationResult{
		IntentID:       lastIntent,
		Confidence:     0.45,
		FallbackUsed:   true,
		FallbackReason: "contextual",
	}, true
}

// levelGeneric always succeeds, returning the configured generic intent at
// very low confidence — the floor of the ladder.
func levelGeneric(_ context.Context, c *Classifier, _ models.ClassificationRequest) (models.ClassificationResult, bool) {
	intentID := c.cfg.Fallback.GenericIntentID
	if intentID == "" {
		intentID = "unknown"
	}
	return models.ClassificationResult{
		IntentID:       intentID,
		Confidence:     0.10,
		FallbackUsed:   true,
		FallbackReason: "generic",
	}, true
}

// runFallback tries each level in order, returning the first success.
func runFallback(ctx context.Context, c *Classifier, req models.ClassificationRequest) models.ClassificationResult {
	start := time.Now()
	for _, level := range fallbackLadder() {
		if result, ok := level(ctx, c, req); ok {
			result.ProcessingTimeMS = time.Since(start).Milliseconds()
			return result
		}
	}
	// levelGeneric always succeeds, so this is unreachable, but guards
	// against a future ladder edit that removes the unconditional floor.
	return models.ClassificationResult{FallbackUsed: true, FallbackReason: "generic", Confidence: 0.10}
}
