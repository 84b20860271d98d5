// Package ragclassifier implements C4 RagClassifier: combines EmbeddingStore
// nearest-neighbor retrieval and IntentCatalog intent definitions to produce
// a candidate intent with a calibrated confidence, invoking an LLM with an
// adaptively-constructed prompt and falling back through a graded ladder
// when confidence is low.
package ragclassifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/internal/embeddingstore"
	"github.com/haasonsaas/assistant-core/internal/intentcatalog"
	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/internal/llm/embeddings"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Classifier is C4 RagClassifier.
type Classifier struct {
	embeddings *embeddingstore.Store
	catalog    *intentcatalog.Catalog
	embedder   embeddings.Provider
	client     llm.Client
	cfg        config.ClassifierConfig
	weights    ConfidenceWeights
}

// New builds a Classifier from its dependencies and configuration.
func New(store *embeddingstore.Store, catalog *intentcatalog.Catalog, embedder embeddings.Provider, client llm.Client, cfg config.ClassifierConfig) *Classifier {
	weights := DefaultConfidenceWeights()
	if len(cfg.SignalWeights) > 0 {
		weights = weightsFromConfig(cfg.SignalWeights)
	}
	return &Classifier{
		embeddings: store,
		catalog:    catalog,
		embedder:   embedder,
		client:     client,
		cfg:        cfg,
		weights:    weights,
	}
}

func weightsFromConfig(m map[string]float64) ConfidenceWeights {
	d := DefaultConfidenceWeights()
	get := func(key string, fallback float64) float64 {
		if v, ok := m[key]; ok {
			return v
		}
		return fallback
	}
	return ConfidenceWeights{
		LLMSelfConfidence:  get("llm_self_confidence", d.LLMSelfConfidence),
		MeanSimilarity:     get("mean_similarity", d.MeanSimilarity),
		IntentConsistency:  get("intent_consistency", d.IntentConsistency),
		ExampleCountFactor: get("example_count_factor", d.ExampleCountFactor),
		SemanticDiversity:  get("semantic_diversity", d.SemanticDiversity),
		TemporalFactor:     get("temporal_factor", d.TemporalFactor),
		EmbeddingQuality:   get("embedding_quality", d.EmbeddingQuality),
		SimilarityEntropy:  get("similarity_entropy", d.SimilarityEntropy),
		ContextualFactor:   get("contextual_factor", d.ContextualFactor),
		PromptRobustness:   get("prompt_robustness", d.PromptRobustness),
	}
}

// Classify runs the full pipeline described in spec.md §4.3.
func (c *Classifier) Classify(ctx context.Context, utterance models.Utterance, session models.SessionContext, req models.ClassificationRequest) (models.ClassificationResult, error) {
	start := time.Now()
	if utterance.IsEmpty() {
		return models.ClassificationResult{}, &assistanterrors.ValidationError{Field: "text", Message: "utterance text is empty"}
	}

	maxExamples := req.MaxExamples
	if maxExamples <= 0 {
		maxExamples = c.cfg.MaxRAGExamples
	}
	if maxExamples <= 0 {
		maxExamples = 5
	}

	// Step 1-2: embed and retrieve.
	query, err := c.embed(ctx, utterance.Text)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("ragclassifier: embed: %w", err)
	}
	searchRes, err := c.embeddings.Search(ctx, query, embeddingstore.SearchOptions{
		K:            maxExamples,
		Method:       models.SimilarityCosine,
		MaxPerIntent: 3,
	})
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("ragclassifier: search: %w", err)
	}

	// Step 3: build prompt.
	admissible := c.admissibleIDs()
	byID := c.intentsByID()
	lastIntent, _ := req.ContextMetadata["last_intent"].(string)
	promptIn := promptInput{
		Utterance:      utterance,
		Examples:       searchRes.Matches,
		AdmissibleIDs:  admissible,
		LastIntent:     lastIntent,
		CachedEntities: session.EntityCache,
	}
	strategy := PromptStrategy(c.cfg.PromptStrategy)
	if strategy == "" || strategy == StrategyAdaptive {
		strategy = resolveAdaptive(promptIn, 0.75, byID)
	}
	prompt := buildPrompt(strategy, promptIn)

	// Step 4-5: invoke LLM, parse.
	resp, err := c.client.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("ragclassifier: llm complete: %w", err)
	}
	parsed, parseErr := parseLLMResponse(resp.Text)

	// Step 6: ten-signal confidence mix.
	scores := make([]float64, len(searchRes.Matches))
	intentCounts := make(map[string]int, len(searchRes.Matches))
	for i, m := range searchRes.Matches {
		scores[i] = m.Score
		intentCounts[m.Document.IntentID]++
	}
	signals := ConfidenceSignals{
		LLMSelfConfidence:  clamp01(parsed.Confidence),
		MeanSimilarity:     MeanSimilarity(scores),
		IntentConsistency:  consistency(intentCounts, parsed.IntentID),
		ExampleCountFactor: ExampleCountFactor(len(searchRes.Matches), maxExamples),
		SemanticDiversity:  1 - consistency(intentCounts, parsed.IntentID),
		TemporalFactor:     temporalFactor(time.Since(start)),
		EmbeddingQuality:   1 - clamp01(StdDev(scores)),
		SimilarityEntropy:  1 - Entropy(intentCounts),
		ContextualFactor:   contextualFactor(session),
		PromptRobustness:   promptRobustness(parseErr),
	}
	finalConfidence := ComputeConfidence(signals, c.weights)

	result := models.ClassificationResult{
		IntentID:         parsed.IntentID,
		Confidence:       finalConfidence,
		RAGExamplesUsed:  matchedDocuments(searchRes.Matches),
		PromptUsed:       prompt,
		LLMResponse:      resp.Text,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Entities:         parsed.Entities,
		Rationale:        parsed.Rationale,
		Metrics: models.ClassificationMetrics{
			LLMSelfConfidence:  signals.LLMSelfConfidence,
			MeanSimilarity:     signals.MeanSimilarity,
			IntentConsistency:  signals.IntentConsistency,
			ExampleCountFactor: signals.ExampleCountFactor,
			SemanticDiversity:  signals.SemanticDiversity,
			TemporalFactor:     signals.TemporalFactor,
			EmbeddingQuality:   signals.EmbeddingQuality,
			SimilarityEntropy:  signals.SimilarityEntropy,
			ContextualFactor:   signals.ContextualFactor,
			PromptRobustness:   signals.PromptRobustness,
			QualityFactor:      signals.EmbeddingQuality * signals.SimilarityEntropy,
		},
	}

	threshold := req.ConfidenceThreshold
	if threshold <= 0 {
		threshold = intentThreshold(byID, result.IntentID, c.cfg.ConfidenceThreshold)
	}

	// Step 7-8: threshold check, graded fallback.
	if result.Confidence >= threshold {
		return result, nil
	}
	if req.EnableFallback != nil && !*req.EnableFallback {
		return result, nil
	}
	if !c.cfg.Fallback.Enabled {
		return result, nil
	}
	return runFallback(ctx, c, req), nil
}

func (c *Classifier) embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("ragclassifier: no embedding provider configured")
	}
	return c.embedder.Embed(ctx, text)
}

func (c *Classifier) searchOptions(req models.ClassificationRequest) embeddingstore.SearchOptions {
	k := req.MaxExamples
	if k <= 0 {
		k = c.cfg.MaxRAGExamples
	}
	if k <= 0 {
		k = 5
	}
	return embeddingstore.SearchOptions{K: k, Method: models.SimilarityCosine, MaxPerIntent: 3}
}

func (c *Classifier) admissibleIDs() []string {
	if c.catalog == nil {
		return nil
	}
	defs := c.catalog.All()
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

func (c *Classifier) intentsByID() map[string]models.IntentDefinition {
	out := map[string]models.IntentDefinition{}
	if c.catalog == nil {
		return out
	}
	for _, d := range c.catalog.All() {
		out[d.ID] = d
	}
	return out
}

func intentThreshold(byID map[string]models.IntentDefinition, intentID string, fallback float64) float64 {
	if d, ok := byID[intentID]; ok && d.ConfidenceThreshold > 0 {
		return d.ConfidenceThreshold
	}
	if fallback > 0 {
		return fallback
	}
	return 0.6
}

// llmParsedResponse is the JSON shape the classification prompt asks the
// LLM to respond with (spec.md §4.3 step 5).
type llmParsedResponse struct {
	IntentID   string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
	Rationale  string         `json:"rationale"`
}

// parseLLMResponse extracts the JSON object from the model's response text,
// tolerating surrounding prose by locating the outermost braces.
func parseLLMResponse(text string) (llmParsedResponse, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return llmParsedResponse{}, fmt.Errorf("ragclassifier: no JSON object in LLM response")
	}
	var parsed struct {
		Intent     string         `json:"intent"`
		Confidence float64        `json:"confidence"`
		Entities   map[string]any `json:"entities"`
		Rationale  string         `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return llmParsedResponse{}, err
	}
	return llmParsedResponse{
		IntentID:   parsed.Intent,
		Confidence: parsed.Confidence,
		Entities:   parsed.Entities,
		Rationale:  parsed.Rationale,
	}, nil
}

func consistency(counts map[string]int, winner string) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(counts[winner]) / float64(total)
}

// temporalFactor rewards bounded processing time, decaying linearly past
// one second and floored at 0.
func temporalFactor(elapsed time.Duration) float64 {
	const boundedWithin = time.Second
	if elapsed <= boundedWithin {
		return 1
	}
	over := elapsed - boundedWithin
	decay := 1 - float64(over)/float64(2*time.Second)
	return clamp01(decay)
}

func contextualFactor(session models.SessionContext) float64 {
	if len(session.EntityCache) == 0 && len(session.Preferences) == 0 && len(session.IntentFrequency) == 0 {
		return 0
	}
	return 1
}

func promptRobustness(parseErr error) float64 {
	if parseErr != nil {
		return 0
	}
	return 1
}

func matchedDocuments(matches []models.ScoredDocument) []models.EmbeddingDocument {
	out := make([]models.EmbeddingDocument, len(matches))
	for i, m := range matches {
		out[i] = m.Document
	}
	return out
}
