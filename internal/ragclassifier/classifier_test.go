package ragclassifier

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/internal/embeddingstore"
	"github.com/haasonsaas/assistant-core/internal/intentcatalog"
	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

type fakeEmbedder struct{ vector []float32 }

func (f fakeEmbedder) Name() string       { return "fake" }
func (f fakeEmbedder) Dimension() int     { return len(f.vector) }
func (f fakeEmbedder) MaxBatchSize() int  { return 10 }
func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

type fakeLLM struct{ response string }

func (f fakeLLM) Name() string { return "fake" }
func (f fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: f.response}, nil
}

func newTestCatalogFromIntents(t *testing.T, intents []models.IntentDefinition) *intentcatalog.Catalog {
	t.Helper()
	return intentcatalog.NewForTesting(intents)
}

func TestClassify_HighConfidenceSkipsFallback(t *testing.T) {
	store := embeddingstore.New(3)
	must(t, store.Add(context.Background(), models.EmbeddingDocument{ID: "a", IntentID: "order.status", Vector: []float32{1, 0, 0}, Text: "where is my order"}))

	catalog := newTestCatalogFromIntents(t, []models.IntentDefinition{
		{ID: "order.status", ConfidenceThreshold: 0.3},
	})

	c := New(store, catalog, fakeEmbedder{vector: []float32{1, 0, 0}}, fakeLLM{response: `{"intent":"order.status","confidence":0.95,"entities":{},"rationale":"clear match"}`}, config.ClassifierConfig{
		MaxRAGExamples: 5,
		Fallback:       config.FallbackConfig{Enabled: true, GenericIntentID: "unknown"},
	})

	res, err := c.Classify(context.Background(), models.Utterance{Text: "where is my order", Timestamp: time.Now()}, models.SessionContext{}, models.ClassificationRequest{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.FallbackUsed {
		t.Fatalf("expected no fallback, got reason %q", res.FallbackReason)
	}
	if res.IntentID != "order.status" {
		t.Fatalf("IntentID = %s, want order.status", res.IntentID)
	}
}

func TestClassify_LowConfidenceFallsBackToGeneric(t *testing.T) {
	store := embeddingstore.New(0)
	catalog := newTestCatalogFromIntents(t, []models.IntentDefinition{{ID: "order.status", ConfidenceThreshold: 0.9}})

	c := New(store, catalog, fakeEmbedder{vector: []float32{1, 0, 0}}, fakeLLM{response: `not json at all`}, config.ClassifierConfig{
		MaxRAGExamples: 5,
		Fallback:       config.FallbackConfig{Enabled: true, GenericIntentID: "unknown"},
	})

	res, err := c.Classify(context.Background(), models.Utterance{Text: "asdkfj", Timestamp: time.Now()}, models.SessionContext{}, models.ClassificationRequest{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !res.FallbackUsed {
		t.Fatalf("expected fallback to trigger")
	}
}

func TestClassify_EmptyUtteranceIsValidationError(t *testing.T) {
	store := embeddingstore.New(0)
	catalog := newTestCatalogFromIntents(t, nil)
	c := New(store, catalog, fakeEmbedder{vector: []float32{1}}, fakeLLM{response: "{}"}, config.ClassifierConfig{})

	_, err := c.Classify(context.Background(), models.Utterance{Text: "   "}, models.SessionContext{}, models.ClassificationRequest{})
	if err == nil {
		t.Fatal("expected validation error for empty utterance")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
