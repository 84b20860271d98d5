package pipeline

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/internal/decomposer"
	"github.com/haasonsaas/assistant-core/internal/embeddingstore"
	"github.com/haasonsaas/assistant-core/internal/intentcatalog"
	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/internal/observability"
	"github.com/haasonsaas/assistant-core/internal/orchestrator"
	"github.com/haasonsaas/assistant-core/internal/progress"
	"github.com/haasonsaas/assistant-core/internal/ragclassifier"
	"github.com/haasonsaas/assistant-core/internal/sessionstore"
	"github.com/haasonsaas/assistant-core/internal/slotfiller"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

type fakeEmbedder struct{ vector []float32 }

func (f fakeEmbedder) Name() string      { return "fake" }
func (f fakeEmbedder) Dimension() int    { return len(f.vector) }
func (f fakeEmbedder) MaxBatchSize() int { return 10 }
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

type fakeResolver struct{ known map[string]bool }

func (r *fakeResolver) Resolve(name string) (models.ToolAction, bool) {
	if r.known[name] {
		return models.ToolAction{Name: name}, true
	}
	return models.ToolAction{}, false
}

type fakeDispatcher struct{ response models.ToolResponse }

func (d *fakeDispatcher) Dispatch(ctx context.Context, action string, input map[string]any) (models.ToolResponse, error) {
	return d.response, nil
}

func newTestPipeline(t *testing.T, classifierResponse string, decomposerResponse string) (*Pipeline, sessionstore.Store) {
	t.Helper()

	store := embeddingstore.New(3)
	if err := store.Add(context.Background(), models.EmbeddingDocument{
		ID: "a", IntentID: "weather.query", Vector: []float32{1, 0, 0}, Text: "what's the weather",
	}); err != nil {
		t.Fatalf("seeding embedding store: %v", err)
	}

	catalog := intentcatalog.NewForTesting([]models.IntentDefinition{
		{
			ID:                  "weather.query",
			ToolAction:          "weather.query",
			RequiredSlots:       []string{"location"},
			ConfidenceThreshold: 0.3,
		},
	})

	classifier := ragclassifier.New(store, catalog, fakeEmbedder{vector: []float32{1, 0, 0}}, fakeLLM{response: classifierResponse}, config.ClassifierConfig{
		MaxRAGExamples: 5,
		Fallback:       config.FallbackConfig{Enabled: true, GenericIntentID: "unknown"},
	})

	resolver := &fakeResolver{known: map[string]bool{"weather.query": true}}
	decompose := decomposer.New(fakeLLM{response: decomposerResponse}, resolver, 10)

	dispatcher := &fakeDispatcher{response: models.ToolResponse{Type: models.ResponseText, Content: "sunny"}}
	tracker := progress.New(nil)
	orch := orchestrator.New(dispatcher, resolver, tracker, nil, nil, nil, orchestrator.Config{MaxParallelTasks: 4})

	sessions := sessionstore.NewMemoryStore(sessionstore.MemoryConfig{TTL: time.Hour})
	slots := slotfiller.New(nil, 3)
	// Only a single bare word (e.g. "Madrid") resolves location, so a
	// question-shaped utterance on the first turn still counts as missing.
	cityPattern := regexp.MustCompile(`^[A-Za-z]+$`)
	slots.RegisterPattern("location", func(utterance string) (any, bool) {
		if !cityPattern.MatchString(utterance) {
			return nil, false
		}
		return utterance, true
	})

	cfg := config.Config{
		Voting:     config.VotingConfig{Enabled: false},
		Decomposer: config.DecomposerConfig{Enabled: true},
	}

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{ServiceName: "pipeline-test"})
	p := New(classifier, nil, catalog, sessions, slots, decompose, orch, tracker, cfg, tracer, shutdown, nil)
	return p, sessions
}

func TestHandleMessage_CompleteSlotsDispatchesAndCompletes(t *testing.T) {
	p, _ := newTestPipeline(t,
		`{"intent":"weather.query","confidence":0.95,"entities":{"location":"Madrid"},"rationale":"clear match"}`,
		`[{"id":"t1","action":"weather.query","entities":{"location":"Madrid"}}]`,
	)

	resp, err := p.HandleMessage(context.Background(), models.ClassificationRequest{Text: "what's the weather in Madrid"})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.State != models.SessionCompleted {
		t.Fatalf("State = %s, want completed", resp.State)
	}
	if resp.Execution == nil || resp.Execution.PlanLevels != 1 {
		t.Fatalf("expected one execution level, got %+v", resp.Execution)
	}
}

func TestHandleMessage_MissingSlotParksSessionWaitingSlots(t *testing.T) {
	p, sessions := newTestPipeline(t,
		`{"intent":"weather.query","confidence":0.95,"entities":{},"rationale":"clear match, no location yet"}`,
		`[]`,
	)

	resp, err := p.HandleMessage(context.Background(), models.ClassificationRequest{Text: "what's the weather"})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.State != models.SessionWaitingSlots {
		t.Fatalf("State = %s, want waiting_slots", resp.State)
	}
	if resp.NextQuestion == "" {
		t.Fatal("expected a slot-filling follow-up question")
	}

	session, err := sessions.Get(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.CurrentIntent != "weather.query" {
		t.Fatalf("CurrentIntent = %s, want weather.query", session.CurrentIntent)
	}
}

func TestHandleMessage_SecondTurnFillsSlotWithoutReclassifying(t *testing.T) {
	p, sessions := newTestPipeline(t,
		`{"intent":"weather.query","confidence":0.95,"entities":{},"rationale":"no location yet"}`,
		`[{"id":"t1","action":"weather.query","entities":{"location":"Madrid"}}]`,
	)

	first, err := p.HandleMessage(context.Background(), models.ClassificationRequest{Text: "what's the weather"})
	if err != nil {
		t.Fatalf("first HandleMessage: %v", err)
	}

	second, err := p.HandleMessage(context.Background(), models.ClassificationRequest{
		Text:      "Madrid",
		SessionID: first.SessionID,
	})
	if err != nil {
		t.Fatalf("second HandleMessage: %v", err)
	}
	if second.State != models.SessionCompleted {
		t.Fatalf("State = %s, want completed", second.State)
	}

	session, err := sessions.Get(context.Background(), first.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", session.TurnCount)
	}
}
