package decomposer

import (
	"context"
	"testing"

	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

type fakeClient struct {
	text string
	err  error
}

func (c *fakeClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Text: c.text}, nil
}

func (c *fakeClient) Name() string { return "fake" }

type fakeResolver struct {
	known map[string]bool
}

func (r *fakeResolver) Resolve(name string) (models.ToolAction, bool) {
	if r.known[name] {
		return models.ToolAction{Name: name}, true
	}
	return models.ToolAction{}, false
}

func weatherIntent() models.IntentDefinition {
	return models.IntentDefinition{ID: "weather.query", ToolAction: "weather.query"}
}

func TestDecompose_NilClientFallsBackToSingleSubtask(t *testing.T) {
	d := New(nil, &fakeResolver{known: map[string]bool{"weather.query": true}}, 10)
	subtasks, err := d.Decompose(context.Background(), "what's the weather in Madrid", weatherIntent(), map[string]any{"ubicacion": "Madrid"}, models.SessionContext{})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].Action != "weather.query" {
		t.Fatalf("unexpected subtasks: %+v", subtasks)
	}
}

func TestDecompose_ParsesOrderedDependentSubtasks(t *testing.T) {
	client := &fakeClient{text: `[
		{"id":"t1","action":"weather.query","entities":{"ubicacion":"Madrid"}},
		{"id":"t2","action":"alarm.schedule_conditional","depends_on":["t1"]}
	]`}
	resolver := &fakeResolver{known: map[string]bool{"weather.query": true, "alarm.schedule_conditional": true}}
	d := New(client, resolver, 10)

	subtasks, err := d.Decompose(context.Background(), "consulta el tiempo de Madrid y programa una alarma si va a llover", weatherIntent(), nil, models.SessionContext{})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d: %+v", len(subtasks), subtasks)
	}
	if subtasks[1].Dependencies[0] != "t1" {
		t.Fatalf("expected t2 to depend on t1, got %+v", subtasks[1].Dependencies)
	}
}

func TestDecompose_DropsSubtaskWithUnresolvedAction(t *testing.T) {
	client := &fakeClient{text: `[
		{"id":"t1","action":"weather.query"},
		{"id":"t2","action":"unknown.tool","depends_on":["t1"]}
	]`}
	resolver := &fakeResolver{known: map[string]bool{"weather.query": true}}
	d := New(client, resolver, 10)

	subtasks, err := d.Decompose(context.Background(), "do a thing", weatherIntent(), nil, models.SessionContext{})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].ID != "t1" {
		t.Fatalf("expected only t1 to survive, got %+v", subtasks)
	}
}

func TestDecompose_BreaksCycleByDroppingOneSubtask(t *testing.T) {
	client := &fakeClient{text: `[
		{"id":"t1","action":"weather.query","depends_on":["t2"]},
		{"id":"t2","action":"alarm.schedule_conditional","depends_on":["t1"]}
	]`}
	resolver := &fakeResolver{known: map[string]bool{"weather.query": true, "alarm.schedule_conditional": true}}
	d := New(client, resolver, 10)

	subtasks, err := d.Decompose(context.Background(), "circular request", weatherIntent(), nil, models.SessionContext{})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 1 {
		t.Fatalf("expected cycle resolution to leave exactly 1 subtask, got %+v", subtasks)
	}
}

func TestDecompose_UnparsableResponseFallsBack(t *testing.T) {
	client := &fakeClient{text: "I cannot help with that."}
	d := New(client, &fakeResolver{known: map[string]bool{"weather.query": true}}, 10)

	subtasks, err := d.Decompose(context.Background(), "what's the weather", weatherIntent(), nil, models.SessionContext{})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].Action != "weather.query" {
		t.Fatalf("expected fallback subtask, got %+v", subtasks)
	}
}

func TestDecompose_CapsAtMaxSubtasks(t *testing.T) {
	client := &fakeClient{text: `[
		{"id":"t1","action":"weather.query"},
		{"id":"t2","action":"weather.query"},
		{"id":"t3","action":"weather.query"}
	]`}
	d := New(client, &fakeResolver{known: map[string]bool{"weather.query": true}}, 2)

	subtasks, err := d.Decompose(context.Background(), "x", weatherIntent(), nil, models.SessionContext{})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("expected subtasks capped at 2, got %d", len(subtasks))
	}
}

func TestDetectConnectors_FindsSequencingWords(t *testing.T) {
	hints := detectConnectors("consulta el tiempo y programa una alarma si va a llover")
	if len(hints) == 0 {
		t.Fatal("expected connector hints, got none")
	}
}
