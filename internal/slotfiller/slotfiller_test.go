package slotfiller

import (
	"context"
	"testing"

	"github.com/haasonsaas/assistant-core/pkg/models"

	"github.com/haasonsaas/assistant-core/internal/llm"
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

func orderLookupIntent() models.IntentDefinition {
	return models.IntentDefinition{
		ID:            "order.status",
		RequiredSlots: []string{"order_id", "email"},
		SlotPriority:  map[string]int{"order_id": 10, "email": 1},
		SlotQuestions: map[string]string{
			"order_id": "What's your order ID?",
			"email":    "What email is the order under, {{order_id}}?",
		},
	}
}

func TestMissing_ReturnsRequiredSlotsByPriority(t *testing.T) {
	intent := orderLookupIntent()
	missing := Missing(intent, map[string]any{})
	if len(missing) != 2 || missing[0] != "order_id" || missing[1] != "email" {
		t.Fatalf("unexpected order: %v", missing)
	}
}

func TestMissing_ExcludesAlreadyFilledSlots(t *testing.T) {
	intent := orderLookupIntent()
	missing := Missing(intent, map[string]any{"order_id": "AB-1234"})
	if len(missing) != 1 || missing[0] != "email" {
		t.Fatalf("unexpected missing: %v", missing)
	}
}

func TestFill_RegexExtractsOrderIDThenAsksNextQuestion(t *testing.T) {
	f := New(nil, 3)
	intent := orderLookupIntent()
	session := &models.Session{ID: "s1"}

	result, err := f.Fill(context.Background(), intent, "my order is AB-1234", session)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if result.Complete {
		t.Fatal("expected incomplete result, email still missing")
	}
	if result.SlotAsked != "email" {
		t.Fatalf("SlotAsked = %q, want email", result.SlotAsked)
	}
	if session.Slots["order_id"] != "AB-1234" {
		t.Fatalf("order_id = %v, want AB-1234", session.Slots["order_id"])
	}
	if result.Question == "" {
		t.Fatal("expected a rendered question")
	}
}

func TestFill_CompletesWhenAllSlotsResolved(t *testing.T) {
	f := New(nil, 3)
	intent := orderLookupIntent()
	session := &models.Session{ID: "s1"}

	_, err := f.Fill(context.Background(), intent, "order AB-1234, email foo@bar.com", session)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	result, err := f.Fill(context.Background(), intent, "", session)
	if err != nil {
		t.Fatalf("Fill (second call): %v", err)
	}
	if !result.Complete {
		t.Fatalf("expected complete, got question %q", result.Question)
	}
}

func TestFill_FallsBackToLLMWhenRegexMisses(t *testing.T) {
	client := &fakeClient{text: `{"value": "somebody@example.com"}`}
	f := New(client, 3)
	intent := models.IntentDefinition{
		ID:            "contact.update",
		RequiredSlots: []string{"email"},
	}
	session := &models.Session{ID: "s1"}

	result, err := f.Fill(context.Background(), intent, "reach me at my work address", session)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if !result.Complete {
		t.Fatalf("expected complete via LLM extraction, got question %q", result.Question)
	}
	if session.Slots["email"] != "somebody@example.com" {
		t.Fatalf("email = %v, want somebody@example.com", session.Slots["email"])
	}
}

func TestFill_FallsBackToEntityCacheWhenLLMMisses(t *testing.T) {
	client := &fakeClient{text: `{"value": null}`}
	f := New(client, 3)
	intent := models.IntentDefinition{
		ID:            "contact.update",
		RequiredSlots: []string{"email"},
	}
	session := &models.Session{
		ID:      "s1",
		Context: models.SessionContext{EntityCache: map[string]any{"email": "cached@example.com"}},
	}

	result, err := f.Fill(context.Background(), intent, "no email mentioned here", session)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if !result.Complete {
		t.Fatalf("expected complete via entity cache, got question %q", result.Question)
	}
	if session.Slots["email"] != "cached@example.com" {
		t.Fatalf("email = %v, want cached@example.com", session.Slots["email"])
	}
}

func TestFill_ExceedsMaxAttemptsReturnsValidationError(t *testing.T) {
	f := New(nil, 2)
	intent := models.IntentDefinition{ID: "contact.update", RequiredSlots: []string{"email"}}
	session := &models.Session{ID: "s1"}

	for i := 0; i < 2; i++ {
		if _, err := f.Fill(context.Background(), intent, "no match here", session); err != nil {
			t.Fatalf("Fill attempt %d: %v", i, err)
		}
	}
	if _, err := f.Fill(context.Background(), intent, "still no match", session); err == nil {
		t.Fatal("expected ValidationError after exceeding max attempts, got nil")
	}
}

func TestFill_SuccessfulExtractionResetsAttemptCounter(t *testing.T) {
	f := New(nil, 2)
	intent := models.IntentDefinition{ID: "order.status", RequiredSlots: []string{"order_id"}}
	session := &models.Session{ID: "s1"}

	if _, err := f.Fill(context.Background(), intent, "no match", session); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	result, err := f.Fill(context.Background(), intent, "order AB-9999", session)
	if err != nil {
		t.Fatalf("second attempt should succeed, not exceed budget: %v", err)
	}
	if !result.Complete {
		t.Fatal("expected complete after successful extraction")
	}
	if len(session.Context.SlotAttempts) != 0 {
		t.Fatalf("expected attempt counter cleared on success, got %v", session.Context.SlotAttempts)
	}
}

func TestRenderQuestion_FillsKnownSlotPlaceholder(t *testing.T) {
	intent := orderLookupIntent()
	q := renderQuestion(intent, "email", map[string]any{"order_id": "AB-1234"})
	want := "What email is the order under, AB-1234?"
	if q != want {
		t.Fatalf("question = %q, want %q", q, want)
	}
}

func TestRenderQuestion_FallsBackToGenericWhenNoTemplate(t *testing.T) {
	intent := models.IntentDefinition{ID: "x"}
	q := renderQuestion(intent, "phone", nil)
	if q != "Could you provide phone?" {
		t.Fatalf("question = %q", q)
	}
}

func TestNormalize_LowercasesEmailAndUppercasesOrderID(t *testing.T) {
	if got := normalize("email", "  Foo@Bar.COM "); got != "foo@bar.com" {
		t.Fatalf("email = %q", got)
	}
	if got := normalize("order_id", "ab-1234"); got != "AB-1234" {
		t.Fatalf("order_id = %q", got)
	}
}
