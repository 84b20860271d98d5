package toolrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/assistant-core/internal/circuitbreaker"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

type staticResolver struct {
	actions map[string]models.ToolAction
}

func (r *staticResolver) Resolve(name string) (models.ToolAction, bool) {
	a, ok := r.actions[name]
	return a, ok
}

func TestDispatch_SuccessNormalizesPlainJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"temp_c": 21})
	}))
	defer server.Close()

	resolver := &staticResolver{actions: map[string]models.ToolAction{
		"weather.query": {Name: "weather.query", Endpoint: server.URL, Method: http.MethodPost},
	}}
	router := New(resolver, nil, time.Second)

	resp, err := router.Dispatch(context.Background(), "weather.query", map[string]any{"location": "Madrid"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Type != models.ResponseText {
		t.Fatalf("expected text response, got %q", resp.Type)
	}
}

func TestDispatch_UnknownActionReturnsDependencyError(t *testing.T) {
	router := New(&staticResolver{actions: map[string]models.ToolAction{}}, nil, time.Second)
	_, err := router.Dispatch(context.Background(), "missing.tool", nil)
	if err == nil {
		t.Fatal("expected error for unresolved action")
	}
}

func TestDispatch_InputFailsSchemaValidation(t *testing.T) {
	resolver := &staticResolver{actions: map[string]models.ToolAction{
		"order.lookup": {
			Name:     "order.lookup",
			Endpoint: "http://unused.invalid",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"order_id"},
			},
		},
	}}
	router := New(resolver, nil, time.Second)

	_, err := router.Dispatch(context.Background(), "order.lookup", map[string]any{})
	if err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestDispatch_RetriesIdempotentActionOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	resolver := &staticResolver{actions: map[string]models.ToolAction{
		"order.lookup": {
			Name:       "order.lookup",
			Endpoint:   server.URL,
			Idempotent: true,
			Retry:      models.RetryPolicy{Max: 3, Backoff: 1.5, MinMS: 1, MaxMS: 5},
		},
	}}
	router := New(resolver, nil, time.Second)

	_, err := router.Dispatch(context.Background(), "order.lookup", map[string]any{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDispatch_NonIdempotentActionDoesNotRetry5xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resolver := &staticResolver{actions: map[string]models.ToolAction{
		"payment.charge": {
			Name:       "payment.charge",
			Endpoint:   server.URL,
			Idempotent: false,
			Retry:      models.RetryPolicy{Max: 3, Backoff: 1.5, MinMS: 1, MaxMS: 5},
		},
	}}
	router := New(resolver, nil, time.Second)

	_, err := router.Dispatch(context.Background(), "payment.charge", map[string]any{})
	if err == nil {
		t.Fatal("expected dispatch to fail")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt for non-idempotent action, got %d", got)
	}
}

func TestDispatch_OpenCircuitShortCircuitsWithoutCallingEndpoint(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := &staticResolver{actions: map[string]models.ToolAction{
		"flaky.tool": {Name: "flaky.tool", Endpoint: server.URL},
	}}
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 1})
	router := New(resolver, breakers, time.Second)

	_, _ = router.Dispatch(context.Background(), "flaky.tool", map[string]any{})
	callsAfterFirst := atomic.LoadInt32(&calls)

	_, err := router.Dispatch(context.Background(), "flaky.tool", map[string]any{})
	if err == nil {
		t.Fatal("expected second dispatch to fail once circuit opens")
	}
	if atomic.LoadInt32(&calls) != callsAfterFirst {
		t.Fatalf("expected open circuit to short-circuit without another HTTP call, calls went from %d to %d", callsAfterFirst, atomic.LoadInt32(&calls))
	}
}
