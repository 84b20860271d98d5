// Package toolrouter implements the generic tool-dispatch surface the
// Orchestrator (§4.9) calls through: schema-validate a ToolAction's input,
// dispatch it over the transport the action declares, schema-validate and
// normalize the response, all behind a per-(plugin, action) circuit
// breaker and retry policy.
package toolrouter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/circuitbreaker"
	"github.com/haasonsaas/assistant-core/internal/retry"
	"github.com/haasonsaas/assistant-core/internal/toolregistry"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Resolver is the subset of toolregistry.Registry a Router needs.
type Resolver interface {
	Resolve(qualifiedName string) (models.ToolAction, bool)
}

var _ Resolver = (*toolregistry.Registry)(nil)

// Router dispatches ToolInvocations per spec.md §4.9/§6.
type Router struct {
	tools          Resolver
	client         *http.Client
	breakers       *circuitbreaker.Registry
	schemas        *schemaCache
	defaultTimeout time.Duration
}

// New builds a Router. defaultTimeout applies to actions that don't
// declare their own timeout_ms.
func New(tools Resolver, breakers *circuitbreaker.Registry, defaultTimeout time.Duration) *Router {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{})
	}
	return &Router{
		tools:          tools,
		client:         &http.Client{},
		breakers:       breakers,
		schemas:        newSchemaCache(),
		defaultTimeout: defaultTimeout,
	}
}

// Dispatch resolves qualifiedAction, validates input, invokes it (retried
// and circuit-broken per its own policy), validates the response, and
// returns the normalized ToolResponse.
func (r *Router) Dispatch(ctx context.Context, qualifiedAction string, input map[string]any) (models.ToolResponse, error) {
	action, ok := r.tools.Resolve(qualifiedAction)
	if !ok {
		return models.ToolResponse{}, &assistanterrors.DependencyError{
			SubtaskID: qualifiedAction,
			Reason:    "action not found in tool registry",
		}
	}

	if err := r.schemas.validate(qualifiedAction+":input", action.InputSchema, input); err != nil {
		return models.ToolResponse{}, &assistanterrors.ValidationError{Field: qualifiedAction, Message: err.Error()}
	}

	timeout := r.defaultTimeout
	if action.TimeoutMS > 0 {
		timeout = time.Duration(action.TimeoutMS) * time.Millisecond
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	breaker := r.breakers.Get(circuitbreaker.Key(pluginOf(qualifiedAction), actionOf(qualifiedAction)))

	var response models.ToolResponse
	retryCfg := retryConfig(action)
	result := retry.Do(dispatchCtx, retryCfg, func() error {
		resp, err := circuitbreaker.ExecuteWithResult(breaker, dispatchCtx, func(ctx context.Context) (models.ToolResponse, error) {
			return httpInvoke(ctx, r.client, action, input)
		})
		if err != nil {
			if !retryableDispatchError(err, action.Idempotent) {
				return retry.Permanent(err)
			}
			return err
		}
		response = resp
		return nil
	})

	if result.Err != nil {
		if dispatchCtx.Err() != nil {
			return models.ToolResponse{}, &assistanterrors.TimeoutError{Operation: qualifiedAction, Cause: result.Err}
		}
		return models.ToolResponse{}, fmt.Errorf("toolrouter: dispatching %s: %w", qualifiedAction, result.Err)
	}

	if err := r.schemas.validate(qualifiedAction+":output", action.OutputSchema, response.Content); err != nil {
		return models.ToolResponse{}, &assistanterrors.ValidationError{Field: qualifiedAction, Message: err.Error()}
	}
	return response, nil
}

// retryableDispatchError reports whether err should be retried: circuit
// breaker's ErrOpen never is, a 4xx statusError never is, a 5xx/429
// statusError only if the action is declared idempotent — spec.md §4.9's
// "idempotent retries only".
func retryableDispatchError(err error, idempotent bool) bool {
	if err == circuitbreaker.ErrOpen {
		return false
	}
	if se, ok := err.(*statusError); ok {
		return idempotent && se.retryable()
	}
	return idempotent
}

func retryConfig(action models.ToolAction) retry.Config {
	cfg := retry.Config{
		MaxAttempts:  action.Retry.Max + 1,
		InitialDelay: time.Duration(action.Retry.MinMS) * time.Millisecond,
		MaxDelay:     time.Duration(action.Retry.MaxMS) * time.Millisecond,
		Factor:       action.Retry.Backoff,
		Jitter:       true,
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return cfg
}

func pluginOf(qualifiedAction string) string {
	plugin, _, ok := toolregistry.SplitQualifiedName(qualifiedAction)
	if !ok {
		return qualifiedAction
	}
	return plugin
}

func actionOf(qualifiedAction string) string {
	_, action, ok := toolregistry.SplitQualifiedName(qualifiedAction)
	if !ok {
		return ""
	}
	return action
}
