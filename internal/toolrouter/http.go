package toolrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// httpInvoke performs one ToolAction's HTTP dispatch: marshal input, POST
// (or action.Method) it to action.Endpoint, decode the JSON body into a
// ToolResponse. Grounded on the same http.NewRequestWithContext/client.Do
// shape used for outbound tool calls elsewhere in the stack.
func httpInvoke(ctx context.Context, client *http.Client, action models.ToolAction, input map[string]any) (models.ToolResponse, error) {
	method := action.Method
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(input)
	if err != nil {
		return models.ToolResponse{}, fmt.Errorf("toolrouter: marshaling input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, action.Endpoint, bytes.NewReader(body))
	if err != nil {
		return models.ToolResponse{}, fmt.Errorf("toolrouter: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return models.ToolResponse{}, fmt.Errorf("toolrouter: dispatching to %s: %w", action.Endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ToolResponse{}, fmt.Errorf("toolrouter: reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return models.ToolResponse{}, &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return decodeResponse(respBody)
}

// statusError reports a non-2xx HTTP response from a tool endpoint. 5xx
// (and 429) are treated as retryable by the caller; 4xx otherwise are not.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tool endpoint returned status %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// decodeResponse normalizes a tool's raw JSON body into a ToolResponse. A
// body already shaped like {"type":..., "content":...} is used as-is;
// anything else is wrapped as a single "text" response with the decoded
// value as content, so tools that just return a bare JSON payload still
// normalize cleanly (spec.md §4.9's "normalisation of response to
// ToolResponse").
func decodeResponse(body []byte) (models.ToolResponse, error) {
	if len(body) == 0 {
		return models.ToolResponse{Type: models.ResponseText}, nil
	}

	var shaped struct {
		Type     models.ResponseType `json:"type"`
		Content  any                 `json:"content"`
		MimeType string              `json:"mime_type"`
		Metadata map[string]any      `json:"metadata"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil && shaped.Type != "" {
		return models.ToolResponse{
			Type:     shaped.Type,
			Content:  shaped.Content,
			MimeType: shaped.MimeType,
			Metadata: shaped.Metadata,
		}, nil
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return models.ToolResponse{}, fmt.Errorf("toolrouter: decoding response: %w", err)
	}
	return models.ToolResponse{Type: models.ResponseText, Content: generic}, nil
}
