package models

import "time"

// Transport identifies how a ToolAction is invoked.
type Transport string

const (
	TransportHTTP  Transport = "http"
	TransportStdio Transport = "stdio"
)

// RetryPolicy configures exponential backoff retries for one ToolAction.
type RetryPolicy struct {
	Max     int           `json:"max" yaml:"max"`
	Backoff float64        `json:"backoff" yaml:"backoff"`
	MinMS   int           `json:"min_ms" yaml:"min_ms"`
	MaxMS   int           `json:"max_ms" yaml:"max_ms"`
}

// AuthRef describes how a ToolAction authenticates without ever carrying an
// inline secret: the field names an environment variable that is resolved
// at dispatch time.
type AuthRef struct {
	Type string `json:"type,omitempty" yaml:"type"` // bearer, basic, oauth2, jwt, none
	Env  string `json:"env,omitempty" yaml:"env"`
}

// ToolAction is a declarative endpoint descriptor for one plugin action,
// addressed as "plugin.action".
type ToolAction struct {
	Name         string          `json:"name" yaml:"name"`
	Transport    Transport       `json:"transport" yaml:"transport"`
	Endpoint     string          `json:"endpoint" yaml:"endpoint"`
	Method       string          `json:"method,omitempty" yaml:"method"`
	InputSchema  map[string]any  `json:"input_schema" yaml:"input_schema"`
	OutputSchema map[string]any  `json:"output_schema" yaml:"output_schema"`
	TimeoutMS    int             `json:"timeout_ms" yaml:"timeout_ms"`
	Retry        RetryPolicy     `json:"retry" yaml:"retry"`
	Auth         AuthRef         `json:"auth,omitempty" yaml:"auth"`
	Idempotent   bool            `json:"idempotent,omitempty" yaml:"idempotent"`
	Compensation string          `json:"compensation,omitempty" yaml:"compensation"`
}

// ResponseType classifies a normalized ToolResponse payload.
type ResponseType string

const (
	ResponseText   ResponseType = "text"
	ResponseImage  ResponseType = "image"
	ResponseAudio  ResponseType = "audio"
	ResponseResult ResponseType = "tool_result"
)

// ToolResponse is the unified shape every tool dispatch is normalized into,
// regardless of transport.
type ToolResponse struct {
	Type     ResponseType   `json:"type"`
	Content  any            `json:"content"`
	MimeType string         `json:"mime_type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Stream   bool           `json:"stream"`
}

// ToolInvocation is the wire envelope sent to a ToolRouter (spec.md §6).
type ToolInvocation struct {
	Action   string                `json:"action"`
	Input    map[string]any        `json:"input"`
	Context  ToolInvocationContext `json:"context"`
	Response ToolResponseOptions   `json:"response"`
}

// ToolInvocationContext carries correlation data for one dispatch.
type ToolInvocationContext struct {
	SessionID string `json:"session_id"`
	Locale    string `json:"locale,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// ToolResponseOptions controls the shape of the expected response.
type ToolResponseOptions struct {
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

// ToolMetricsSnapshot is a point-in-time view of dispatch health for one
// (plugin, action) pair, surfaced by the circuit breaker registry.
type ToolMetricsSnapshot struct {
	Plugin          string    `json:"plugin"`
	Action          string    `json:"action"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	LastStateChange time.Time `json:"last_state_change,omitempty"`
}
