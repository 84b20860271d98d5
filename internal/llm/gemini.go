package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiClient. ProjectID/Location select Vertex
// AI backend routing instead of the public Gemini API, mirroring the same
// distinction the embeddings provider makes.
type GeminiConfig struct {
	APIKey       string
	ProjectID    string
	Location     string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// GeminiClient is a non-streaming Client backed by Gemini. It has no direct
// precedent in the teacher repo's provider set, which only declared config
// fields for a Gemini/Vertex path and never implemented one; this adapter
// follows the same request/response shape as AnthropicClient and
// OpenAIClient for consistency within this package.
type GeminiClient struct {
	client       *genai.Client
	retry        retrier
	defaultModel string
}

var _ Client = (*GeminiClient)(nil)

// NewGeminiClient builds a GeminiClient from config.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" && cfg.ProjectID == "" {
		return nil, errors.New("llm: gemini requires an API key or a project id")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-1.5-flash"
	}

	genaiCfg := &genai.ClientConfig{APIKey: cfg.APIKey}
	if cfg.ProjectID != "" {
		genaiCfg.Backend = genai.BackendVertexAI
		genaiCfg.Project = cfg.ProjectID
		genaiCfg.Location = cfg.Location
	}

	client, err := genai.NewClient(context.Background(), genaiCfg)
	if err != nil {
		return nil, fmt.Errorf("llm: gemini: %w", err)
	}

	return &GeminiClient{
		client:       client,
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (c *GeminiClient) Name() string { return "gemini" }

// Complete sends req and returns the full response, retrying transient
// failures with linear backoff.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	return c.retry.Do(ctx, func() (Response, error) {
		return c.complete(ctx, req)
	})
}

func (c *GeminiClient) complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	var prompt strings.Builder
	if req.System != "" {
		prompt.WriteString(req.System)
		prompt.WriteString("\n\n")
	}
	for _, m := range req.Messages {
		prompt.WriteString(m.Role)
		prompt.WriteString(": ")
		prompt.WriteString(m.Content)
		prompt.WriteString("\n")
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt.String(), genai.RoleUser)}
	result, err := c.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini: %w", err)
	}

	text := result.Text()
	var inputTokens, outputTokens int
	if result.UsageMetadata != nil {
		inputTokens = int(result.UsageMetadata.PromptTokenCount)
		outputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	return Response{Text: text, InputTokens: inputTokens, OutputTokens: outputTokens}, nil
}
