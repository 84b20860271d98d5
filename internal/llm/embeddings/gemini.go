package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using Google's Gemini embedding models,
// via Vertex AI when ProjectID/Location are set, or the Gemini API otherwise.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini embedding provider.
func NewGeminiProvider(cfg Config) (*GeminiProvider, error) {
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}

	ctx := context.Background()
	clientCfg := &genai.ClientConfig{
		APIKey: cfg.APIKey,
	}
	if cfg.ProjectID != "" {
		clientCfg.Backend = genai.BackendVertexAI
		clientCfg.Project = cfg.ProjectID
		clientCfg.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding provider: %w", err)
	}

	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Dimension() int {
	switch p.model {
	case "text-embedding-004", "embedding-001":
		return 768
	default:
		return 768
	}
}

func (p *GeminiProvider) MaxBatchSize() int { return 100 }

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("gemini embedding provider: no embedding returned")
	}
	return vectors[0], nil
}

func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding provider: %w", err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}
