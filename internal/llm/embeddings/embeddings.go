// Package embeddings provides the embedding provider interface EmbeddingStore
// depends on, plus OpenAI/Gemini/Ollama implementations.
package embeddings

import "context"

// Provider embeds text into fixed-dimension vectors.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one round trip.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider identifier ("openai", "gemini", "ollama").
	Name() string

	// Dimension returns the embedding vector length this provider produces.
	Dimension() int

	// MaxBatchSize returns the maximum texts accepted per EmbedBatch call.
	MaxBatchSize() int
}

// Config is the shared configuration surface for every provider; each
// implementation reads only the fields relevant to it.
type Config struct {
	Provider string `yaml:"provider"` // openai, gemini, ollama
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	OllamaURL string `yaml:"ollama_url"`

	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
}

// New constructs the Provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg)
	case "gemini":
		return NewGeminiProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	default:
		return nil, &unsupportedProviderError{cfg.Provider}
	}
}

type unsupportedProviderError struct{ name string }

func (e *unsupportedProviderError) Error() string {
	return "unsupported embedding provider: " + e.name
}
