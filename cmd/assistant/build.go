package main

import (
	"context"
	"fmt"
	"os"

	"github.com/haasonsaas/assistant-core/internal/circuitbreaker"
	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/internal/decomposer"
	"github.com/haasonsaas/assistant-core/internal/embeddingstore"
	"github.com/haasonsaas/assistant-core/internal/intentcatalog"
	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/internal/llm/embeddings"
	"github.com/haasonsaas/assistant-core/internal/observability"
	"github.com/haasonsaas/assistant-core/internal/orchestrator"
	"github.com/haasonsaas/assistant-core/internal/pipeline"
	"github.com/haasonsaas/assistant-core/internal/progress"
	"github.com/haasonsaas/assistant-core/internal/ragclassifier"
	"github.com/haasonsaas/assistant-core/internal/sessionstore"
	"github.com/haasonsaas/assistant-core/internal/slotfiller"
	"github.com/haasonsaas/assistant-core/internal/toolregistry"
	"github.com/haasonsaas/assistant-core/internal/toolrouter"
	"github.com/haasonsaas/assistant-core/internal/voting"
)

// loadConfig reads and validates the application config at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// buildLLMRegistry constructs one llm.Client per configured provider,
// reading API keys from the provider's config entry or, if blank, the
// provider's conventional environment variable (spec.md §6 "environment
// inputs").
func buildLLMRegistry(cfg config.LLMConfig) (*llm.Registry, error) {
	clients := map[string]llm.Client{}

	for name, provider := range cfg.Providers {
		client, err := buildLLMClient(context.Background(), name, provider)
		if err != nil {
			slogWarn("skipping LLM provider", "provider", name, "error", err)
			continue
		}
		clients[name] = client
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM providers could be constructed from config")
	}
	return llm.NewRegistry(cfg.DefaultProvider, cfg.FallbackChain, clients), nil
}

func buildLLMClient(ctx context.Context, name string, provider config.LLMProviderConfig) (llm.Client, error) {
	switch name {
	case "anthropic":
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:       firstNonEmpty(provider.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL:      provider.BaseURL,
			DefaultModel: provider.DefaultModel,
		})
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:       firstNonEmpty(provider.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:      provider.BaseURL,
			DefaultModel: provider.DefaultModel,
		})
	case "gemini":
		return llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:       firstNonEmpty(provider.APIKey, os.Getenv("GEMINI_API_KEY")),
			DefaultModel: provider.DefaultModel,
		})
	case "bedrock":
		return llm.NewBedrockClient(ctx, llm.BedrockConfig{
			Region:          os.Getenv("AWS_REGION"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			DefaultModel:    provider.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func slogWarn(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "warn: %s %v\n", msg, args)
}

// buildEmbedder constructs the embeddings.Provider named by
// cfg.EmbeddingProvider, sourcing its API key the same way buildLLMClient
// does for LLM providers.
func buildEmbedder(cfg config.ClassifierConfig) (embeddings.Provider, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = "openai"
	}
	apiKeyEnv := map[string]string{"openai": "OPENAI_API_KEY", "gemini": "GEMINI_API_KEY"}[provider]
	return embeddings.New(embeddings.Config{
		Provider: provider,
		APIKey:   os.Getenv(apiKeyEnv),
	})
}

// buildClassifier assembles an empty EmbeddingStore-backed RagClassifier
// from config alone (classify is a read-only debugging command, so it
// loads the intent catalog but never touches SessionStore/Orchestrator).
func buildClassifier(cfg *config.Config, registry *llm.Registry) (*ragclassifier.Classifier, *intentcatalog.Catalog, error) {
	catalog, err := intentcatalog.Load(cfg.Classifier.CatalogPath, cfg.Classifier.WatchCatalog)
	if err != nil {
		return nil, nil, fmt.Errorf("loading intent catalog: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Classifier)
	if err != nil {
		return nil, nil, fmt.Errorf("building embedder: %w", err)
	}

	client, ok := registry.Get(cfg.LLM.DefaultProvider)
	if !ok {
		return nil, nil, fmt.Errorf("default LLM provider %q is not configured", cfg.LLM.DefaultProvider)
	}

	store := embeddingstore.New(embedder.Dimension())
	classifier := ragclassifier.New(store, catalog, embedder, client, cfg.Classifier)
	return classifier, catalog, nil
}

// buildPipeline assembles the full C1-C10 Pipeline for serve-once/converse.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	registry, err := buildLLMRegistry(cfg.LLM)
	if err != nil {
		return nil, err
	}

	classifier, catalog, err := buildClassifier(cfg, registry)
	if err != nil {
		return nil, err
	}

	client, ok := registry.Get(cfg.LLM.DefaultProvider)
	if !ok {
		return nil, fmt.Errorf("default LLM provider %q is not configured", cfg.LLM.DefaultProvider)
	}

	var jury *voting.Engine
	if cfg.Voting.Enabled {
		jury, err = buildJury(cfg, registry, client)
		if err != nil {
			return nil, err
		}
	}

	tools, err := toolregistry.Load(cfg.Tools.RegistryPath, cfg.Tools.WatchForChanges)
	if err != nil {
		return nil, fmt.Errorf("loading tool registry: %w", err)
	}

	var sessions sessionstore.Store
	if cfg.Session.Backend == "sql" {
		sessions, err = sessionstore.NewSQLStore(sessionstore.SQLConfigFromAppConfig(cfg.Database, cfg.Session))
	} else {
		sessions = sessionstore.NewMemoryStore(sessionstore.MemoryConfigFromAppConfig(cfg.Session))
	}
	if err != nil {
		return nil, fmt.Errorf("building session store: %w", err)
	}

	slots := slotfiller.New(client, 3)
	decompose := decomposer.New(client, tools, cfg.Decomposer.MaxSubtasks)

	breakers := buildCircuitBreakerRegistry(cfg)
	router := toolrouter.New(tools, breakers, cfg.Orchestrator.DefaultToolTimeout)

	metrics := observability.NewMetrics()
	tracker := progress.New(metrics)
	tracer, shutdown := buildTracer(cfg.Observability.Tracing)
	logger := buildLogger(cfg.Logging)

	orch := orchestrator.New(router, tools, tracker, metrics, tracer, logger, orchestrator.Config{
		MaxParallelTasks:  cfg.Orchestrator.MaxParallelTasks,
		RollbackOnFailure: true,
	})

	return pipeline.New(classifier, jury, catalog, sessions, slots, decompose, orch, tracker, *cfg, tracer, shutdown, logger), nil
}

// buildLogger constructs the pipeline's structured logger from
// cfg.Logging. Output resolves "stdout"/"stderr"/blank to the matching
// stream; anything else is treated as a file path, appended to (truncating
// only if it doesn't yet exist), matching the teacher's own rotation-path
// convention for file-backed logs.
func buildLogger(cfg config.LoggingConfig) *observability.Logger {
	var out *os.File
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slogWarn("falling back to stderr: could not open log output", "path", cfg.Output, "error", err)
			out = os.Stderr
		} else {
			out = f
		}
	}

	return observability.NewLogger(observability.LogConfig{
		Level:          cfg.Level,
		Format:         cfg.Format,
		Output:         out,
		AddSource:      cfg.AddSource,
		RedactPatterns: cfg.RedactPatterns,
	})
}

// buildTracer constructs the pipeline's OpenTelemetry tracer. When tracing
// is disabled in config, the endpoint is forced blank so NewTracer falls
// back to its no-op exporter rather than dialing anything.
func buildTracer(cfg config.TracingConfig) (*observability.Tracer, func(context.Context) error) {
	if !cfg.Enabled {
		cfg.Endpoint = ""
	}
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:    firstNonEmpty(cfg.ServiceName, "assistant-core"),
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Endpoint,
		SamplingRate:   cfg.SamplingRate,
		Attributes:     cfg.Attributes,
		EnableInsecure: cfg.Insecure,
	})
}

// buildCircuitBreakerRegistry returns nil when circuit breaking is
// disabled in config; toolrouter.New falls back to a registry built from
// its own defaults in that case, so a disabled config still dispatches
// through a (lenient, default-threshold) breaker rather than bypassing the
// mechanism entirely.
func buildCircuitBreakerRegistry(cfg *config.Config) *circuitbreaker.Registry {
	if !cfg.Orchestrator.CircuitBreakerEnabled {
		return nil
	}
	return circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.Orchestrator.FailureThreshold,
		SuccessThreshold: cfg.Orchestrator.SuccessThreshold,
		Timeout:          cfg.Orchestrator.OpenTimeout,
	})
}

func buildJury(cfg *config.Config, registry *llm.Registry, fallback llm.Client) (*voting.Engine, error) {
	entries, err := voting.LoadRoster(cfg.Voting.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("loading jury roster: %w", err)
	}

	var jurors []voting.Juror
	for _, entry := range entries {
		client, ok := registry.Get(entry.Provider)
		if !ok {
			slogWarn("skipping juror: provider not configured", "juror", entry.ID, "provider", entry.Provider)
			continue
		}
		juror, err := voting.NewJuror(entry, client)
		if err != nil {
			slogWarn("skipping juror", "juror", entry.ID, "error", err)
			continue
		}
		jurors = append(jurors, juror)
	}
	if len(jurors) == 0 {
		return nil, fmt.Errorf("voting is enabled but no juror could be constructed")
	}

	primary, err := voting.NewJuror(voting.RosterEntry{ID: "primary", Provider: cfg.LLM.DefaultProvider}, fallback)
	if err != nil {
		return nil, err
	}
	return voting.New(jurors, primary, cfg.Voting), nil
}
