// Package config defines the root application configuration and its
// recursive-include loader using $include + env-var-expansion +
// strict-YAML-decode, re-pointed at this engine's own sections.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration for the assistant core.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Voting        VotingConfig        `yaml:"voting"`
	Session       SessionConfig       `yaml:"session"`
	Decomposer    DecomposerConfig    `yaml:"decomposer"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Tools         ToolsConfig         `yaml:"tools"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the process's own listen addresses.
type ServerConfig struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the SQL-backed session store. Only
// "postgres://"/"postgresql://" URLs resolve to a registered driver
// (lib/pq); see internal/sessionstore.driverName.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ClassifierConfig configures RagClassifier (spec.md §4.3).
type ClassifierConfig struct {
	// EmbeddingProvider selects the embeddings.Provider implementation:
	// "openai", "gemini", "ollama".
	EmbeddingProvider string `yaml:"embedding_provider"`

	// CatalogPath points at the declarative intent catalog document
	// (YAML or JSON5, loaded via internal/registryconfig).
	CatalogPath  string `yaml:"catalog_path"`
	WatchCatalog bool   `yaml:"watch_catalog"`

	MaxRAGExamples      int                `yaml:"max_rag_examples"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold"`
	PromptStrategy      string             `yaml:"prompt_strategy"` // adaptive|few_shot|zero_shot|chain_of_thought|expert_domain
	SignalWeights       map[string]float64 `yaml:"signal_weights"`
	Fallback            FallbackConfig     `yaml:"fallback"`
}

// FallbackConfig configures the graded fallback ladder (spec.md §4.3 step 8).
type FallbackConfig struct {
	Enabled                bool    `yaml:"enabled"`
	RelaxedSimilarityFloor float64 `yaml:"relaxed_similarity_floor"`
	GenericIntentID        string  `yaml:"generic_intent_id"`
}

// VotingConfig configures the MoE jury (spec.md §4.4).
type VotingConfig struct {
	Enabled bool     `yaml:"enabled"`
	Mode    string   `yaml:"mode"` // "parallel" | "sequential"
	Jurors  []string `yaml:"jurors"`
	// RosterPath points at the jury roster document (internal/voting.LoadRoster)
	// declaring each juror's provider/model/role/weight.
	RosterPath         string        `yaml:"roster_path"`
	MinVotes           int           `yaml:"min_votes"`
	VoteTimeout        time.Duration `yaml:"vote_timeout"`
	ConsensusMethod    string        `yaml:"consensus_method"`
	ConsensusThreshold float64       `yaml:"consensus_threshold"`
	DebateRounds       int           `yaml:"debate_rounds"`
	DebateTimeout      time.Duration `yaml:"debate_timeout"`
	ImprovementFloor   float64       `yaml:"improvement_floor"`
}

// SessionConfig configures SessionStore lifecycle (spec.md §4.6).
type SessionConfig struct {
	Backend              string        `yaml:"backend"` // "memory" | "sql"
	TTL                  time.Duration `yaml:"ttl"`
	MaxTurns             int           `yaml:"max_turns"`
	MaxHistoryMessages   int           `yaml:"max_history_messages"`
	CompressionThreshold int           `yaml:"compression_threshold"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	LRUCacheSize         int           `yaml:"lru_cache_size"`
	SnapshotRingSize     int           `yaml:"snapshot_ring_size"`
}

// DecomposerConfig configures subtask decomposition (spec.md §4.8).
type DecomposerConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxSubtasks int  `yaml:"max_subtasks"`
}

// OrchestratorConfig configures parallel execution (spec.md §4.9).
type OrchestratorConfig struct {
	MaxParallelTasks      int           `yaml:"max_parallel_tasks"`
	DefaultToolTimeout    time.Duration `yaml:"default_tool_timeout"`
	CircuitBreakerEnabled bool          `yaml:"circuit_breaker_enabled"`
	FailureThreshold      int           `yaml:"failure_threshold"`
	SuccessThreshold      int           `yaml:"success_threshold"`
	OpenTimeout           time.Duration `yaml:"open_timeout"`
	RetryMaxAttempts      int           `yaml:"retry_max_attempts"`
	RetryInitialDelay     time.Duration `yaml:"retry_initial_delay"`
	RollbackOnFailure     bool          `yaml:"rollback_on_failure"`
}

// Validate applies sanity checks and fills zero-valued durations/counts with
// defaults, so callers never need to scatter nil checks for optional fields.
func (c *Config) Validate() error {
	if c.Voting.Enabled && len(c.Voting.Jurors) == 0 {
		return fmt.Errorf("voting.enabled requires at least one juror in voting.jurors")
	}
	if c.Voting.MinVotes <= 0 {
		c.Voting.MinVotes = 1
	}
	if c.Voting.VoteTimeout <= 0 {
		c.Voting.VoteTimeout = 10 * time.Second
	}
	if c.Voting.DebateRounds < 0 {
		return fmt.Errorf("voting.debate_rounds must be >= 0")
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 30 * time.Minute
	}
	if c.Session.MaxHistoryMessages <= 0 {
		c.Session.MaxHistoryMessages = 1000
	}
	if c.Orchestrator.MaxParallelTasks <= 0 {
		c.Orchestrator.MaxParallelTasks = 8
	}
	if c.Orchestrator.DefaultToolTimeout <= 0 {
		c.Orchestrator.DefaultToolTimeout = 30 * time.Second
	}
	if c.Classifier.MaxRAGExamples <= 0 {
		c.Classifier.MaxRAGExamples = 5
	}
	if c.Classifier.ConfidenceThreshold <= 0 {
		c.Classifier.ConfidenceThreshold = 0.6
	}
	return nil
}
