package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// buildClassifyCmd creates the "classify" debug command: it runs RagClassifier
// alone, with no SessionStore/VotingEngine/Orchestrator involved, so a config
// with only classifier+LLM+embedding sections populated is enough to use it.
func buildClassifyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <utterance>",
		Short: "Classify a single utterance and print the raw ClassificationResult",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, *configPath, args[0])
		},
	}
	return cmd
}

func runClassify(cmd *cobra.Command, configPath, text string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	registry, err := buildLLMRegistry(cfg.LLM)
	if err != nil {
		return err
	}

	classifier, _, err := buildClassifier(cfg, registry)
	if err != nil {
		return err
	}

	utterance := models.Utterance{Text: text, Timestamp: time.Now()}
	req := models.ClassificationRequest{Text: text}

	result, err := classifier.Classify(cmd.Context(), utterance, models.SessionContext{}, req)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
