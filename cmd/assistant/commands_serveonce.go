package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// buildServeOnceCmd creates the "serve-once" command: it runs the full
// Pipeline (classify -> vote -> slot-fill -> decompose -> orchestrate) for a
// single turn in a brand-new session, and prints the ConversationMessageResponse.
func buildServeOnceCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-once <utterance>",
		Short: "Process a single conversational turn in a fresh session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeOnce(cmd, *configPath, args[0])
		},
	}
	return cmd
}

func runServeOnce(cmd *cobra.Command, configPath, text string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipe.Close(cmd.Context())

	resp, err := pipe.HandleMessage(cmd.Context(), models.ClassificationRequest{Text: text})
	if err != nil {
		return fmt.Errorf("serve-once: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
