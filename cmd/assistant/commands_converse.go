package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// buildConverseCmd creates the "converse" command: an interactive REPL that
// drives one Pipeline across many turns, reusing the session id the first
// HandleMessage call hands back so slot-filling and history carry over.
func buildConverseCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converse",
		Short: "Start an interactive multi-turn conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConverse(cmd, *configPath)
		},
	}
	return cmd
}

func runConverse(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipe.Close(cmd.Context())

	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()
	scanner := bufio.NewScanner(in)

	var sessionID string
	fmt.Fprintln(out, "assistant-core converse — type 'exit' or 'quit' to leave")

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		resp, err := pipe.HandleMessage(cmd.Context(), models.ClassificationRequest{
			Text:      text,
			SessionID: sessionID,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		sessionID = resp.SessionID

		if resp.NextQuestion != "" {
			fmt.Fprintln(out, resp.NextQuestion)
		} else {
			fmt.Fprintln(out, resp.ResponseText)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("converse: reading input: %w", err)
	}
	return nil
}
