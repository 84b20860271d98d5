// Package main provides the CLI entry point for assistant-core.
//
// assistant-core is an intent-resolution and action-orchestration engine:
// RAG intent classification, MoE jury voting, multi-turn slot-filling
// session management, LLM-driven subtask decomposition and parallel tool
// dispatch. This binary is a thin harness over internal/pipeline — no
// HTTP/gRPC surface is exposed here; that is left to an out-of-scope
// channel gateway.
//
// # Basic usage
//
//	assistant classify "what's the weather in Madrid"
//	assistant serve-once "remind me to call mom tomorrow at 9am"
//	assistant converse
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "assistant",
		Short:        "assistant-core — intent resolution and action orchestration",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "assistant.yaml", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildClassifyCmd(&configPath),
		buildServeOnceCmd(&configPath),
		buildConverseCmd(&configPath),
	)
	return rootCmd
}
