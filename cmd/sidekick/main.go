// Package main provides the sidekick CLI, a terminal-resident coding agent
// scoped to one workspace.
//
// # Basic Usage
//
// Run a single request:
//
//	sidekick run "replace bar with baz in a.txt"
//
// Start an interactive chat:
//
//	sidekick chat
//
// List the registered tools:
//
//	sidekick tools
//
// # Environment Variables
//
//   - SIDEKICK_WORKSPACE: workspace root (default: current directory)
//   - SIDEKICK_LLM_BASE_URL: OpenAI-compatible endpoint for local servers
//   - SIDEKICK_LLM_API_KEY: model API key
//   - SIDEKICK_LLM_MODEL: model id
//   - SIDEKICK_LLM_API_MODE: "openai" (default) or "anthropic"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sidekick",
		Short: "Sidekick - local coding agent",
		Long: `Sidekick is a terminal-resident coding agent. It plans steps for a
request, calls a model, and drives local tools (file I/O, search, patch,
shell) inside a single workspace, with a policy gate and a full audit trail.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .sidekick/config.yaml, then ~/.config/sidekick/config.yaml)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildChatCmd(),
		buildToolsCmd(),
	)
	return rootCmd
}
