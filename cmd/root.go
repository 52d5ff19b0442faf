// Package cmd wires the relaybase binaries: the API gateway, the
// background worker, and the migration runner.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/relaybase/relaybase/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "relaybase",
	Short: "relaybase - AI app backend gateway",
	Long: `relaybase relays chat completions to LLM providers behind one
OpenAI-shaped HTTP API, verifies identity-provider tokens, and stores
conversation history in PostgreSQL.

Optional modules add a Redis task queue, a pgvector RAG store, and a
local Ollama model runner.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger. Production gets JSON output for
// log shippers; everything else stays human-readable text.
func newLogger(environment string) log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{
		Level: level,
		JSON:  environment == "production",
	})
}
