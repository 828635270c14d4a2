// Package main is the askmany command line tool: a model registry, a
// prompt fan-out client, and the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "askmany",
	Short: "Send one prompt to many LLMs and compare the answers",
	Long: `askmany fans a single prompt out to every configured language model
at once, reports per-model progress while requests are in flight, and
prints the answers side by side.

The model registry, prompt history and results live in an in-memory or
Postgres store. API keys are resolved from environment variables or
HashiCorp Vault.

Examples:
  # Query every active model
  askmany ask "Explain the CAP theorem in two sentences"

  # Query specific models with overrides and keep the answers
  askmany ask --models 1,3 --max-tokens 500 --save "Draft a release note"

  # Manage the registry
  askmany models list
  askmany models add --name gpt-4o-mini \
    --endpoint https://api.openai.com/v1/chat/completions \
    --credential-key OPENAI_API_KEY

  # Rewrite a prompt before sending it
  askmany enhance --type code "write a csv parser"

  # Run the HTTP API
  askmany serve --config config.yaml`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file (default: built-in defaults plus environment)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: json, text")
}
