// Package main provides the bioview command line: the HTTP API server plus
// commands for running phylogeny jobs and looking up structures directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/bioview/internal/app"
	"github.com/jonathan/bioview/internal/config"
	"github.com/jonathan/bioview/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "bioview",
	Short: "Phylogeny job orchestration and structure lookup",
	Long: `bioview submits sequence sets to EBI Clustal Omega and Simple Phylogeny, tracks the
remote jobs with opaque job tokens, and resolves PDB and AlphaFold structure metadata.

Configuration is read from the environment, then from an optional JSON or YAML file
given with --config, then from built-in defaults.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print formatted progress to stderr")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// buildApp loads configuration and wires the services. The caller closes the app.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, *cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

// printer returns a verbose printer on stderr, or nil when verbose output is off.
func printer(cmd *cobra.Command, cfg config.Config) *observability.Printer {
	if !cfg.Verbose {
		return nil
	}
	return observability.NewPrinter(cmd.ErrOrStderr())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}
