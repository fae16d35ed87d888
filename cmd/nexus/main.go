package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nexus/internal/app"
	"nexus/internal/config"
	"nexus/internal/logger"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errIngestFailures) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "nexus",
		Short: "Ingest documents into a vector store and answer questions from them",
		Long: `Nexus extracts, classifies, chunks and embeds documents into a vector store,
then answers questions grounded on the most similar chunks.

Examples:
  # Seed the knowledge base from a folder
  nexus ingest ./references --ext .md,.pdf

  # Show the context a question would be answered from
  nexus search "refund policy"

  # Ask a single question, or open the chat UI
  nexus ask "How long do refunds take?"
  nexus chat`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (defaults to ./config.yaml or ~/.config/nexus/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		ingestCMD(opts),
		searchCMD(opts),
		askCMD(opts),
		chatCMD(opts),
		serveCMD(opts),
		migrateCMD(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.AppConfig, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func (o *rootOptions) logger(cfg *config.AppConfig) (*zap.Logger, error) {
	level := cfg.Log.Level
	if o.verbose {
		level = "debug"
	}
	return logger.New(level, cfg.Log.Format)
}

// build loads config, the logger and the pipeline. The caller closes the app.
func (o *rootOptions) build(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := o.logger(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, log)
}
