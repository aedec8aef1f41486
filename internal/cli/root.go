// Package cli provides the command-line interface for tla.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tla-bot/tla-go/internal/config"
	"github.com/tla-bot/tla-go/internal/db"
	"github.com/tla-bot/tla-go/internal/knowledge"
	"github.com/tla-bot/tla-go/internal/llm"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and db client
	cfg       config.Config
	logger    *slog.Logger
	closeLogs func() error
	dbClient  *db.Client

	// Lazy-initialized LLM components
	embedder *llm.Embedder
	model    *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tla",
	Short: "Automated job application runner",
	Long: `tla drives multi-step job application forms to completion: it discovers
postings, answers screening questions from a growing knowledge store with a
generative fallback, and records every attempt durably so interrupted runs
resume where they left off.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLogs = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		// Connect to database
		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		// Initialize schema
		if err := dbClient.InitSchema(ctx, cfg.EmbedDim); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Close database connection
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if closeLogs != nil {
			_ = closeLogs()
		}
	},
}

// getStore creates the knowledge store, with lazy LLM initialization.
// Commands that need the generative fallback pass requireLLM=true. The
// embedder is independent of the fallback: whenever a provider is
// configured, every published entry gets a vector, so manual entries are
// findable by the fuzzy tier just like learned ones.
func getStore(requireLLM bool) (*knowledge.Store, *llm.Model, error) {
	var err error
	if embedder == nil && cfg.EmbedProvider != "" {
		embedder, err = llm.NewEmbedder(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init embedder: %w", err)
		}
	}
	if requireLLM && model == nil {
		model, err = llm.NewModel(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init model: %w", err)
		}
	}

	var emb knowledge.Embedder
	if embedder != nil {
		emb = embedder
	}
	return knowledge.NewStore(dbClient, emb, logger), model, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetCmd)
}
