package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/regchat/cli/config"
	"github.com/regchat/cli/internal/answer"
	"github.com/regchat/cli/internal/db"
	"github.com/regchat/cli/internal/embed"
	"github.com/regchat/cli/internal/index"
	"github.com/regchat/cli/internal/llm"
	"github.com/regchat/cli/internal/logger"
	"github.com/regchat/cli/internal/retrieve"
	"github.com/regchat/cli/internal/session"
	"github.com/regchat/cli/internal/websearch"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "regchat",
	Short: "Chat with building and development regulations",
	Long: `regchat indexes regulation PDFs into a Postgres vector store and
answers questions about them, citing the source pages it drew from.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; environment variables win regardless.
		_ = godotenv.Load()
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.regchat/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

func openDB(cfg *config.Config) (*db.DB, error) {
	database, err := db.New(cfg.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

func newEmbedder(cfg *config.Config) (*embed.Client, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("API key not set; export %s or add it to .env", cfg.OpenAI.APIKeyEnv)
	}
	return embed.NewClient(embed.Config{
		APIKey:     key,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.EmbeddingModel,
		Dimensions: cfg.OpenAI.EmbeddingDims,
		Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
	})
}

func newCompleter(cfg *config.Config) (*llm.Client, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("API key not set; export %s or add it to .env", cfg.OpenAI.APIKeyEnv)
	}
	return llm.NewClient(llm.Config{
		APIKey:  key,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.CompletionModel,
		Timeout: time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
	})
}

func newIndex(cfg *config.Config, database *db.DB) (*index.Store, error) {
	return index.New(database, cfg.Index.Name)
}

func newSessionStore(cfg *config.Config, database *db.DB) (session.Store, error) {
	switch cfg.Sessions.Backend {
	case "postgres":
		if database == nil {
			return nil, errors.New("postgres session backend needs a database connection")
		}
		return session.NewPostgresStore(database, 2*cfg.Processing.MaxHistoryTurns), nil
	case "memory":
		return session.NewMemoryStore(2 * cfg.Processing.MaxHistoryTurns), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %q", cfg.Sessions.Backend)
	}
}

// newEngine wires the full query path from configuration. It refuses to
// start against an index built with a different embedding model.
func newEngine(ctx context.Context, cfg *config.Config, database *db.DB, store session.Store) (*answer.Engine, *llm.Client, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	completer, err := newCompleter(cfg)
	if err != nil {
		return nil, nil, err
	}
	idx, err := newIndex(cfg, database)
	if err != nil {
		return nil, nil, err
	}
	if err := idx.VerifyModel(ctx, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDims); err != nil {
		return nil, nil, err
	}

	retriever := retrieve.NewRetriever(embedder, idx, cfg.Processing.TopK)

	var web answer.WebSearcher
	if cfg.WebSearch.Enabled {
		web = websearch.NewClient(cfg.WebSearch.MaxResults)
	}

	engine := answer.NewEngine(retriever, completer, store, web, answer.Options{
		MinScore:          cfg.Processing.MinScore,
		MaxHistoryTurns:   cfg.Processing.MaxHistoryTurns,
		WebThreshold:      cfg.WebSearch.ScoreThreshold,
		CompletionRetries: 2,
	})
	return engine, completer, nil
}
