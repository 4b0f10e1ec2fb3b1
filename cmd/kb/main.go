// Package main provides the kb CLI for managing a personal knowledge base.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/knowledge-rag/internal/app"
	"github.com/bull/knowledge-rag/internal/config"
	"github.com/bull/knowledge-rag/internal/logger"
)

var (
	configPath string
	userID     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Personal knowledge base with semantic search",
	Long: `CLI for ingesting documents into a knowledge base and searching it by meaning.

Documents are split into overlapping chunks, embedded with an OpenAI-compatible
model and stored in SQLite (default), Qdrant or memory.

Environment variables:
  OPENAI_API_KEY   API key for embeddings (required to ingest and search)
  STORAGE_BACKEND  memory, sqlite or qdrant (default: sqlite)
  SQLITE_PATH      SQLite database file (default: ~/.knowledge-rag/knowledge.db)
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  DEFAULT_USER_ID  Owner of the knowledge base (default: default)
  GITHUB_TOKEN     GitHub token for seeding from repositories (optional)
  LOG_LEVEL        debug, info, warn or error (default: info)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "knowledge.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "owner of the knowledge base (overrides DEFAULT_USER_ID)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openApp loads the configuration and wires the knowledge base. The caller
// closes the returned App.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if userID != "" {
		cfg.Server.DefaultUser = userID
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(cmd.ErrOrStderr(), logger.Options{Level: cfg.Log.Level, Prefix: "kb"})
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, log)
}

// user returns the user the command acts for.
func user(a *app.App) string {
	return a.Config.Server.DefaultUser
}
