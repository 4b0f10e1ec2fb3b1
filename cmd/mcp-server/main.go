// Package main provides the MCP server entry point for the knowledge base.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/knowledge-rag/internal/app"
	"github.com/bull/knowledge-rag/internal/config"
	"github.com/bull/knowledge-rag/internal/logger"
	mcpserver "github.com/bull/knowledge-rag/internal/mcp"
)

var version = "v0.1.0"

func main() {
	configPath := flag.String("config", "knowledge.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Stdout carries the stdio transport, so logs go to stderr.
	log, err := logger.New(os.Stderr, logger.Options{
		Level:      cfg.Log.Level,
		Prefix:     "mcp",
		Timestamps: cfg.Server.Mode == "http",
	})
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewServer(&mcpserver.Config{
		Knowledge:   a.Knowledge,
		DefaultUser: cfg.Server.DefaultUser,
		Version:     version,
		Logger:      log,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Handler:           mcpserver.NewMux(server, a.Knowledge, a.Metrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.Mode == "http" {
		// HTTP mode: serve MCP over HTTP for remote clients
		log.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health", "metrics", "/metrics")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients, with
	// health and metrics served in the background.
	go func() {
		log.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Health server error", "error", err)
		}
	}()

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
