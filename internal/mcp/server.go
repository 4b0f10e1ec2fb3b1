package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/knowledge-rag/internal/knowledge"
)

// DefaultUser owns the knowledge base when a tool call names no user.
const DefaultUser = "default"

// Server wraps the MCP server with dependencies.
type Server struct {
	server      *mcp.Server
	knowledge   *knowledge.Service
	defaultUser string
	logger      *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Knowledge   *knowledge.Service
	DefaultUser string
	Version     string
	Logger      *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	user := cfg.DefaultUser
	if user == "" {
		user = DefaultUser
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "knowledge-rag",
			Version: version,
		}, nil),
		knowledge:   cfg.Knowledge,
		defaultUser: user,
		logger:      logger,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Semantic search over the knowledge base. Returns the most similar passages with their similarity scores.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Add a text document to the knowledge base. The text is chunked, embedded and stored for search.",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the documents in the knowledge base, newest first, optionally filtered by category.",
	}, s.handleListDocuments)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and all of its passages from the knowledge base.",
	}, s.handleDelete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "knowledge_stats",
		Description: "Get document, passage and token totals for the knowledge base, with document counts per category.",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_categories",
		Description: "List the distinct document categories in the knowledge base.",
	}, s.handleCategories)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "processing_queue",
		Description: "List ingestions that are still running or have failed, newest first.",
	}, s.handleQueue)

	return s
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio", "default_user", s.defaultUser)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
