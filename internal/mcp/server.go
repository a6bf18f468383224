package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/speechqa/internal/qa"
	"github.com/bull/speechqa/internal/storage"
)

// Searcher retrieves the chunks closest to a question.
type Searcher interface {
	RetrieveK(ctx context.Context, question string, k int) ([]*storage.ScoredChunk, error)
	K() int
}

// Asker answers a question from retrieved context.
type Asker interface {
	Ask(ctx context.Context, question string) (*qa.Answer, error)
}

// IndexReader reports what the vector store holds.
type IndexReader interface {
	Info(ctx context.Context) (*storage.IndexInfo, error)
	Count(ctx context.Context) (int, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Searcher Searcher
	Asker    Asker
	Index    IndexReader
	Version  string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "speechqa",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_context",
		Description: "Find the passages of the indexed document most relevant to a question. Returns passage text with similarity scores.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the most relevant passages of the indexed document. Returns the answer and the passages used.",
	}, makeAskHandler(cfg.Asker))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the status of the vector index: source document, embedding model, dimension, chunk count and build time.",
	}, makeStatusHandler(cfg.Index))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
