package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/BestBeo/ChatbotLaw/internal/pipeline"
	"github.com/BestBeo/ChatbotLaw/internal/retriever"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server    *mcp.Server
	pipeline  *pipeline.Pipeline
	retriever *retriever.Retriever
	store     vectorstore.Store
}

// Config holds server dependencies.
type Config struct {
	Pipeline  *pipeline.Pipeline
	Retriever *retriever.Retriever
	Store     vectorstore.Store
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "law-assistant-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_law",
		Description: "Answer a legal question from the indexed corpus. Returns a generated answer with cited source segments.",
	}, makeAskHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_law",
		Description: "Search the legal corpus semantically. Returns matching segments with scores and excerpts, without generating an answer.",
	}, makeSearchHandler(cfg.Retriever))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all indexed legal documents with their categories and segment counts.",
	}, makeListHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current status of the legal index: document and segment counts per category and store health.",
	}, makeStatusHandler(cfg.Store))

	return &Server{
		server:    server,
		pipeline:  cfg.Pipeline,
		retriever: cfg.Retriever,
		store:     cfg.Store,
	}
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
