// Package mcpserver exposes the RAG pipeline as Model Context Protocol
// tools so assistants can query the indexed PDFs and inspect the
// collection over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/version"
)

// ErrMissingDependency is returned when a required port is nil.
var ErrMissingDependency = errors.New("mcpserver: querier and index are required")

// Querier answers RAG queries. *rag.Engine satisfies it.
type Querier interface {
	Execute(ctx context.Context, req rag.Request) (rag.Result, error)
}

// Index reports collection stats. *vectorstore.Collection satisfies it.
type Index interface {
	Stats(ctx context.Context) (rag.Stats, error)
}

// Server is the MCP server for pdfrag.
type Server struct {
	querier Querier
	index   Index
	server  *mcp.Server
}

// New creates a Server with the rag_query and rag_stats tools registered.
func New(q Querier, idx Index) (*Server, error) {
	if q == nil || idx == nil {
		return nil, ErrMissingDependency
	}
	s := &Server{
		querier: q,
		index:   idx,
		server:  mcp.NewServer(&mcp.Implementation{Name: "pdfrag", Version: version.Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

// Connect serves a single session over t. Used by tests with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}
