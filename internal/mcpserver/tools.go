package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/pdfrag/internal/rag"
)

// QueryInput is the input schema for the rag_query tool.
type QueryInput struct {
	Question   string `json:"question" jsonschema:"the question to answer from the indexed PDFs"`
	Generate   bool   `json:"generate,omitempty" jsonschema:"also generate an answer with the configured model"`
	K          int    `json:"k,omitempty" jsonschema:"number of chunks to retrieve (default from server config)"`
	SearchType string `json:"search_type,omitempty" jsonschema:"similarity or diversity (default from server config)"`
}

// QueryOutput is the output schema for the rag_query tool.
type QueryOutput struct {
	Answer string      `json:"answer,omitempty"`
	Hits   []HitOutput `json:"hits"`
}

// HitOutput is one retrieved chunk.
type HitOutput struct {
	ChunkID  string            `json:"chunk_id,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// StatsInput is the (empty) input schema for the rag_stats tool.
type StatsInput struct{}

// StatsOutput is the output schema for the rag_stats tool.
type StatsOutput struct {
	Collection       string `json:"collection"`
	PersistDirectory string `json:"persist_directory"`
	TotalVectors     int    `json:"total_vectors"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "rag_query",
		Description: "Retrieve the chunks of the indexed PDFs most relevant to a question, optionally with a generated answer",
	}, s.handleQuery)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "rag_stats",
		Description: "Report the collection name, storage location and number of indexed chunks",
	}, s.handleStats)
}

// handleQuery handles the rag_query tool invocation. Zero-valued k and
// search_type fall back to the engine defaults.
func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	req := rag.Request{Question: in.Question, Generate: in.Generate}
	if in.K != 0 {
		req.K = &in.K
	}
	if in.SearchType != "" {
		req.SearchType = &in.SearchType
	}

	res, err := s.querier.Execute(ctx, req)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	out := QueryOutput{Hits: make([]HitOutput, len(res.Hits))}
	if res.Answer != nil {
		out.Answer = *res.Answer
	}
	for i, h := range res.Hits {
		out.Hits[i] = HitOutput{ChunkID: h.Metadata[rag.MetaChunkID], Content: h.Content, Metadata: h.Metadata}
	}
	return nil, out, nil
}

// handleStats handles the rag_stats tool invocation.
func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	st, err := s.index.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		Collection:       st.Collection,
		PersistDirectory: st.PersistDirectory,
		TotalVectors:     st.TotalVectors,
	}, nil
}
