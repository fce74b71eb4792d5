// Package rag defines the shared types of the retrieval-augmented generation
// pipeline (documents, chunks, hits, search modes), the error taxonomy, and
// the query orchestrator ([Engine]) that composes retrieval with optional
// generation. Concrete backends live in sibling packages and satisfy the
// interfaces declared here so the orchestrator never depends on a specific
// implementation.
package rag

import (
	"context"
	"fmt"
	"strings"
)

// Metadata keys stamped on documents and chunks.
const (
	// MetaSource is the originating file path.
	MetaSource = "source"
	// MetaDocID identifies the parent document (the PDF file name).
	MetaDocID = "doc_id"
	// MetaPage is the 0-based page index within the source file.
	MetaPage = "page"
	// MetaTotalPages is the page count of the source file.
	MetaTotalPages = "total_pages"
	// MetaChunkID is the stable "{doc_id}#c{n}" chunk identifier.
	MetaChunkID = "chunk_id"
	// MetaStartIndex is the character offset of a chunk within its parent document.
	MetaStartIndex = "start_index"
)

// Document is a raw extracted unit of a source file (one PDF page).
// It is immutable once produced by the loader.
type Document struct {
	// Content is the extracted page text.
	Content string `json:"content"`
	// Metadata carries source, doc_id, page and total_pages.
	Metadata map[string]string `json:"metadata"`
}

// Chunk is a bounded slice of a Document's content, the unit of indexing.
type Chunk struct {
	// Content is the chunk text.
	Content string `json:"content"`
	// Metadata inherits the parent document metadata and adds chunk_id and start_index.
	Metadata map[string]string `json:"metadata"`
	// Embedding is assigned at index time. Nil until embedded.
	Embedding []float32 `json:"-"`
}

// ID returns the chunk_id metadata value, or "" when unassigned.
func (c Chunk) ID() string {
	return c.Metadata[MetaChunkID]
}

// CloneMetadata returns a shallow copy of m that is safe to modify.
func CloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SearchType selects the nearest-neighbour strategy.
type SearchType string

const (
	// SearchSimilarity returns the k nearest neighbours by cosine similarity.
	SearchSimilarity SearchType = "similarity"
	// SearchDiversity applies maximal marginal relevance over the nearest candidates.
	SearchDiversity SearchType = "diversity"
)

// ParseSearchType converts a user-supplied string into a SearchType.
// "mmr" is accepted as an alias of diversity. Unknown values wrap ErrValidation.
func ParseSearchType(s string) (SearchType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SearchSimilarity):
		return SearchSimilarity, nil
	case string(SearchDiversity), "mmr":
		return SearchDiversity, nil
	default:
		return "", fmt.Errorf("rag: unknown search_type %q (valid: similarity, diversity, mmr): %w", s, ErrValidation)
	}
}

// Stats describes a collection without mutating it.
type Stats struct {
	// Collection is the collection name.
	Collection string `json:"collection"`
	// PersistDirectory identifies where the collection is stored.
	PersistDirectory string `json:"persist_directory"`
	// TotalVectors is the number of stored chunks.
	TotalVectors int `json:"total_vectors"`
}

// Hit is a retrieved chunk as returned to callers.
type Hit struct {
	// Content is the chunk text.
	Content string `json:"content"`
	// Metadata is the chunk metadata.
	Metadata map[string]string `json:"metadata"`
}

// Snippet is one entry of the generation context.
type Snippet struct {
	// Text is the snippet content.
	Text string
	// Metadata is the originating chunk metadata.
	Metadata map[string]string
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher retrieves chunks for a question.
// *vectorstore.Collection satisfies it.
type Searcher interface {
	// Search returns at most k chunks ordered by descending relevance.
	Search(ctx context.Context, question string, k int, st SearchType) ([]Chunk, error)
}

// Generator produces a grounded answer from a question and context snippets.
// *provider.Generator satisfies it.
type Generator interface {
	// Generate returns the answer text.
	Generate(ctx context.Context, question string, snippets []Snippet) (string, error)
}
