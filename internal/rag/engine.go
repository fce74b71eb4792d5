package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/pdfrag/internal/logging"
)

// Default retrieval parameters used when neither the environment nor the
// request supplies a value.
const (
	// DefaultK is the number of hits returned per query.
	DefaultK = 5
	// DefaultSearchType is the retrieval strategy used per query.
	DefaultSearchType = SearchDiversity
)

// Defaults holds the engine-wide retrieval settings. It is copied by value
// into the Engine at construction and never written afterwards.
type Defaults struct {
	// K is the default number of hits.
	K int
	// SearchType is the default retrieval strategy.
	SearchType SearchType
}

// DefaultsFromEnv reads RETRIEVER_K and RETRIEVER_SEARCH_TYPE.
// Invalid values are configuration errors, not silent fallbacks.
func DefaultsFromEnv() (Defaults, error) {
	d := Defaults{K: DefaultK, SearchType: DefaultSearchType}
	if v := os.Getenv("RETRIEVER_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 1 {
			return Defaults{}, fmt.Errorf("rag: RETRIEVER_K must be a positive integer, got %q: %w", v, ErrConfiguration)
		}
		d.K = k
	}
	if v := os.Getenv("RETRIEVER_SEARCH_TYPE"); v != "" {
		st, err := ParseSearchType(v)
		if err != nil {
			return Defaults{}, fmt.Errorf("rag: RETRIEVER_SEARCH_TYPE: %q: %w", v, ErrConfiguration)
		}
		d.SearchType = st
	}
	return d, nil
}

// Request is a single query. K and SearchType override the engine defaults
// for this call only.
type Request struct {
	// Question is the natural language question. Must be non-empty.
	Question string `json:"question"`
	// Generate requests an LLM answer in addition to the hits.
	Generate bool `json:"generate"`
	// K overrides the default hit count when set.
	K *int `json:"k,omitempty"`
	// SearchType overrides the default strategy when set.
	SearchType *string `json:"search_type,omitempty"`
}

// Result is the response of Execute.
type Result struct {
	// Answer is the generated answer, nil when generation was not requested.
	Answer *string `json:"answer"`
	// Hits are the retrieved chunks in descending relevance.
	Hits []Hit `json:"hits"`
}

// Engine composes retrieval and optional generation into one
// request/response cycle. It is safe for concurrent use: it holds no
// per-request state.
type Engine struct {
	// searcher retrieves chunks from the vector index.
	searcher Searcher
	// generator produces answers. May be nil when generation is unavailable.
	generator Generator
	// defaults are the immutable engine-wide retrieval settings.
	defaults Defaults
}

// NewEngine constructs an Engine. generator may be nil, in which case
// requests with Generate set fail with ErrConfiguration.
func NewEngine(searcher Searcher, generator Generator, defaults Defaults) (*Engine, error) {
	if searcher == nil {
		return nil, fmt.Errorf("rag: searcher must not be nil")
	}
	if defaults.K < 1 {
		defaults.K = DefaultK
	}
	if defaults.SearchType == "" {
		defaults.SearchType = DefaultSearchType
	}
	return &Engine{searcher: searcher, generator: generator, defaults: defaults}, nil
}

// Defaults returns a copy of the engine defaults.
func (e *Engine) Defaults() Defaults {
	return e.defaults
}

// Execute retrieves hits for req.Question and, when req.Generate is set,
// produces an answer from them. Errors from the searcher and generator are
// returned to the caller; there are no retries.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{}, fmt.Errorf("rag: question must not be empty: %w", ErrValidation)
	}

	k, st, err := e.resolve(req)
	if err != nil {
		return Result{}, err
	}
	if req.Generate && e.generator == nil {
		return Result{}, fmt.Errorf("rag: generation requested but no generator is configured: %w", ErrConfiguration)
	}

	log := logging.FromContext(ctx)
	start := time.Now()

	chunks, err := e.searcher.Search(ctx, question, k, st)
	if err != nil {
		return Result{}, fmt.Errorf("rag: retrieval failed: %w", err)
	}

	hits := make([]Hit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, Hit{Content: c.Content, Metadata: c.Metadata})
	}
	res := Result{Hits: hits}

	log.Debug("rag: retrieved",
		slog.Int("k", k),
		slog.String("search_type", string(st)),
		slog.Int("hits", len(hits)),
		slog.Duration("duration", time.Since(start)),
	)

	if !req.Generate {
		return res, nil
	}

	answer, err := e.generator.Generate(ctx, question, SnippetsFromHits(hits))
	if err != nil {
		return Result{}, fmt.Errorf("rag: generation failed: %w", err)
	}
	res.Answer = &answer
	return res, nil
}

// resolve merges per-call overrides with the engine defaults into local
// values. The engine defaults are read, never written.
func (e *Engine) resolve(req Request) (int, SearchType, error) {
	k := e.defaults.K
	if req.K != nil {
		if *req.K < 1 {
			return 0, "", fmt.Errorf("rag: k must be >= 1, got %d: %w", *req.K, ErrValidation)
		}
		k = *req.K
	}
	st := e.defaults.SearchType
	if req.SearchType != nil && *req.SearchType != "" {
		parsed, err := ParseSearchType(*req.SearchType)
		if err != nil {
			return 0, "", err
		}
		st = parsed
	}
	return k, st, nil
}

// SnippetsFromHits converts hits into generation context snippets.
func SnippetsFromHits(hits []Hit) []Snippet {
	out := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		out = append(out, Snippet{Text: h.Content, Metadata: h.Metadata})
	}
	return out
}
