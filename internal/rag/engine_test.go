package rag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
)

// stubSearcher records the parameters of each call and returns fixed chunks.
type stubSearcher struct {
	mu     sync.Mutex
	chunks []Chunk
	err    error
	gotK   int
	gotST  SearchType
}

func (s *stubSearcher) Search(_ context.Context, _ string, k int, st SearchType) ([]Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotK, s.gotST = k, st
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks[:min(k, len(s.chunks))], nil
}

type stubGenerator struct {
	answer   string
	err      error
	snippets []Snippet
}

func (g *stubGenerator) Generate(_ context.Context, _ string, snippets []Snippet) (string, error) {
	g.snippets = snippets
	return g.answer, g.err
}

func chunks(ids ...string) []Chunk {
	out := make([]Chunk, len(ids))
	for i, id := range ids {
		out[i] = Chunk{Content: "text " + id, Metadata: map[string]string{MetaChunkID: id}}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestEngine_RetrievalOnly(t *testing.T) {
	t.Parallel()

	s := &stubSearcher{chunks: chunks("a.pdf#c0", "a.pdf#c1", "b.pdf#c0")}
	e, err := NewEngine(s, nil, Defaults{K: 2, SearchType: SearchSimilarity})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Execute(context.Background(), Request{Question: "  what?  "})
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != nil {
		t.Errorf("answer must be nil without generation, got %q", *res.Answer)
	}
	if len(res.Hits) != 2 || res.Hits[0].Metadata[MetaChunkID] != "a.pdf#c0" {
		t.Errorf("unexpected hits: %+v", res.Hits)
	}
	if s.gotK != 2 || s.gotST != SearchSimilarity {
		t.Errorf("searcher got k=%d st=%s", s.gotK, s.gotST)
	}
}

func TestEngine_OverridesDoNotLeak(t *testing.T) {
	t.Parallel()

	s := &stubSearcher{chunks: chunks("x#c0", "x#c1", "x#c2", "x#c3")}
	e, _ := NewEngine(s, nil, Defaults{K: 1, SearchType: SearchDiversity})

	if _, err := e.Execute(context.Background(), Request{Question: "q", K: ptr(3), SearchType: ptr("mmr")}); err != nil {
		t.Fatal(err)
	}
	if s.gotK != 3 || s.gotST != SearchDiversity {
		t.Errorf("override not applied: k=%d st=%s", s.gotK, s.gotST)
	}
	if _, err := e.Execute(context.Background(), Request{Question: "q", SearchType: ptr("similarity")}); err != nil {
		t.Fatal(err)
	}
	if s.gotK != 1 || s.gotST != SearchSimilarity {
		t.Errorf("k override leaked into next call: k=%d st=%s", s.gotK, s.gotST)
	}
	if d := e.Defaults(); d.K != 1 || d.SearchType != SearchDiversity {
		t.Errorf("defaults mutated: %+v", d)
	}
}

func TestEngine_Generate(t *testing.T) {
	t.Parallel()

	g := &stubGenerator{answer: "42"}
	e, _ := NewEngine(&stubSearcher{chunks: chunks("d#c0", "d#c1")}, g, Defaults{})
	res, err := e.Execute(context.Background(), Request{Question: "q", Generate: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer == nil || *res.Answer != "42" {
		t.Fatalf("answer = %v", res.Answer)
	}
	if len(g.snippets) != 2 || g.snippets[1].Text != "text d#c1" {
		t.Errorf("generator snippets = %+v", g.snippets)
	}
}

func TestEngine_Errors(t *testing.T) {
	t.Parallel()

	backendErr := BackendFailure("search", errors.New("connection refused"))
	tests := []struct {
		name string
		s    Searcher
		g    Generator
		req  Request
		want error
	}{
		{"empty question", &stubSearcher{}, nil, Request{Question: "   "}, ErrValidation},
		{"k zero", &stubSearcher{}, nil, Request{Question: "q", K: ptr(0)}, ErrValidation},
		{"bad search type", &stubSearcher{}, nil, Request{Question: "q", SearchType: ptr("fuzzy")}, ErrValidation},
		{"no generator", &stubSearcher{}, nil, Request{Question: "q", Generate: true}, ErrConfiguration},
		{"search failure", &stubSearcher{err: backendErr}, nil, Request{Question: "q"}, ErrBackend},
		{"generation timeout", &stubSearcher{}, &stubGenerator{err: BackendFailure("generate", context.DeadlineExceeded)},
			Request{Question: "q", Generate: true}, ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := NewEngine(tt.s, tt.g, Defaults{})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := e.Execute(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(nil, nil, Defaults{}); err == nil {
		t.Error("expected error for nil searcher")
	}
	e, _ := NewEngine(&stubSearcher{}, nil, Defaults{})
	if d := e.Defaults(); d.K != DefaultK || d.SearchType != DefaultSearchType {
		t.Errorf("defaults = %+v", d)
	}
}

func TestDefaultsFromEnv(t *testing.T) {
	t.Setenv("RETRIEVER_K", "7")
	t.Setenv("RETRIEVER_SEARCH_TYPE", "similarity")
	d, err := DefaultsFromEnv()
	if err != nil || d.K != 7 || d.SearchType != SearchSimilarity {
		t.Fatalf("got %+v, %v", d, err)
	}

	t.Setenv("RETRIEVER_K", "0")
	if _, err := DefaultsFromEnv(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("RETRIEVER_K=0: expected ErrConfiguration, got %v", err)
	}
	t.Setenv("RETRIEVER_K", "")
	t.Setenv("RETRIEVER_SEARCH_TYPE", "bm25")
	if _, err := DefaultsFromEnv(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("bad search type: expected ErrConfiguration, got %v", err)
	}
}

func TestParseSearchType(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]SearchType{
		"similarity": SearchSimilarity,
		"Diversity":  SearchDiversity,
		" mmr ":      SearchDiversity,
	} {
		got, err := ParseSearchType(in)
		if err != nil || got != want {
			t.Errorf("ParseSearchType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSearchType(""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty: expected ErrValidation, got %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestBackendFailure(t *testing.T) {
	t.Parallel()

	if BackendFailure("op", nil) != nil {
		t.Error("nil error must stay nil")
	}

	plain := BackendFailure("embed", errors.New("500 internal"))
	if !errors.Is(plain, ErrBackend) || errors.Is(plain, ErrTimeout) {
		t.Errorf("plain failure misclassified: %v", plain)
	}

	for _, cause := range []error{context.DeadlineExceeded, timeoutErr{}, fmt.Errorf("wrapped: %w", timeoutErr{})} {
		err := BackendFailure("embed", cause)
		if !errors.Is(err, ErrBackend) || !errors.Is(err, ErrTimeout) || !IsTimeout(err) {
			t.Errorf("timeout cause %v misclassified: %v", cause, err)
		}
	}
}

func TestSnippetsFromHits_AndChunkID(t *testing.T) {
	t.Parallel()

	hits := []Hit{{Content: "a", Metadata: map[string]string{MetaChunkID: "f#c0"}}}
	s := SnippetsFromHits(hits)
	if len(s) != 1 || s[0].Text != "a" || s[0].Metadata[MetaChunkID] != "f#c0" {
		t.Errorf("snippets = %+v", s)
	}
	if (Chunk{}).ID() != "" {
		t.Error("unassigned chunk id must be empty")
	}
	m := map[string]string{"k": "v"}
	c := CloneMetadata(m)
	c["k"] = "changed"
	if m["k"] != "v" {
		t.Error("CloneMetadata must not alias the source map")
	}
}
