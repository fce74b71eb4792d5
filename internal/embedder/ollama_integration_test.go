//go:build integration

package embedder

import (
	"context"
	"testing"
	"time"
)

// TestOllama_Integration embeds against a running Ollama server resolved
// through the same EMBEDDING_* / OLLAMA_HOST settings the CLI reads.
//
//	ollama pull nomic-embed-text
//	EMBEDDING_PROVIDER=ollama go test -tags=integration ./internal/embedder/
func TestOllama_Integration(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	emb, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// One more than a batch, so the split path is exercised.
	texts := make([]string, ollamaMaxBatch+1)
	for i := range texts {
		texts[i] = "invoice line item"
	}
	texts[0] = "Recursive splitting keeps paragraphs together when they fit."
	texts[len(texts)-1] = "Maximal marginal relevance trades similarity for diversity."

	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed (model %s at %s): %v", cfg.ModelID(), cfg.Endpoint, err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	first, last := vecs[0], vecs[len(vecs)-1]
	if len(first) == 0 || len(first) != len(last) {
		t.Fatalf("dims: first=%d last=%d", len(first), len(last))
	}
	if cosine(first, last) > 0.9999 {
		t.Error("unrelated sentences produced the same vector")
	}
	t.Logf("model=%s dim=%d", cfg.ModelID(), len(first))
}
