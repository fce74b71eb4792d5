package embedder

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// ollamaMaxBatch bounds the inputs per /api/embed call so one request
// never holds a whole large document.
const ollamaMaxBatch = 256

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint. No API
// key is needed. It is safe for concurrent use.
type OllamaEmbedder struct {
	url   string
	model string
	rest  restClient
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host string
	// Model is the embedding model, e.g. "nomic-embed-text".
	Model string
	// Timeout bounds each request. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:   strings.TrimRight(cfg.Host, "/") + "/api/embed",
		model: cfg.Model,
		rest:  newRESTClient("ollama embedder", cfg.Timeout, nil),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// ollamaErrorMessage extracts the "error" field Ollama sets on failures.
func ollamaErrorMessage(raw []byte) string {
	var body ollamaEmbedResponse
	_ = json.Unmarshal(raw, &body)
	return body.Error
}

// Embed returns one vector per text, sending at most ollamaMaxBatch texts
// per request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return inBatches(ctx, e.rest.name, texts, ollamaMaxBatch, func(ctx context.Context, batch []string) ([][]float32, error) {
		var resp ollamaEmbedResponse
		if err := e.rest.post(ctx, e.url, ollamaEmbedRequest{Model: e.model, Input: batch}, &resp, ollamaErrorMessage); err != nil {
			return nil, err
		}
		return resp.Embeddings, nil
	})
}
