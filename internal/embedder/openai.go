// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Backends are selected by a
// tagged [Backend] value validated in [Config.Validate]; [New] builds one
// and [Resolver] caches one instance per distinct [Config].
//
// The OpenAI, Azure OpenAI and Ollama backends speak their REST APIs over
// plain HTTP. Gemini goes through google.golang.org/genai. The fake backend
// runs in-process and needs no network.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/54b3r/pdfrag/internal/rag"
)

// openAIMaxBatch is the per-request input limit of the embeddings API.
const openAIMaxBatch = 2048

// OpenAIEmbedder calls the OpenAI or Azure OpenAI embeddings API. It is safe
// for concurrent use.
type OpenAIEmbedder struct {
	// url is the fully resolved embeddings endpoint.
	url        string
	model      string
	dimensions int
	rest       restClient
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	APIKey  string
	// Model is the model name, or the deployment name for Azure.
	Model string
	// Dimensions requests shortened vectors (0 = model default).
	Dimensions int
	// Azure switches to the deployment URL layout and api-key header.
	Azure bool
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
	// Timeout bounds each request. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	header := http.Header{}
	endpoint := base + "/embeddings"
	if cfg.Azure {
		header.Set("api-key", cfg.APIKey)
		endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) + "/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
	} else {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &OpenAIEmbedder{
		url:        endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		rest:       newRESTClient("openai embedder", cfg.Timeout, header),
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// openaiErrorMessage extracts error.message from an error body.
func openaiErrorMessage(raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)
	return body.Error.Message
}

// Embed returns one vector per text, sending at most openAIMaxBatch texts
// per request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return inBatches(ctx, e.rest.name, texts, openAIMaxBatch, e.embedBatch)
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openaiEmbedResponse
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	if err := e.rest.post(ctx, e.url, req, &resp, openaiErrorMessage); err != nil {
		return nil, err
	}

	// Results may arrive out of order; place them by index.
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("openai embedder: bad result index %d for %d inputs: %w", d.Index, len(texts), rag.ErrBackend)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("openai embedder: no embedding for input %d: %w", i, rag.ErrBackend)
		}
	}
	return vecs, nil
}
