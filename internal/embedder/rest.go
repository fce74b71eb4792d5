package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/54b3r/pdfrag/internal/rag"
)

// maxResponseBytes caps an embeddings response body.
const maxResponseBytes = 256 << 20

// restClient posts JSON to an embeddings REST endpoint.
type restClient struct {
	// name prefixes errors, e.g. "ollama embedder".
	name   string
	client *http.Client
	header http.Header
}

func newRESTClient(name string, timeout time.Duration, header http.Header) restClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	return restClient{name: name, client: &http.Client{Timeout: timeout}, header: header}
}

// post sends body to url and decodes a 2xx reply into out. Other statuses
// become ErrBackend errors carrying the message serverMsg extracts from the
// body, or the status code when it finds none.
func (c restClient) post(ctx context.Context, url string, body, out any, serverMsg func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.name, err)
	}
	req.Header = c.header.Clone()

	resp, err := c.client.Do(req)
	if err != nil {
		return rag.BackendFailure(c.name+": request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return rag.BackendFailure(c.name+": read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := serverMsg(raw)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("%s: %s: %w", c.name, msg, rag.ErrBackend)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w: %w", c.name, rag.ErrBackend, err)
	}
	return nil
}

// inBatches embeds texts in consecutive slices of at most size and
// concatenates the results. Each batch must return one vector per text.
func inBatches(ctx context.Context, name string, texts []string, size int,
	embed func(context.Context, []string) ([][]float32, error),
) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		batch := texts[start:min(start+size, len(texts))]
		vecs, err := embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%s: expected %d embeddings, got %d: %w", name, len(batch), len(vecs), rag.ErrBackend)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
