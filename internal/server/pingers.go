package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// FuncPinger adapts a ping function into a Pinger. The vector index and the
// upload log both expose Ping(ctx) error and are registered this way.
type FuncPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// ping probes the dependency.
	ping func(ctx context.Context) error
}

// NewFuncPinger constructs a FuncPinger with the given label.
func NewFuncPinger(name string, ping func(ctx context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, ping: ping}
}

// Name returns the dependency label used in readiness responses.
func (p *FuncPinger) Name() string { return p.name }

// Ping runs the wrapped probe.
func (p *FuncPinger) Ping(ctx context.Context) error { return p.ping(ctx) }

// OllamaPinger probes an Ollama server with GET /api/tags, which lists the
// local models without loading any of them.
type OllamaPinger struct {
	// baseURL is the Ollama server address, e.g. http://localhost:11434.
	baseURL string
	// client performs the probe request.
	client *http.Client
}

// NewOllamaPinger constructs an OllamaPinger. A nil client uses
// http.DefaultClient; the probe deadline comes from the context.
func NewOllamaPinger(baseURL string, client *http.Client) *OllamaPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaPinger{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *OllamaPinger) Name() string { return "ollama" }

// Ping returns nil when the server answers /api/tags with 200.
func (p *OllamaPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}
