// Package provider selects and constructs the chat model used for grounded
// answer generation, and wraps it in a [Generator] that builds the prompt
// from retrieved snippets. Models are eino components, so every backend
// (and the in-process fake) plugs into the same compose chain.
package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendFake selects the in-process model that returns FakeAnswer.
	BackendFake Backend = "fake"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API or a compatible endpoint.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects the Volcano Engine Ark runtime.
	BackendArk Backend = "ark"
)

// Kind groups backends by where the model runs.
type Kind string

const (
	// KindFake is the deterministic in-process model.
	KindFake Kind = "fake"
	// KindLocal is a model server on the operator's machine.
	KindLocal Kind = "local"
	// KindHosted is a remote API that requires credentials.
	KindHosted Kind = "hosted"
)

// Kind returns the deployment kind of b, or "" for unknown backends.
func (b Backend) Kind() Kind {
	switch b {
	case BackendFake:
		return KindFake
	case BackendOllama:
		return KindLocal
	case BackendOpenAI, BackendAzure, BackendGemini, BackendArk:
		return KindHosted
	default:
		return ""
	}
}

// ParseBackend converts a provider name into a Backend. An empty name
// resolves to fake; unknown names wrap rag.ErrConfiguration.
func ParseBackend(s string) (Backend, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BackendFake, nil
	}
	b := Backend(s)
	if b.Kind() == "" {
		return "", fmt.Errorf("provider: unknown provider %q (valid: fake, ollama, openai, azure, gemini, ark): %w", s, rag.ErrConfiguration)
	}
	return b, nil
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. It is comparable so it can
// key the Resolver cache.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name, or the endpoint id for ark.
	Model string

	// BaseURL overrides the default API endpoint (Azure endpoint for azure).
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	APIKey string

	// AzureDeployment is the Azure OpenAI deployment name (Azure only).
	AzureDeployment string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens the model may generate per response.
	// Zero leaves the backend default.
	MaxTokens int

	// Temperature controls response randomness, in [0, 2].
	Temperature float32

	// Timeout bounds each generation call.
	Timeout time.Duration
}
