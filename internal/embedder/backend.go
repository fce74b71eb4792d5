package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Backend identifies an embedding implementation.
type Backend string

// Supported embedding backends.
const (
	BackendFake   Backend = "fake"
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
	BackendAzure  Backend = "azure"
	BackendGemini Backend = "gemini"
)

// Kind groups backends by where the model runs.
type Kind string

const (
	// KindFake is the in-process deterministic embedder.
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
	case BackendOpenAI, BackendAzure, BackendGemini:
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
		return "", fmt.Errorf("embedder: unknown provider %q (valid: fake, ollama, openai, azure, gemini): %w", s, rag.ErrConfiguration)
	}
	return b, nil
}

// Default models and dimensions per backend.
const (
	defaultFakeModel   = "fake-embed"
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// DefaultFakeDimensions is the vector length of the fake embedder.
	DefaultFakeDimensions = 1536
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768

	// DefaultTimeout bounds every embedding network call.
	DefaultTimeout = 60 * time.Second

	defaultOllamaHost      = "http://localhost:11434"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultAzureAPIVersion = "2025-04-01-preview"
)

// Config selects and parameterises an embedding backend. It is a comparable
// value so it can key the Resolver cache.
type Config struct {
	// Backend is the embedding implementation.
	Backend Backend
	// Model is the embedding model name. Empty selects the backend default.
	Model string
	// Dimensions is the requested vector length (0 = backend default).
	Dimensions int
	// APIKey authenticates hosted backends.
	APIKey string
	// Endpoint is the server or API base URL. Empty selects the backend default.
	Endpoint string
	// APIVersion is the Azure OpenAI api-version query parameter.
	APIVersion string
	// Timeout bounds each network call. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// ConfigFromEnv builds a Config from EMBEDDING_* variables, inheriting
// credentials and endpoints from the chat provider variables when the
// embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER (default: fake)
//  2. EMBEDDING_MODEL overrides the backend default model
//  3. EMBEDDING_API_KEY overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY / GOOGLE_API_KEY
//  4. EMBEDDING_ENDPOINT overrides OLLAMA_HOST / AZURE_OPENAI_ENDPOINT
//  5. EMBEDDING_DIMENSIONS overrides the backend default dimensions
//  6. EMBEDDING_TIMEOUT (Go duration, default 60s)
func ConfigFromEnv() (Config, error) {
	backend, err := ParseBackend(os.Getenv("EMBEDDING_PROVIDER"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Backend:  backend,
		Model:    os.Getenv("EMBEDDING_MODEL"),
		APIKey:   os.Getenv("EMBEDDING_API_KEY"),
		Endpoint: os.Getenv("EMBEDDING_ENDPOINT"),
	}

	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be a non-negative integer, got %q: %w", v, rag.ErrConfiguration)
		}
		cfg.Dimensions = n
	}
	if v := os.Getenv("EMBEDDING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("embedder: EMBEDDING_TIMEOUT must be a positive duration, got %q: %w", v, rag.ErrConfiguration)
		}
		cfg.Timeout = d
	}

	switch backend {
	case BackendOllama:
		if cfg.Endpoint == "" {
			cfg.Endpoint = os.Getenv("OLLAMA_HOST")
		}
	case BackendOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = os.Getenv("OPENAI_BASE_URL")
		}
	case BackendAzure:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		cfg.APIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
	case BackendGemini:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills empty fields with the backend defaults.
func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendFake
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	switch c.Backend {
	case BackendFake:
		c.Model = orDefault(c.Model, defaultFakeModel)
		if c.Dimensions == 0 {
			c.Dimensions = DefaultFakeDimensions
		}
	case BackendOllama:
		c.Model = orDefault(c.Model, defaultOllamaModel)
		c.Endpoint = orDefault(c.Endpoint, defaultOllamaHost)
	case BackendOpenAI:
		c.Model = orDefault(c.Model, defaultOpenAIModel)
		c.Endpoint = orDefault(c.Endpoint, defaultOpenAIBaseURL)
	case BackendAzure:
		c.Model = orDefault(c.Model, defaultOpenAIModel)
		c.APIVersion = orDefault(c.APIVersion, defaultAzureAPIVersion)
	case BackendGemini:
		c.Model = orDefault(c.Model, defaultGeminiModel)
	}
	return c
}

// Validate reports configuration that cannot produce a working embedder:
// unknown backends, missing credentials, or a missing endpoint.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFake, BackendOllama:
		return nil
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT: %w", rag.ErrConfiguration)
		}
	case BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
	default:
		return fmt.Errorf("embedder: unknown provider %q: %w", c.Backend, rag.ErrConfiguration)
	}
	return nil
}

// ModelID returns "backend:model", the identifier recorded in eval reports.
func (c Config) ModelID() string {
	d := c.withDefaults()
	return string(d.Backend) + ":" + d.Model
}

// DefaultDimensions returns the vector length the configured backend will
// produce, used to size server-side collections before the first embed.
func (c Config) DefaultDimensions() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	switch c.Backend {
	case BackendFake:
		return DefaultFakeDimensions
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendGemini:
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New validates cfg and constructs the selected embedder.
func New(cfg Config) (rag.Embedder, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendFake:
		return NewFakeEmbedder(cfg.Model, cfg.Dimensions), nil
	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{
			Host:    cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case BackendOpenAI:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	case BackendAzure:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		}), nil
	case BackendGemini:
		return NewGeminiEmbedder(&GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("embedder: unknown provider %q: %w", cfg.Backend, rag.ErrConfiguration)
	}
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
