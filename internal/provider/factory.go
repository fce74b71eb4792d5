package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Defaults applied by ConfigFromEnv and New.
const (
	// DefaultTimeout bounds each generation call.
	DefaultTimeout = 120 * time.Second

	defaultOllamaHost      = "http://localhost:11434"
	defaultOllamaModel     = "llama3.1"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultGeminiModel     = "gemini-1.5-flash"
	defaultAzureAPIVersion = "2024-02-01"
)

// ConfigFromEnv builds a Config by reading provider configuration from
// environment variables. MODEL_PROVIDER selects the backend; each provider
// uses its own native credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER = fake | ollama | openai | azure | gemini | ark (default: fake)
//	MODEL_NAME     model name (ark: endpoint id); per-backend default when empty
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434)
//	OpenAI:  OPENAI_API_KEY, OPENAI_BASE_URL
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Gemini:  GOOGLE_API_KEY
//	Ark:     ARK_API_KEY, ARK_BASE_URL
//
//	Shared:  MODEL_MAX_TOKENS, MODEL_TEMPERATURE (default: 0), MODEL_TIMEOUT (default: 120s)
func ConfigFromEnv() (Config, error) {
	backend, err := ParseBackend(os.Getenv("MODEL_PROVIDER"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Backend: backend, Model: os.Getenv("MODEL_NAME")}

	if v := os.Getenv("MODEL_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("provider: MODEL_MAX_TOKENS must be a non-negative integer, got %q: %w", v, rag.ErrConfiguration)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("MODEL_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return Config{}, fmt.Errorf("provider: MODEL_TEMPERATURE must be a number, got %q: %w", v, rag.ErrConfiguration)
		}
		cfg.Temperature = float32(f)
	}
	if v := os.Getenv("MODEL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("provider: MODEL_TIMEOUT must be a positive duration, got %q: %w", v, rag.ErrConfiguration)
		}
		cfg.Timeout = d
	}

	switch backend {
	case BackendOllama:
		cfg.BaseURL = os.Getenv("OLLAMA_HOST")
	case BackendOpenAI:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	case BackendAzure:
		cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		cfg.BaseURL = os.Getenv("AZURE_OPENAI_ENDPOINT")
		cfg.AzureDeployment = os.Getenv("AZURE_OPENAI_DEPLOYMENT")
		cfg.AzureAPIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
	case BackendGemini:
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	case BackendArk:
		cfg.APIKey = os.Getenv("ARK_API_KEY")
		cfg.BaseURL = os.Getenv("ARK_BASE_URL")
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
	case BackendOllama:
		if c.BaseURL == "" {
			c.BaseURL = defaultOllamaHost
		}
		if c.Model == "" {
			c.Model = defaultOllamaModel
		}
	case BackendOpenAI:
		if c.Model == "" {
			c.Model = defaultOpenAIModel
		}
	case BackendAzure:
		if c.AzureAPIVersion == "" {
			c.AzureAPIVersion = defaultAzureAPIVersion
		}
	case BackendGemini:
		if c.Model == "" {
			c.Model = defaultGeminiModel
		}
	}
	return c
}

// Validate reports configuration that cannot produce a working model so
// callers get a clear error at startup rather than on the first request.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFake, BackendOllama:
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend: %w", rag.ErrConfiguration)
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend: %w", rag.ErrConfiguration)
		}
		if c.BaseURL == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend: %w", rag.ErrConfiguration)
		}
		if c.AzureDeployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend: %w", rag.ErrConfiguration)
		}
	case BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend: %w", rag.ErrConfiguration)
		}
	case BackendArk:
		if c.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend: %w", rag.ErrConfiguration)
		}
		if c.Model == "" {
			return fmt.Errorf("provider: MODEL_NAME (ark endpoint id) is required for ark backend: %w", rag.ErrConfiguration)
		}
	default:
		return fmt.Errorf("provider: unknown provider %q: %w", c.Backend, rag.ErrConfiguration)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE must be in [0,2], got %g: %w", c.Temperature, rag.ErrConfiguration)
	}
	return nil
}

// NewChatModel constructs a chat model from an explicit Config, delegating
// to the appropriate backend constructor. It validates the config first.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendFake {
		return NewFakeChatModel(FakeAnswer), nil
	}
	build, ok := builders[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("provider: unknown provider %q: %w", cfg.Backend, rag.ErrConfiguration)
	}
	m, err := build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("provider: construct %s model: %w: %w", cfg.Backend, rag.ErrConfiguration, err)
	}
	return m, nil
}
