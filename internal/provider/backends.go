package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// builder constructs the chat model for one backend from a validated Config.
type builder func(ctx context.Context, cfg Config) (model.BaseChatModel, error)

// builders maps every network backend to its constructor. The fake backend
// is handled before lookup.
var builders = map[Backend]builder{
	BackendOllama: buildOllama,
	BackendOpenAI: func(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
		return buildOpenAICompatible(ctx, cfg, cfg.Model, false)
	},
	BackendAzure: func(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
		return buildOpenAICompatible(ctx, cfg, cfg.AzureDeployment, true)
	},
	BackendGemini: buildGemini,
	BackendArk:    buildArk,
}

// sampling returns the shared generation knobs. A zero MaxTokens maps to
// nil so the backend default applies.
func sampling(cfg Config) (maxTokens *int, temperature *float32) {
	t := cfg.Temperature
	if cfg.MaxTokens > 0 {
		n := cfg.MaxTokens
		maxTokens = &n
	}
	return maxTokens, &t
}

func buildOllama(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
}

// buildOpenAICompatible serves OpenAI, any OpenAI-compatible BaseURL and
// Azure OpenAI. For Azure, name is the deployment.
func buildOpenAICompatible(ctx context.Context, cfg Config, name string, azure bool) (model.BaseChatModel, error) {
	maxTokens, temp := sampling(cfg)
	mc := &einoopenai.ChatModelConfig{
		Model:       name,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temp,
	}
	if azure {
		mc.ByAzure = true
		mc.APIVersion = cfg.AzureAPIVersion
		// Deployment names such as "gpt-4.1" must reach the URL unmodified.
		mc.AzureModelMapperFunc = func(m string) string { return m }
	}
	return einoopenai.NewChatModel(ctx, mc)
}

func buildGemini(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Model,
	})
}

// buildArk targets the Volcano Engine Ark runtime; Model is the endpoint id.
func buildArk(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	maxTokens, temp := sampling(cfg)
	return einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temp,
	})
}
