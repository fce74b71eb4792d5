// Package config provides file-based configuration for pdfrag.
// Configuration is loaded with a layered precedence: defaults → config file
// → .env file → environment. Environment variables always win, and each
// package then reads its own typed settings from the environment.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. PDFRAG_CONFIG environment variable
//  3. ~/.pdfrag/config.yaml
//  4. ./pdfrag.yaml
//  5. ./pdfrag.toml
//
// Files ending in .toml are parsed as TOML, everything else as YAML.
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DotEnvFile is the dotenv file read from the working directory.
const DotEnvFile = ".env"

// Config is the top-level configuration structure. Keys mirror the env var
// names (lowercase, underscored, grouped by concern).
type Config struct {
	// Model configures the generation provider.
	Model ModelConfig `yaml:"model" toml:"model"`
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	// VectorStore configures the vector index.
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	// Chunking configures the splitter.
	Chunking ChunkingConfig `yaml:"chunking" toml:"chunking"`
	// Retriever configures query defaults.
	Retriever RetrieverConfig `yaml:"retriever" toml:"retriever"`
	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server" toml:"server"`
	// UploadLog configures upload history persistence.
	UploadLog UploadLogConfig `yaml:"upload_log" toml:"upload_log"`
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
	// Eval configures the retrieval evaluation harness.
	Eval EvalConfig `yaml:"eval" toml:"eval"`
}

// ModelConfig holds generation provider settings.
type ModelConfig struct {
	// Provider selects the backend: fake, ollama, openai, azure, gemini, ark.
	Provider string `yaml:"provider" toml:"provider"`
	// Name is the model name; empty uses the provider default.
	Name string `yaml:"name" toml:"name"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
	// Temperature controls response randomness (0.0 to 2.0).
	Temperature float32 `yaml:"temperature" toml:"temperature"`
	// Timeout bounds each generation call, e.g. "90s".
	Timeout string `yaml:"timeout" toml:"timeout"`
	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama" toml:"ollama"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai" toml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure" toml:"azure"`
	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini" toml:"gemini"`
	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark" toml:"ark"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host" toml:"host"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment" toml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version" toml:"api_version"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// BaseURL overrides the Ark endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: fake, ollama, openai, azure, gemini.
	Provider string `yaml:"provider" toml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" toml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions" toml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	// Timeout bounds each embedding call, e.g. "30s".
	Timeout string `yaml:"timeout" toml:"timeout"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	// Provider selects the index backend: sqlite or qdrant.
	Provider string `yaml:"provider" toml:"provider"`
	// Dir is the persist directory of the sqlite backend.
	Dir string `yaml:"dir" toml:"dir"`
	// Collection is the collection name.
	Collection string `yaml:"collection" toml:"collection"`
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig `yaml:"qdrant" toml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host" toml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port" toml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls" toml:"tls"`
}

// ChunkingConfig holds splitter settings.
type ChunkingConfig struct {
	// Size is the maximum chunk length in characters.
	Size int `yaml:"size" toml:"size"`
	// Overlap is the number of characters shared by neighbouring chunks.
	Overlap int `yaml:"overlap" toml:"overlap"`
}

// RetrieverConfig holds query defaults.
type RetrieverConfig struct {
	// K is the default number of hits.
	K int `yaml:"k" toml:"k"`
	// SearchType is the default strategy: similarity or diversity.
	SearchType string `yaml:"search_type" toml:"search_type"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host" toml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port" toml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var PDFRAG_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// RawDir is where uploaded PDFs are stored.
	RawDir string `yaml:"raw_dir" toml:"raw_dir"`
}

// UploadLogConfig holds upload history settings.
type UploadLogConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path" toml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format" toml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key" toml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host" toml:"host"`
}

// EvalConfig holds evaluation harness settings.
type EvalConfig struct {
	RawDir      string   `yaml:"raw_dir" toml:"raw_dir"`
	Gold        string   `yaml:"gold" toml:"gold"`
	Models      string   `yaml:"models" toml:"models"`
	ReportsDir  string   `yaml:"reports_dir" toml:"reports_dir"`
	IndexDir    string   `yaml:"index_dir" toml:"index_dir"`
	K           int      `yaml:"k" toml:"k"`
	SearchType  string   `yaml:"search_type" toml:"search_type"`
	IncludeTags []string `yaml:"include_tags" toml:"include_tags"`
	Dump        bool     `yaml:"dump" toml:"dump"`
}

// envMapping maps config fields to their corresponding env var names.
// Only non-empty values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_NAME", func(c *Config) string { return c.Model.Name }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"MODEL_TIMEOUT", func(c *Config) string { return c.Model.Timeout }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"VECTOR_STORE_PROVIDER", func(c *Config) string { return c.VectorStore.Provider }},
	{"VECTOR_STORE_DIR", func(c *Config) string { return c.VectorStore.Dir }},
	{"VECTOR_STORE_COLLECTION", func(c *Config) string { return c.VectorStore.Collection }},
	{"QDRANT_HOST", func(c *Config) string { return c.VectorStore.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.VectorStore.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.VectorStore.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.VectorStore.Qdrant.TLS) }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"RETRIEVER_K", func(c *Config) string { return intStr(c.Retriever.K) }},
	{"RETRIEVER_SEARCH_TYPE", func(c *Config) string { return c.Retriever.SearchType }},
	{"PDFRAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"PDFRAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"PDFRAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RAW_DIR", func(c *Config) string { return c.Server.RawDir }},
	{"UPLOAD_LOG_DB", func(c *Config) string { return c.UploadLog.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
	{"EVAL_RAW_DIR", func(c *Config) string { return c.Eval.RawDir }},
	{"EVAL_GOLD", func(c *Config) string { return c.Eval.Gold }},
	{"EVAL_MODELS", func(c *Config) string { return c.Eval.Models }},
	{"EVAL_REPORTS_DIR", func(c *Config) string { return c.Eval.ReportsDir }},
	{"EVAL_INDEX_DIR", func(c *Config) string { return c.Eval.IndexDir }},
	{"EVAL_K", func(c *Config) string { return intStr(c.Eval.K) }},
	{"EVAL_SEARCH_TYPE", func(c *Config) string { return c.Eval.SearchType }},
	{"EVAL_INCLUDE_TAGS", func(c *Config) string { return strings.Join(c.Eval.IncludeTags, ",") }},
	{"EVAL_DUMP", func(c *Config) string { return boolStr(c.Eval.Dump) }},
}

// Load reads the .env file in the working directory and the first config
// file found, and applies non-empty values as environment variables.
// Existing env vars are never overwritten, and .env entries take precedence
// over the config file. Returns the config path that was loaded, or "" if
// no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("config: failed to read %s: %w", DotEnvFile, err)
	} else if err == nil {
		log.Debug("config: loaded dotenv file", slog.String("path", DotEnvFile))
	}

	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no config file found, using env vars only")
		return "", nil
	}

	cfg, err := parseFile(path)
	if err != nil {
		return "", err
	}

	applied := 0
	for _, m := range envMapping {
		val := m.value(&cfg)
		if val == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue // env wins
		}
		if err := os.Setenv(m.envKey, val); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded config file",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// parseFile decodes path as TOML or YAML by extension.
func parseFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfigPath returns the first config file path that exists. An
// explicit path that does not exist is an error.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("PDFRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".pdfrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	for _, p := range []string{"pdfrag.yaml", "pdfrag.toml"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
