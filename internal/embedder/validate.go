package embedder

import (
	"log/slog"
	"path"
	"strings"
)

// chatFamilies are model name prefixes of chat/completion families. A model
// from one of them produces poor vectors unless its name says "embed".
var chatFamilies = []string{
	"gpt-", "o1", "o3", "o4",
	"llama", "mistral", "mixtral", "gemma", "gemini-", "phi",
	"claude", "command-r", "deepseek", "qwen", "solar", "vicuna", "falcon", "yi-",
}

// isChatModel reports whether model names a chat model. Registry paths
// ("library/llama3") and Ollama tags ("llama3:8b") are ignored.
func isChatModel(model string) bool {
	name := strings.ToLower(path.Base(model))
	name, _, _ = strings.Cut(name, ":")
	if name == "" || name == "." || strings.Contains(name, "embed") {
		return false
	}
	for _, family := range chatFamilies {
		if strings.HasPrefix(name, family) {
			return true
		}
	}
	return false
}

// WarnIfChatModel warns when cfg names a chat model as its embedding model
// and reports whether it did.
func WarnIfChatModel(log *slog.Logger, cfg Config) bool {
	if cfg.Backend == BackendFake || !isChatModel(cfg.Model) {
		return false
	}
	log.Warn("embedder: configured model is a chat model; embeddings will be poor",
		slog.String("backend", string(cfg.Backend)),
		slog.String("model", cfg.Model),
		slog.String("hint", "pick an embedding model such as nomic-embed-text or text-embedding-3-small"),
	)
	return true
}
