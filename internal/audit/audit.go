// Package audit records one structured entry per CLI command invocation:
// the command name, the config file in effect, and the backend-selection
// environment. Secrets are reduced to "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// entry is one environment variable included in the audit record.
type entry struct {
	key    string
	secret bool
}

// keys is the ordered list of env vars included in every audit record.
var keys = []entry{
	{"MODEL_PROVIDER", false},
	{"MODEL_NAME", false},
	{"OLLAMA_HOST", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_BASE_URL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"ARK_API_KEY", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"VECTOR_STORE_PROVIDER", false},
	{"VECTOR_STORE_DIR", false},
	{"VECTOR_STORE_COLLECTION", false},
	{"QDRANT_HOST", false},
	{"QDRANT_API_KEY", true},
	{"RETRIEVER_K", false},
	{"RETRIEVER_SEARCH_TYPE", false},
	{"PDFRAG_API_KEY", true},
	{"UPLOAD_LOG_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_SOURCE", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secrets indexes the secret keys for SanitiseKey.
var secrets = func() map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, e := range keys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits the audit record for command.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(keys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range keys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for secret keys and the value (or
// "unset") for everything else.
func SanitiseKey(key, value string) string {
	if secrets[key] || strings.HasSuffix(key, "_API_KEY") || strings.HasSuffix(key, "_SECRET_KEY") {
		if value != "" {
			return "set"
		}
		return "unset"
	}
	if value == "" {
		return "unset"
	}
	return value
}

// sanitiseConfigPath returns "none" for an empty path and replaces the home
// directory prefix with "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
